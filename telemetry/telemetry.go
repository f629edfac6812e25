// Package telemetry exports compile traces over OTLP/HTTP.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/colorfulnotion/armjit/log"
)

const ServiceName = "armjit"

// ShutdownFunc flushes and stops the exporter.
type ShutdownFunc func(context.Context) error

// NewProvider builds a tracer provider batching spans to exporter.
func NewProvider(exporter sdktrace.SpanExporter, attrs ...attribute.KeyValue) *sdktrace.TracerProvider {
	attrs = append([]attribute.KeyValue{attribute.String("service.name", ServiceName)}, attrs...)
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(2*time.Second)),
		sdktrace.WithResource(resource.NewSchemaless(attrs...)),
	)
}

// Setup installs a global tracer provider exporting to the OTLP/HTTP
// collector at endpoint (host:port). An empty endpoint leaves tracing off.
func Setup(ctx context.Context, endpoint string, insecure bool) (ShutdownFunc, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry exporter %s: %w", endpoint, err)
	}
	tp := NewProvider(exporter)
	otel.SetTracerProvider(tp)
	log.Info(log.JitMonitoring, "telemetry enabled", "endpoint", endpoint)
	return tp.Shutdown, nil
}
