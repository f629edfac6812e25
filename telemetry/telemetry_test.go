package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), "", true)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestProviderExportsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := NewProvider(exporter)
	_, span := tp.Tracer("test").Start(context.Background(), "compile")
	span.End()
	require.NoError(t, tp.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Equal(t, "compile", spans[0].Name)
	require.NoError(t, tp.Shutdown(context.Background()))
}
