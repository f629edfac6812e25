package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/colorfulnotion/armjit/log"
	"github.com/colorfulnotion/armjit/telemetry"
)

func newRunCmd() *cobra.Command {
	var (
		img       imageFlags
		endpoint  string
		insecure  bool
		showStats bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a flat guest binary until it exits",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if endpoint == "" {
				endpoint = cfg.TelemetryEndpoint
			}
			shutdown, err := telemetry.Setup(ctx, endpoint, insecure)
			if err != nil {
				return err
			}
			defer shutdown(context.Background())

			s, err := img.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			e, err := s.execute(ctx)
			if e != nil {
				defer e.Close()
				fmt.Fprintln(os.Stderr, e.Snapshot())
			}
			if err != nil {
				return err
			}
			if err := s.saveProfile(); err != nil {
				log.Warn(log.StorageMonitoring, "save profile", "err", err)
			}
			if showStats {
				out, _ := json.MarshalIndent(map[string]any{
					"translator": s.guest.Translator.Stats(),
					"exits":      e.ExitCounts(),
					"table":      s.guest.Table.TableStats(),
				}, "", "  ")
				fmt.Fprintln(os.Stderr, string(out))
			}
			return nil
		},
	}
	img.add(cmd)
	cmd.Flags().StringVar(&endpoint, "telemetry", "", "OTLP/HTTP endpoint for compile spans")
	cmd.Flags().BoolVar(&insecure, "telemetry-insecure", false, "send spans over plain HTTP")
	cmd.Flags().BoolVar(&showStats, "stats", false, "print translator statistics on exit")
	return cmd
}
