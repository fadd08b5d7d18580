// Command trib-back starts a dedicated backend storage process (component
// B's reference implementation): it serves the wire protocol over a
// single sqlite-backed storage engine, answering both the filesystem and
// auxiliary key-value RPCs a router or keeper dials against this address.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"tribfs/internal/logging"
	"tribfs/internal/storage/sqlitestore"
	"tribfs/internal/transport"
)

func main() {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		_ = tp.Shutdown(context.Background())
	}()

	if err := rootCmd().Execute(); err != nil {
		slog.Error("trib-back: command failed", "err", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var addr string
	var dataDir string
	var logLevel string

	cmd := &cobra.Command{
		Use:   "trib-back",
		Short: "tribfs backend storage process",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Configure(logLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := sqlitestore.Open(dataDir)
			if err != nil {
				return err
			}
			defer store.Close()

			srv := transport.NewServer(store, store)
			slog.Info("trib-back: listening", "addr", addr, "data_dir", dataDir)
			return srv.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:9001", "Listen address (host:port or a unix socket path)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "trib-back.db", "Path to the sqlite data file")
	cmd.Flags().StringVar(&logLevel, "log-level", logging.LevelInfo, "Log level: debug, info, warn, error")
	return cmd
}
