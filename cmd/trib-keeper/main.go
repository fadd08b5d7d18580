// Command trib-keeper starts a keeper (component G) at a fixed ring
// index: it syncs its heartbeat every second, deduces leadership from
// the shared heartbeat table, and on the leader's 3-second round probes
// backend liveness and replicates transitioned backends' owned keys.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"tribfs/internal/keeper"
	"tribfs/internal/keeperstore"
	"tribfs/internal/logging"
	"tribfs/internal/router"
	"tribfs/internal/transport"
)

func main() {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		_ = tp.Shutdown(context.Background())
	}()

	if err := rootCmd().Execute(); err != nil {
		slog.Error("trib-keeper: command failed", "err", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var addrsFlag string
	var backsFlag string
	var this int
	var logLevel string

	cmd := &cobra.Command{
		Use:   "trib-keeper",
		Short: "tribfs keeper process",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Configure(logLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			backs := splitAddrs(backsFlag)
			addrs := splitAddrs(addrsFlag)
			if this < 0 || this >= len(addrs) {
				return fmt.Errorf("--this %d out of range for %d --addrs entries", this, len(addrs))
			}

			dispatcher := router.NewBinDispatcher(backs, transport.DialReplica)
			bookkeepingStorage, err := dispatcher.Bin(keeperstore.BinName)
			if err != nil {
				return err
			}
			bookkeeping := keeperstore.New(bookkeepingStorage)

			k := keeper.New(this, len(addrs), backs, bookkeeping, transport.DialReplica)
			slog.Info("trib-keeper: starting", "index", this, "backs", backs, "addrs", addrs)
			return k.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addrsFlag, "addrs", "", "Comma-separated keeper addresses, index-aligned with --backs")
	cmd.Flags().StringVar(&backsFlag, "backs", "", "Comma-separated backend addresses")
	cmd.Flags().IntVar(&this, "this", 0, "This keeper's index into --addrs/--backs")
	cmd.Flags().StringVar(&logLevel, "log-level", logging.LevelInfo, "Log level: debug, info, warn, error")
	return cmd
}

func splitAddrs(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
