// Command trib-front is a dual-purpose entrypoint: a --server-type flag
// picks between starting a frontend adaptor (routes kernel-shaped calls
// through the bin dispatcher to the live ring) or a standalone backend
// storage process, the same job cmd/trib-back does under its own
// dedicated name.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"tribfs"
	"tribfs/internal/config"
	"tribfs/internal/frontend"
	"tribfs/internal/logging"
	"tribfs/internal/router"
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
		slog.Error("trib-front: command failed", "err", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var host string
	var port int
	var logLevel string
	var serverType string
	var configPath string
	var dataDir string

	cmd := &cobra.Command{
		Use:   "trib-front",
		Short: "tribfs frontend adaptor / backend storage process",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Configure(logLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			addr := fmt.Sprintf("%s:%d", host, port)

			switch serverType {
			case "frontend":
				return runFrontend(ctx, addr, configPath)
			case "backend":
				return runBackend(ctx, addr, dataDir)
			default:
				return fmt.Errorf("unknown --server-type %q (want frontend or backend)", serverType)
			}
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Listen host")
	cmd.Flags().IntVar(&port, "port", 9000, "Listen port")
	cmd.Flags().StringVar(&logLevel, "log-level", logging.LevelInfo, "Log level: debug, info, warn, error")
	cmd.Flags().StringVar(&serverType, "server-type", "frontend", "Server type: frontend or backend")
	cmd.Flags().StringVar(&configPath, "config", config.Path(), "Ring membership config file (frontend mode)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "trib-front-backend.db", "Sqlite data file (backend mode)")
	return cmd
}

func runFrontend(ctx context.Context, addr, configPath string) error {
	fc, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if len(fc.Backs) == 0 {
		return fmt.Errorf("frontend mode requires a --config file listing backs")
	}

	dispatcher := router.NewBinDispatcher(fc.Backs, transport.DialReplica)
	fe := frontend.New(dispatcher)
	adaptor := frontend.NewWireAdaptor(fe)

	srv := transport.NewServer(adaptor, noopStorage{})
	slog.Info("trib-front: listening as frontend", "addr", addr, "backs", fc.Backs)
	return srv.ListenAndServe(ctx, addr)
}

func runBackend(ctx context.Context, addr, dataDir string) error {
	store, err := sqlitestore.Open(dataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := transport.NewServer(store, store)
	slog.Info("trib-front: listening as backend", "addr", addr, "data_dir", dataDir)
	return srv.ListenAndServe(ctx, addr)
}

// noopStorage satisfies tribfs.Storage for frontend mode, which doesn't
// serve the auxiliary key-value RPCs — those are bin-agnostic at the wire
// level (no FRequest on Get/Set/Keys), so a client wanting them dials a
// backend directly (cmd/kv-client), never a frontend.
type noopStorage struct{}

func (noopStorage) Get(context.Context, string) (string, bool, error) {
	return "", false, notServed()
}
func (noopStorage) Set(context.Context, string, string) error { return notServed() }
func (noopStorage) Keys(context.Context, tribfs.Pattern) (tribfs.List, error) {
	return nil, notServed()
}
func (noopStorage) ListGet(context.Context, string) (tribfs.List, error) { return nil, notServed() }
func (noopStorage) ListAppend(context.Context, string, string) error     { return notServed() }
func (noopStorage) ListRemove(context.Context, string, string) error     { return notServed() }
func (noopStorage) ListKeys(context.Context, tribfs.Pattern) (tribfs.List, error) {
	return nil, notServed()
}
func (noopStorage) Clock(context.Context, uint64) (uint64, error) { return 0, notServed() }

func notServed() error {
	return tribfs.New(tribfs.ErrNoLiveStore, "a frontend process does not serve the auxiliary key-value store; connect to a backend directly")
}

var _ tribfs.Storage = noopStorage{}
