package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/safemobile/docbot/internal/logging"
	"github.com/safemobile/docbot/internal/server"
	"github.com/safemobile/docbot/internal/store"
	"github.com/safemobile/docbot/internal/tracing"
)

// NewServeCmd constructs the `docbot serve` command, which starts the HTTP
// API server.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docbot HTTP API server",
		Long: `Start the docbot HTTP server.

The server exposes POST /api/ask for answering questions, POST /api/feedback
for recording answer quality votes, readiness and liveness probes, and a
Prometheus /metrics endpoint.

Set DOCBOT_API_KEY to require Bearer authentication on the answer endpoints.

Examples:
  docbot serve
  docbot serve --port 9090
  MODEL_PROVIDER=ollama docbot serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			asst, index, closeFn, err := buildAssistant(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer closeFn()

			conv, closeStore := openStore(ctx, log)
			defer closeStore()

			pingers := []server.Pinger{server.NewQdrantPinger(index.Client())}
			if pg, ok := conv.(*store.PostgresStore); ok {
				pingers = append(pingers, server.NewPostgresPinger(pg.Pool()))
			}

			srv, err := server.New(asst, conv, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("DOCBOT_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
