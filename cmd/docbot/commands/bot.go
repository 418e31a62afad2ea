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
	"github.com/safemobile/docbot/internal/telegram"
	"github.com/safemobile/docbot/internal/tracing"
)

// NewBotCmd constructs the `docbot bot` command, which runs the Telegram
// bot frontend with long polling.
func NewBotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the docbot Telegram bot",
		Long: `Run the Telegram bot frontend.

The bot answers documentation questions in chat, attaches feedback buttons
to every answer, and records conversations and votes in the configured
store. Requires TELEGRAM_BOT_TOKEN.

Examples:
  TELEGRAM_BOT_TOKEN=123:abc docbot bot
  DATABASE_URL=postgres://... docbot bot`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			token := os.Getenv("TELEGRAM_BOT_TOKEN")
			if token == "" {
				return fmt.Errorf("bot: TELEGRAM_BOT_TOKEN is required")
			}

			log.Info("bot starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			}

			asst, _, closeFn, err := buildAssistant(ctx, log)
			if err != nil {
				return fmt.Errorf("bot: %w", err)
			}
			defer closeFn()

			conv, closeStore := openStore(ctx, log)
			defer closeStore()

			bot, err := telegram.New(&telegram.Config{
				Token:    token,
				Answerer: asst,
				Store:    conv,
				Logger:   log,
			})
			if err != nil {
				return fmt.Errorf("bot: %w", err)
			}

			return bot.Run(ctx)
		},
	}
}
