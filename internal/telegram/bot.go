// Package telegram is the chat delivery adapter: a long-polling bot that
// forwards user questions to the answering pipeline, renders the outcome's
// display text, collects feedback votes via inline buttons, and records each
// conversation in the audit store. It renders Outcome.DisplayText only and
// never inspects pipeline internals.
package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/safemobile/docbot/internal/assistant"
	"github.com/safemobile/docbot/internal/store"
)

// Answerer is the single operation the bot needs from the pipeline.
type Answerer interface {
	Answer(ctx context.Context, question string) assistant.Outcome
}

// Config holds the dependencies required to construct a Bot.
type Config struct {
	// Token is the Telegram bot API token.
	Token string
	// Answerer produces an outcome for each incoming question.
	Answerer Answerer
	// Store is the optional conversation audit store. May be nil;
	// persistence failures never block message delivery.
	Store store.ConversationStore
	// Logger is the structured logger. Defaults to slog.Default() if nil.
	Logger *slog.Logger
}

// Bot is the long-polling Telegram front end.
type Bot struct {
	api      *tgbotapi.BotAPI
	answerer Answerer
	store    store.ConversationStore
	log      *slog.Logger
}

// New constructs a Bot and authenticates against the Telegram API.
func New(cfg *Config) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram: bot token must not be empty")
	}
	if cfg.Answerer == nil {
		return nil, fmt.Errorf("telegram: Answerer must not be nil")
	}

	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: authenticate bot: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Bot{
		api:      api,
		answerer: cfg.Answerer,
		store:    cfg.Store,
		log:      log,
	}, nil
}

// Run starts the long-polling loop and blocks until ctx is cancelled.
// Each question is handled in its own goroutine; the answering pipeline is
// safe for concurrent use.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started", slog.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.log.Info("telegram bot stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			switch {
			case update.CallbackQuery != nil:
				go b.handleCallback(ctx, update.CallbackQuery)
			case update.Message != nil && update.Message.IsCommand():
				go b.handleCommand(update.Message)
			case update.Message != nil && update.Message.Text != "":
				go b.handleMessage(ctx, update.Message)
			}
		}
	}
}
