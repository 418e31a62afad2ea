package telegram

import (
	"context"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// handleCallback processes feedback button presses. The vote is keyed by the
// id of the bot's answer message; on a successful first vote the keyboard is
// removed so the buttons cannot be pressed again.
func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	// Acknowledge immediately so the client stops the spinner.
	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "Спасибо за отзыв!")); err != nil {
		b.log.Warn("failed to acknowledge callback", slog.Any("error", err))
	}

	value, ok := strings.CutPrefix(query.Data, "feedback:")
	if !ok {
		b.log.Warn("unexpected callback data", slog.String("data", query.Data))
		return
	}
	helpful := value == "yes"

	if query.Message == nil {
		return
	}
	messageID := int64(query.Message.MessageID)
	b.log.Info("feedback received",
		slog.Int64("user_id", query.From.ID),
		slog.Int64("message_id", messageID),
		slog.Bool("helpful", helpful),
	)

	if b.store == nil {
		return
	}
	updated, err := b.store.UpdateFeedback(ctx, messageID, helpful)
	if err != nil {
		b.log.Error("failed to record feedback", slog.Any("error", err))
		return
	}
	if !updated {
		// Either a repeat vote or an answer that was never persisted.
		b.log.Warn("feedback not recorded", slog.Int64("message_id", messageID))
		return
	}

	edit := tgbotapi.NewEditMessageReplyMarkup(query.Message.Chat.ID, query.Message.MessageID,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	if _, err := b.api.Request(edit); err != nil {
		b.log.Warn("failed to remove feedback keyboard", slog.Any("error", err))
	}
}
