package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/safemobile/docbot/internal/store"
)

const welcomeMessage = "Привет! Я RAG-ассистент по документации UEM SafeMobile.\n\n" +
	"Задайте мне любой вопрос о системе, и я постараюсь найти ответ в документации."

const helpMessage = "Просто напишите свой вопрос о системе UEM SafeMobile обычным сообщением.\n\n" +
	"После ответа вы можете оценить его кнопками под сообщением — это помогает улучшать качество ответов."

// feedbackKeyboard is the inline keyboard attached to every answer.
func feedbackKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Корректно", "feedback:yes"),
			tgbotapi.NewInlineKeyboardButtonData("❌ Некорректно", "feedback:no"),
		),
	)
}

// handleCommand replies to /start and /help. Unknown commands are ignored.
func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	var reply string
	switch msg.Command() {
	case "start":
		reply = welcomeMessage
		b.log.Info("user started bot", slog.Int64("user_id", msg.From.ID))
	case "help":
		reply = helpMessage
	default:
		return
	}
	if _, err := b.api.Send(tgbotapi.NewMessage(msg.Chat.ID, reply)); err != nil {
		b.log.Error("failed to send command reply", slog.Any("error", err))
	}
}

// handleMessage answers one user question: typing indicator → pipeline →
// render with the markdown degradation chain → persist the conversation.
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	question := msg.Text
	userID := msg.From.ID
	b.log.Info("question received",
		slog.Int64("user_id", userID),
		slog.Int("question_len", len(question)),
	)

	// Answering can take tens of seconds; show the typing indicator.
	if _, err := b.api.Request(tgbotapi.NewChatAction(msg.Chat.ID, tgbotapi.ChatTyping)); err != nil {
		b.log.Warn("failed to send typing action", slog.Any("error", err))
	}

	outcome := b.answerer.Answer(ctx, question)

	sent, err := b.sendAnswer(msg, outcome.DisplayText)
	if err != nil {
		b.log.Error("failed to deliver answer", slog.Any("error", err))
		return
	}
	b.log.Info("answer delivered",
		slog.Int64("user_id", userID),
		slog.String("verdict", outcome.Verdict.String()),
		slog.Int("message_id", sent.MessageID),
	)

	if b.store == nil {
		return
	}
	rec := &store.ConversationRecord{
		UserID:      userID,
		UserName:    fullName(msg.From),
		Question:    question,
		Contexts:    outcome.Contexts,
		Prompt:      outcome.Prompt,
		LLMResponse: outcome.RawModelOutput,
		Success:     outcome.Success,
		MessageID:   int64(sent.MessageID),
		AvgScore:    outcome.AvgScore,
	}
	if _, err := b.store.SaveConversation(ctx, rec); err != nil {
		// Audit persistence must never block delivery.
		b.log.Error("failed to persist conversation", slog.Any("error", err))
	}
}

// sendAnswer delivers text in chunks of at most 4096 chars with the
// three-stage parse-mode degradation: Markdown → escaped MarkdownV2 → plain.
// The feedback keyboard is attached to the final chunk only, and the last
// sent message is returned so its id can key the feedback vote.
func (b *Bot) sendAnswer(msg *tgbotapi.Message, text string) (tgbotapi.Message, error) {
	chunks := SplitMessage(text, maxMessageLen)

	var sent tgbotapi.Message
	for i, chunk := range chunks {
		last := i == len(chunks)-1

		m := tgbotapi.NewMessage(msg.Chat.ID, chunk)
		m.ParseMode = tgbotapi.ModeMarkdown
		if i == 0 {
			m.ReplyToMessageID = msg.MessageID
		}
		if last {
			m.ReplyMarkup = feedbackKeyboard()
		}

		out, err := b.api.Send(m)
		if err != nil {
			// The model's markdown may be malformed; escape for MarkdownV2.
			b.log.Warn("markdown send failed, retrying escaped", slog.Any("error", err))
			m.Text = EscapeMarkdownV2(chunk)
			m.ParseMode = "MarkdownV2"
			out, err = b.api.Send(m)
		}
		if err != nil {
			// Last resort: no formatting at all.
			b.log.Warn("markdownv2 send failed, retrying plain", slog.Any("error", err))
			m.Text = chunk
			m.ParseMode = ""
			out, err = b.api.Send(m)
		}
		if err != nil {
			return tgbotapi.Message{}, fmt.Errorf("telegram: send chunk %d/%d: %w", i+1, len(chunks), err)
		}
		sent = out
	}
	return sent, nil
}

// fullName returns the user's display name, preferring the full name over
// the username. Empty if neither is set.
func fullName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	return name
}
