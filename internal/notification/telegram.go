package notification

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"signal-engine/internal/model"
)

// TelegramNotifier sends alerts via the Telegram Bot API.
type TelegramNotifier struct {
	bot    *tgbot.BotAPI
	chatID int64
	// channel is used instead of chatID for "@name" targets.
	channel string
}

// NewTelegramNotifier authenticates the bot (getMe) and targets chatID,
// which is either a numeric chat id or an "@channel" username.
func NewTelegramNotifier(botToken, chatID string) (*TelegramNotifier, error) {
	return newTelegramNotifier(botToken, chatID, tgbot.APIEndpoint)
}

func newTelegramNotifier(botToken, chatID, endpoint string) (*TelegramNotifier, error) {
	b, err := tgbot.NewBotAPIWithClient(botToken, endpoint, &http.Client{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	t := &TelegramNotifier{bot: b}
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		t.chatID = id
	} else {
		t.channel = chatID
	}
	return t, nil
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	marker := "ℹ️"
	switch {
	case alert.Level == AlertWarning:
		marker = "⚠️"
	case alert.Level == AlertCritical:
		marker = "🚨"
	case alert.Signal != nil && alert.Signal.Direction == model.Buy:
		marker = "🟢"
	case alert.Signal != nil && alert.Signal.Direction == model.Sell:
		marker = "🔴"
	}
	text := fmt.Sprintf("%s *%s*\n\n%s", marker, escapeMarkdown(alert.Title), escapeMarkdown(alert.Message))

	var msg tgbot.MessageConfig
	if t.channel != "" {
		msg = tgbot.NewMessageToChannel(t.channel, text)
	} else {
		msg = tgbot.NewMessage(t.chatID, text)
	}
	msg.ParseMode = tgbot.ModeMarkdownV2

	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	return nil
}

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(s string) string {
	return tgbot.EscapeText(tgbot.ModeMarkdownV2, s)
}
