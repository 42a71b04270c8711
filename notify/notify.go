package notify

import (
	"context"
	"fmt"

	"car-crawler/config"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Notifier sends operator notifications
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Noop drops every notification
type Noop struct{}

func (Noop) Notify(ctx context.Context, text string) error { return nil }

// Telegram sends notifications to one chat
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *logrus.Entry
}

// New returns a Telegram notifier when a token and chat id are configured,
// and Noop otherwise
func New(cfg config.TelegramConfig, log *logrus.Entry) (Notifier, error) {
	if cfg.Token == "" || cfg.ChatID == 0 {
		return Noop{}, nil
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return NewTelegram(bot, cfg.ChatID, log), nil
}

// NewTelegram wraps an authorized bot
func NewTelegram(bot *tgbotapi.BotAPI, chatID int64, log *logrus.Entry) *Telegram {
	log = log.WithField("component", "notify")
	log.WithField("bot", bot.Self.UserName).Info("telegram notifications enabled")
	return &Telegram{bot: bot, chatID: chatID, log: log}
}

// Notify sends text as a plain message
func (t *Telegram) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}
