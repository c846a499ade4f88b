package telegram

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Bot runs the long-polling loop and dispatches messages to the handler.
type Bot struct {
	api         *tgbotapi.BotAPI
	handler     *Handler
	pollTimeout time.Duration
	logger      *zap.Logger
}

// NewBot connects to the Bot API and verifies the token.
func NewBot(token string, handler *Handler, pollTimeout time.Duration, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect bot api: %w", err)
	}
	logger.Info("telegram bot authorized", zap.String("username", api.Self.UserName))
	return &Bot{api: api, handler: handler, pollTimeout: pollTimeout, logger: logger}, nil
}

// Run polls for updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = int(b.pollTimeout.Seconds())

	updates := b.api.GetUpdatesChan(cfg)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.dispatch(ctx, update)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}

	chatID := update.Message.Chat.ID
	reply := b.handler.HandleMessage(ctx, chatID, update.Message.Text)
	if reply == "" {
		return
	}

	b.Send(chatID, reply)
}

// Send delivers one HTML-formatted message to a chat.
func (b *Bot) Send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("send message failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
