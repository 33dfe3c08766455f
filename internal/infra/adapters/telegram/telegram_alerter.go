package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"oasis-billing/internal/config"
	"oasis-billing/internal/domain/ports/adapter"
)

var _ adapter.Alerter = (*TelegramAlerter)(nil)

const sendTimeout = 5 * time.Second

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramAlerter posts review alerts to an operator chat.
type TelegramAlerter struct {
	bot    sender
	chatID int64
	log    *zerolog.Logger
}

func NewTelegramAlerter(cfg *config.TelegramAlertConfig, logger *zerolog.Logger) (*TelegramAlerter, error) {
	if cfg == nil || cfg.Token == "" || cfg.ChatID == 0 {
		return nil, errors.New("telegram alert token and chat_id are required")
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, &http.Client{Timeout: sendTimeout})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return NewTelegramAlerterWithBot(bot, cfg.ChatID, logger), nil
}

// NewTelegramAlerterWithBot uses an already constructed bot, e.g. one built
// with tgbotapi.NewBotAPIWithClient.
func NewTelegramAlerterWithBot(bot *tgbotapi.BotAPI, chatID int64, logger *zerolog.Logger) *TelegramAlerter {
	return &TelegramAlerter{bot: bot, chatID: chatID, log: logger}
}

func (a *TelegramAlerter) Alert(ctx context.Context, r adapter.ReviewAlert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(a.chatID, FormatAlert(r))
	msg.DisableWebPagePreview = true

	// Send takes no context. The bot's client timeout ends the goroutine.
	done := make(chan error, 1)
	go func() {
		_, err := a.bot.Send(msg)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	case <-ctx.Done():
		return fmt.Errorf("telegram send: %w", ctx.Err())
	}
	a.log.Debug().Str("callback_event_id", r.EventID).Msg("review alert sent")
	return nil
}

// FormatAlert renders the plain-text alert body.
func FormatAlert(r adapter.ReviewAlert) string {
	var b strings.Builder
	b.WriteString("Payment callback needs review\n")
	fmt.Fprintf(&b, "gateway: %s\n", orDash(r.Gateway))
	fmt.Fprintf(&b, "order: %s\n", orDash(r.MerchantOrderID))
	fmt.Fprintf(&b, "event: %s\n", orDash(r.EventID))
	fmt.Fprintf(&b, "reason: %s", orDash(r.Reason))
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
