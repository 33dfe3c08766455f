package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"oasis-billing/internal/domain/ports/adapter"
)

var _ adapter.Alerter = (*NoopAlerter)(nil)

// NoopAlerter logs alerts instead of sending them. Used when no Telegram
// chat is configured.
type NoopAlerter struct {
	log *zerolog.Logger
}

func NewNoopAlerter(logger *zerolog.Logger) *NoopAlerter {
	return &NoopAlerter{log: logger}
}

func (n *NoopAlerter) Alert(ctx context.Context, r adapter.ReviewAlert) error {
	n.log.Warn().
		Str("callback_event_id", r.EventID).
		Str("gateway", r.Gateway).
		Str("merchant_order_id", r.MerchantOrderID).
		Str("reason", r.Reason).
		Msg("review alert (noop)")
	return nil
}
