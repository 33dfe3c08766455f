package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"oasis-billing/internal/domain/ports/adapter"
	"oasis-billing/internal/infra/metrics"
)

var ErrAlertQueueFull = errors.New("review alert queue full")

var _ adapter.Alerter = (*AlertDispatcher)(nil)

// AlertDispatcher queues review alerts and delivers them from its own
// goroutine, so a slow alert channel never delays a gateway reply.
// Alerts still queued at shutdown are dropped; the callback events stay
// in review status and remain listable.
type AlertDispatcher struct {
	next    adapter.Alerter
	queue   chan adapter.ReviewAlert
	timeout time.Duration
	log     *zerolog.Logger
}

func NewAlertDispatcher(next adapter.Alerter, size int, timeout time.Duration, logger *zerolog.Logger) *AlertDispatcher {
	if size <= 0 {
		size = 256
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	l := logger.With().Str("component", "AlertDispatcher").Logger()
	return &AlertDispatcher{next: next, queue: make(chan adapter.ReviewAlert, size), timeout: timeout, log: &l}
}

// Alert enqueues without blocking.
func (d *AlertDispatcher) Alert(ctx context.Context, a adapter.ReviewAlert) error {
	select {
	case d.queue <- a:
		return nil
	default:
		metrics.IncReviewAlert("dropped")
		return ErrAlertQueueFull
	}
}

func (d *AlertDispatcher) Run(ctx context.Context) error {
	d.log.Info().Int("queue", cap(d.queue)).Msg("Starting alert dispatcher")
	for {
		select {
		case <-ctx.Done():
			if n := len(d.queue); n > 0 {
				d.log.Warn().Int("pending", n).Msg("Stopping alert dispatcher with undelivered alerts")
			} else {
				d.log.Info().Msg("Stopping alert dispatcher")
			}
			return ctx.Err()
		case a := <-d.queue:
			d.deliver(ctx, a)
		}
	}
}

func (d *AlertDispatcher) deliver(ctx context.Context, a adapter.ReviewAlert) {
	actx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.next.Alert(actx, a); err != nil {
		metrics.IncReviewAlert("error")
		d.log.Warn().Err(err).Str("callback_event_id", a.EventID).Msg("review alert not delivered")
		return
	}
	metrics.IncReviewAlert("sent")
}
