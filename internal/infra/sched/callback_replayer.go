package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"oasis-billing/internal/domain/model"
	"oasis-billing/internal/infra/metrics"
	"oasis-billing/internal/usecase"
)

const replayTrigger = "scheduler"

// ReplaySource is the part of the callback use case the replayer drives.
type ReplaySource interface {
	ListRetriable(ctx context.Context, maxAttempts, limit int) ([]*model.CallbackEvent, error)
	Replay(ctx context.Context, eventID, trigger string) (*usecase.CallbackResult, error)
}

// CallbackReplayer periodically re-applies callback events whose processing
// failed (activation error, store timeout). Replays are safe because the
// state machine is idempotent per merchant order id.
type CallbackReplayer struct {
	src         ReplaySource
	interval    time.Duration
	maxAttempts int
	batch       int
	log         *zerolog.Logger
}

func NewCallbackReplayer(src ReplaySource, interval time.Duration, maxAttempts, batch int, logger *zerolog.Logger) *CallbackReplayer {
	if interval <= 0 {
		interval = time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if batch <= 0 {
		batch = 50
	}
	l := logger.With().Str("component", "CallbackReplayer").Logger()
	return &CallbackReplayer{src: src, interval: interval, maxAttempts: maxAttempts, batch: batch, log: &l}
}

func (w *CallbackReplayer) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Int("max_attempts", w.maxAttempts).Msg("Starting callback replayer")
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping callback replayer")
			return ctx.Err()
		case <-t.C:
			w.Tick(ctx)
		}
	}
}

// Tick replays one batch and returns how many events were processed
// successfully.
func (w *CallbackReplayer) Tick(ctx context.Context) int {
	events, err := w.src.ListRetriable(ctx, w.maxAttempts, w.batch)
	if err != nil {
		w.log.Error().Err(err).Msg("list retriable callbacks failed")
		return 0
	}
	ok := 0
	for _, ev := range events {
		if ctx.Err() != nil {
			break
		}
		l := w.log.With().Str("callback_event_id", ev.ID).Str("merchant_order_id", ev.MerchantOrderID).Int("attempt", ev.Attempts+1).Logger()
		res, err := w.src.Replay(ctx, ev.ID, replayTrigger)
		if err != nil {
			if ev.Attempts+1 >= w.maxAttempts {
				metrics.IncReplay(replayTrigger, "exhausted")
				l.Error().Err(err).Msg("callback replay attempts exhausted, left for manual review")
				continue
			}
			l.Warn().Err(err).Msg("callback replay failed")
			continue
		}
		ok++
		l.Info().Str("outcome", string(res.Outcome)).Msg("callback replayed")
	}
	return ok
}
