package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"oasis-billing/internal/domain/ports/repository"
	"oasis-billing/internal/infra/metrics"
)

const staleScanLimit = 200

// StalePendingWatcher reports transactions that have stayed pending past a
// threshold. It never changes their status: only a verified callback may.
type StalePendingWatcher struct {
	txs        repository.TransactionRepository
	interval   time.Duration
	staleAfter time.Duration
	log        *zerolog.Logger
}

func NewStalePendingWatcher(txs repository.TransactionRepository, interval, staleAfter time.Duration, logger *zerolog.Logger) *StalePendingWatcher {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 24 * time.Hour
	}
	l := logger.With().Str("component", "StalePendingWatcher").Logger()
	return &StalePendingWatcher{txs: txs, interval: interval, staleAfter: staleAfter, log: &l}
}

func (w *StalePendingWatcher) Run(ctx context.Context) error {
	w.log.Info().Dur("stale_after", w.staleAfter).Msg("Starting stale pending watcher")
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping stale pending watcher")
			return ctx.Err()
		case <-t.C:
			w.Tick(ctx, time.Now())
		}
	}
}

// Tick scans once and returns the number of stale pending transactions seen
// (capped at the scan limit).
func (w *StalePendingWatcher) Tick(ctx context.Context, now time.Time) int {
	stale, err := w.txs.ListPendingOlderThan(ctx, repository.NoTX, now.Add(-w.staleAfter), staleScanLimit)
	if err != nil {
		w.log.Error().Err(err).Msg("list stale pending transactions failed")
		return 0
	}
	metrics.SetStalePending(len(stale))
	for _, t := range stale {
		w.log.Warn().
			Str("merchant_order_id", t.MerchantOrderID).
			Str("gateway", string(t.Gateway)).
			Time("created_at", t.CreatedAt).
			Msg("transaction still pending")
	}
	return len(stale)
}
