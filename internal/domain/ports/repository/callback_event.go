package repository

import (
	"context"
	"time"

	"oasis-billing/internal/domain/model"
)

// CallbackEventRepository keeps the audit trail of inbound callbacks.
type CallbackEventRepository interface {
	Save(ctx context.Context, tx Tx, ev *model.CallbackEvent) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.CallbackEvent, error)
	// MarkResult sets the processing status and reason and bumps attempts.
	MarkResult(ctx context.Context, tx Tx, id string, status model.CallbackEventStatus, reason string, at time.Time) error
	ListByStatus(ctx context.Context, tx Tx, status model.CallbackEventStatus, limit int) ([]*model.CallbackEvent, error)
	// ListRetriable returns failed events with fewer than maxAttempts attempts, oldest first.
	ListRetriable(ctx context.Context, tx Tx, maxAttempts, limit int) ([]*model.CallbackEvent, error)
}
