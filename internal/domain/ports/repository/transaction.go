package repository

import (
	"context"
	"time"

	"oasis-billing/internal/domain/model"
)

// TransactionRepository stores checkout attempts keyed by merchant order id.
type TransactionRepository interface {
	// CreatePending inserts a new pending transaction. Returns
	// domain.ErrAlreadyExists when the merchant order id is taken.
	CreatePending(ctx context.Context, tx Tx, t *model.Transaction) error
	// FindByMerchantOrderID returns domain.ErrNotFound when absent. With a
	// transactional tx the row is locked until commit.
	FindByMerchantOrderID(ctx context.Context, tx Tx, merchantOrderID string) (*model.Transaction, error)
	// UpdateStatusIf moves the status from `from` to `to` only if the stored
	// status still equals `from`. Reports whether a row changed.
	UpdateStatusIf(ctx context.Context, tx Tx, merchantOrderID string, from, to model.TransactionStatus, gatewayRef *string) (bool, error)
	// TouchReference records the last seen external reference without
	// changing the status.
	TouchReference(ctx context.Context, tx Tx, merchantOrderID string, gatewayRef string) error
	ListPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Transaction, error)
}
