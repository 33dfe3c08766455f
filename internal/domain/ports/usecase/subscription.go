package usecase

import (
	"context"

	"oasis-billing/internal/domain/model"
	"oasis-billing/internal/domain/ports/repository"
)

// SubscriptionActivator performs the activation effect of a paid
// transaction. It must be idempotent on idempotencyKey: a key that was
// already consumed returns the earlier result with Applied=false and never
// extends the subscription a second time.
type SubscriptionActivator interface {
	ActivateOrExtend(ctx context.Context, tx repository.Tx, userID, planID, idempotencyKey string) (*model.ActivationResult, error)
}
