package repository

import (
	"context"

	"oasis-billing/internal/domain/model"
)

// SubscriptionRepository is the port for user subscriptions.
type SubscriptionRepository interface {
	Save(ctx context.Context, tx Tx, sub *model.UserSubscription) error
	// FindActiveByUser returns the user's current active subscription or
	// domain.ErrNotFound. Locks the row inside a transaction.
	FindActiveByUser(ctx context.Context, tx Tx, userID string) (*model.UserSubscription, error)
	FindByID(ctx context.Context, tx Tx, id string) (*model.UserSubscription, error)
}

// ActivationRepository guards the activation effect with a uniqueness
// constraint on the idempotency key.
type ActivationRepository interface {
	// Claim inserts the record if its key is unused. Reports false when the
	// key was already claimed, in which case existing holds the stored row.
	Claim(ctx context.Context, tx Tx, rec *model.ActivationRecord) (claimed bool, existing *model.ActivationRecord, err error)
	// Attach stores the subscription id the claimed key ended up activating.
	Attach(ctx context.Context, tx Tx, key, subscriptionID string) error
}
