package repository

import (
	"context"

	"oasis-billing/internal/domain/model"
)

// SubscriptionPlanRepository is the port for plan persistence.
type SubscriptionPlanRepository interface {
	Save(ctx context.Context, tx Tx, plan *model.SubscriptionPlan) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.SubscriptionPlan, error)
	ListAll(ctx context.Context, tx Tx) ([]*model.SubscriptionPlan, error)
}
