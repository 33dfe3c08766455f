// File: internal/usecase/subscription_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"oasis-billing/internal/domain"
	"oasis-billing/internal/domain/model"
	"oasis-billing/internal/domain/ports/repository"
	ucport "oasis-billing/internal/domain/ports/usecase"
	"oasis-billing/internal/infra/metrics"
)

// Compile-time check
var _ ucport.SubscriptionActivator = (*SubscriptionUseCase)(nil)

// SubscriptionUseCase activates or extends subscriptions for paid
// transactions. It always runs inside the caller's transaction so the
// activation commits or rolls back together with the status change.
type SubscriptionUseCase struct {
	plans       repository.SubscriptionPlanRepository
	subs        repository.SubscriptionRepository
	activations repository.ActivationRepository
	log         *zerolog.Logger
	now         func() time.Time
}

func NewSubscriptionUseCase(
	plans repository.SubscriptionPlanRepository,
	subs repository.SubscriptionRepository,
	activations repository.ActivationRepository,
	logger *zerolog.Logger,
) *SubscriptionUseCase {
	return &SubscriptionUseCase{
		plans:       plans,
		subs:        subs,
		activations: activations,
		log:         logger,
		now:         time.Now,
	}
}

// ActivateOrExtend claims idempotencyKey and then creates or extends the
// user's subscription by one period of planID. A key that was claimed
// before returns the earlier subscription with Applied=false.
//
// Every failure is reported as domain.ErrActivationFailed; the caller must
// roll back tx so the claim disappears with it.
func (uc *SubscriptionUseCase) ActivateOrExtend(ctx context.Context, tx repository.Tx, userID, planID, idempotencyKey string) (*model.ActivationResult, error) {
	if userID == "" || planID == "" || idempotencyKey == "" {
		return nil, fmt.Errorf("%w: %w", domain.ErrActivationFailed, domain.ErrInvalidArgument)
	}
	now := uc.now()

	claimed, existing, err := uc.activations.Claim(ctx, tx, &model.ActivationRecord{
		IdempotencyKey: idempotencyKey,
		UserID:         userID,
		PlanID:         planID,
		CreatedAt:      now,
	})
	if err != nil {
		return nil, uc.fail("claim idempotency key", err)
	}
	if !claimed {
		metrics.IncActivation("already_applied")
		uc.log.Info().Str("idempotency_key", idempotencyKey).Str("subscription_id", existing.SubscriptionID).
			Msg("activation already applied")
		res := &model.ActivationResult{SubscriptionID: existing.SubscriptionID}
		if existing.SubscriptionID != "" {
			if sub, err := uc.subs.FindByID(ctx, tx, existing.SubscriptionID); err == nil {
				res.ExpiresAt = sub.ExpiresAt
			}
		}
		return res, nil
	}

	plan, err := uc.plans.FindByID(ctx, tx, planID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			err = domain.ErrInvalidPlan
		}
		return nil, uc.fail("load plan "+planID, err)
	}

	result := "extended"
	sub, err := uc.subs.FindActiveByUser(ctx, tx, userID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		result = "created"
		sub, err = model.NewUserSubscription(uuid.NewString(), userID, plan, now)
		if err != nil {
			return nil, uc.fail("build subscription", err)
		}
	case err != nil:
		return nil, uc.fail("load active subscription", err)
	default:
		if err := sub.Extend(plan, now); err != nil {
			return nil, uc.fail("extend subscription", err)
		}
	}

	if err := uc.subs.Save(ctx, tx, sub); err != nil {
		return nil, uc.fail("save subscription", err)
	}
	if err := uc.activations.Attach(ctx, tx, idempotencyKey, sub.ID); err != nil {
		return nil, uc.fail("attach subscription to activation", err)
	}

	metrics.IncActivation(result)
	uc.log.Info().
		Str("user_id", userID).
		Str("plan_id", plan.ID).
		Str("subscription_id", sub.ID).
		Time("expires_at", sub.ExpiresAt).
		Str("result", result).
		Msg("subscription activated")

	return &model.ActivationResult{SubscriptionID: sub.ID, ExpiresAt: sub.ExpiresAt, Applied: true}, nil
}

func (uc *SubscriptionUseCase) fail(step string, err error) error {
	metrics.IncActivation("failed")
	return fmt.Errorf("%w: %s: %w", domain.ErrActivationFailed, step, err)
}
