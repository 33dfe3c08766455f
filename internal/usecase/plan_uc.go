// File: internal/usecase/plan_uc.go
package usecase

import (
	"context"
	"errors"
	"strings"

	"oasis-billing/internal/domain"
	"oasis-billing/internal/domain/model"
	"oasis-billing/internal/domain/ports/repository"
)

// PlanUseCase manages the plan catalogue.
type PlanUseCase struct {
	repo repository.SubscriptionPlanRepository
}

func NewPlanUseCase(repo repository.SubscriptionPlanRepository) *PlanUseCase {
	return &PlanUseCase{repo: repo}
}

// Get returns domain.ErrInvalidPlan for unknown ids.
func (uc *PlanUseCase) Get(ctx context.Context, id string) (*model.SubscriptionPlan, error) {
	p, err := uc.repo.FindByID(ctx, repository.NoTX, strings.ToLower(strings.TrimSpace(id)))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidPlan
	}
	return p, err
}

func (uc *PlanUseCase) List(ctx context.Context) ([]*model.SubscriptionPlan, error) {
	return uc.repo.ListAll(ctx, repository.NoTX)
}

// EnsureDefaults inserts the default catalogue entries that are missing.
// Existing plans are left untouched.
func (uc *PlanUseCase) EnsureDefaults(ctx context.Context) (int, error) {
	added := 0
	for _, p := range model.DefaultPlans() {
		_, err := uc.repo.FindByID(ctx, repository.NoTX, p.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return added, err
		}
		if err := uc.repo.Save(ctx, repository.NoTX, p); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}
