package memory

import (
	"context"
	"sort"
	"strings"

	"oasis-billing/internal/domain"
	"oasis-billing/internal/domain/model"
	"oasis-billing/internal/domain/ports/repository"
)

var _ repository.SubscriptionPlanRepository = (*PlanRepo)(nil)

type PlanRepo struct{ s *Store }

func (r *PlanRepo) Save(ctx context.Context, tx repository.Tx, plan *model.SubscriptionPlan) error {
	return r.s.write(tx, func(d *dataset) error {
		cp := *plan
		d.plans[strings.ToLower(plan.ID)] = &cp
		return nil
	})
}

func (r *PlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionPlan, error) {
	var out *model.SubscriptionPlan
	err := r.s.read(tx, func(d *dataset) error {
		p, ok := d.plans[strings.ToLower(id)]
		if !ok {
			return domain.ErrNotFound
		}
		cp := *p
		out = &cp
		return nil
	})
	return out, err
}

func (r *PlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.SubscriptionPlan, error) {
	var out []*model.SubscriptionPlan
	err := r.s.read(tx, func(d *dataset) error {
		for _, p := range d.plans {
			cp := *p
			out = append(out, &cp)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out, err
}
