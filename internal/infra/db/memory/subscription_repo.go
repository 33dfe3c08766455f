package memory

import (
	"context"
	"time"

	"oasis-billing/internal/domain"
	"oasis-billing/internal/domain/model"
	"oasis-billing/internal/domain/ports/repository"
)

var (
	_ repository.SubscriptionRepository = (*SubscriptionRepo)(nil)
	_ repository.ActivationRepository   = (*ActivationRepo)(nil)
)

type SubscriptionRepo struct{ s *Store }

func (r *SubscriptionRepo) Save(ctx context.Context, tx repository.Tx, sub *model.UserSubscription) error {
	return r.s.write(tx, func(d *dataset) error {
		cp := *sub
		d.subs[sub.ID] = &cp
		return nil
	})
}

func (r *SubscriptionRepo) FindActiveByUser(ctx context.Context, tx repository.Tx, userID string) (*model.UserSubscription, error) {
	var out *model.UserSubscription
	err := r.s.read(tx, func(d *dataset) error {
		for _, s := range d.subs {
			if s.UserID != userID || s.Status != model.SubscriptionStatusActive {
				continue
			}
			if out == nil || s.CreatedAt.After(out.CreatedAt) {
				cp := *s
				out = &cp
			}
		}
		if out == nil {
			return domain.ErrNotFound
		}
		return nil
	})
	return out, err
}

func (r *SubscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.UserSubscription, error) {
	var out *model.UserSubscription
	err := r.s.read(tx, func(d *dataset) error {
		s, ok := d.subs[id]
		if !ok {
			return domain.ErrNotFound
		}
		cp := *s
		out = &cp
		return nil
	})
	return out, err
}

// Count returns the number of stored subscriptions.
func (r *SubscriptionRepo) Count() int {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.data.subs)
}

type ActivationRepo struct{ s *Store }

func (r *ActivationRepo) Claim(ctx context.Context, tx repository.Tx, rec *model.ActivationRecord) (bool, *model.ActivationRecord, error) {
	var (
		claimed  bool
		existing *model.ActivationRecord
	)
	err := r.s.write(tx, func(d *dataset) error {
		if cur, ok := d.activations[rec.IdempotencyKey]; ok {
			cp := *cur
			existing = &cp
			return nil
		}
		cp := *rec
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = time.Now()
		}
		d.activations[rec.IdempotencyKey] = &cp
		claimed = true
		return nil
	})
	return claimed, existing, err
}

func (r *ActivationRepo) Attach(ctx context.Context, tx repository.Tx, key, subscriptionID string) error {
	return r.s.write(tx, func(d *dataset) error {
		cur, ok := d.activations[key]
		if !ok {
			return domain.ErrNotFound
		}
		cur.SubscriptionID = subscriptionID
		return nil
	})
}

// Count returns the number of consumed idempotency keys.
func (r *ActivationRepo) Count() int {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.data.activations)
}
