package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"oasis-billing/internal/domain"
	"oasis-billing/internal/domain/model"
	"oasis-billing/internal/domain/ports/repository"
)

var _ repository.TransactionRepository = (*TransactionRepo)(nil)

type TransactionRepo struct{ s *Store }

func orderKey(id string) string { return strings.ToUpper(strings.TrimSpace(id)) }

func (r *TransactionRepo) CreatePending(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	return r.s.write(tx, func(d *dataset) error {
		k := orderKey(t.MerchantOrderID)
		if _, ok := d.transactions[k]; ok {
			return domain.ErrAlreadyExists
		}
		cp := *t
		d.transactions[k] = &cp
		return nil
	})
}

func (r *TransactionRepo) FindByMerchantOrderID(ctx context.Context, tx repository.Tx, merchantOrderID string) (*model.Transaction, error) {
	var out *model.Transaction
	err := r.s.read(tx, func(d *dataset) error {
		t, ok := d.transactions[orderKey(merchantOrderID)]
		if !ok {
			return domain.ErrNotFound
		}
		cp := *t
		out = &cp
		return nil
	})
	return out, err
}

func (r *TransactionRepo) UpdateStatusIf(ctx context.Context, tx repository.Tx, merchantOrderID string, from, to model.TransactionStatus, gatewayRef *string) (bool, error) {
	changed := false
	err := r.s.write(tx, func(d *dataset) error {
		t, ok := d.transactions[orderKey(merchantOrderID)]
		if !ok || t.Status != from {
			return nil
		}
		t.Status = to
		if gatewayRef != nil && *gatewayRef != "" {
			ref := *gatewayRef
			t.GatewayReference = &ref
		}
		t.UpdatedAt = time.Now()
		changed = true
		return nil
	})
	return changed, err
}

func (r *TransactionRepo) TouchReference(ctx context.Context, tx repository.Tx, merchantOrderID string, gatewayRef string) error {
	return r.s.write(tx, func(d *dataset) error {
		t, ok := d.transactions[orderKey(merchantOrderID)]
		if !ok {
			return domain.ErrNotFound
		}
		ref := gatewayRef
		t.GatewayReference = &ref
		t.UpdatedAt = time.Now()
		return nil
	})
}

func (r *TransactionRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Transaction, error) {
	var out []*model.Transaction
	err := r.s.read(tx, func(d *dataset) error {
		for _, t := range d.transactions {
			if t.Status == model.TransactionStatusPending && t.CreatedAt.Before(olderThan) {
				cp := *t
				out = append(out, &cp)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}
