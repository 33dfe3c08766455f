package memory

import (
	"context"
	"sort"
	"time"

	"oasis-billing/internal/domain"
	"oasis-billing/internal/domain/model"
	"oasis-billing/internal/domain/ports/repository"
)

var _ repository.CallbackEventRepository = (*CallbackEventRepo)(nil)

type CallbackEventRepo struct{ s *Store }

func cloneEvent(e *model.CallbackEvent) *model.CallbackEvent {
	cp := *e
	cp.Payload = append([]byte(nil), e.Payload...)
	if e.ProcessedAt != nil {
		at := *e.ProcessedAt
		cp.ProcessedAt = &at
	}
	return &cp
}

func (r *CallbackEventRepo) Save(ctx context.Context, tx repository.Tx, ev *model.CallbackEvent) error {
	return r.s.writeEvent(func(d *dataset) error {
		if _, ok := d.events[ev.ID]; ok {
			return domain.ErrAlreadyExists
		}
		d.events[ev.ID] = cloneEvent(ev)
		return nil
	})
}

func (r *CallbackEventRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.CallbackEvent, error) {
	var out *model.CallbackEvent
	err := r.s.read(tx, func(d *dataset) error {
		e, ok := d.events[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = cloneEvent(e)
		return nil
	})
	return out, err
}

func (r *CallbackEventRepo) MarkResult(ctx context.Context, tx repository.Tx, id string, status model.CallbackEventStatus, reason string, at time.Time) error {
	return r.s.writeEvent(func(d *dataset) error {
		e, ok := d.events[id]
		if !ok {
			return domain.ErrNotFound
		}
		e.Status = status
		e.Reason = reason
		e.Attempts++
		e.UpdatedAt = at
		if status == model.CallbackEventProcessed {
			p := at
			e.ProcessedAt = &p
		}
		return nil
	})
}

func (r *CallbackEventRepo) ListByStatus(ctx context.Context, tx repository.Tx, status model.CallbackEventStatus, limit int) ([]*model.CallbackEvent, error) {
	return r.list(tx, limit, func(e *model.CallbackEvent) bool { return e.Status == status })
}

func (r *CallbackEventRepo) ListRetriable(ctx context.Context, tx repository.Tx, maxAttempts, limit int) ([]*model.CallbackEvent, error) {
	return r.list(tx, limit, func(e *model.CallbackEvent) bool {
		return e.Status == model.CallbackEventFailed && e.Attempts < maxAttempts
	})
}

func (r *CallbackEventRepo) list(tx repository.Tx, limit int, keep func(*model.CallbackEvent) bool) ([]*model.CallbackEvent, error) {
	var out []*model.CallbackEvent
	err := r.s.read(tx, func(d *dataset) error {
		for _, e := range d.events {
			if keep(e) {
				out = append(out, cloneEvent(e))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ReceivedAt.Before(out[j].ReceivedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}
