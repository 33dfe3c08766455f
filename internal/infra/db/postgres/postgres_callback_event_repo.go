package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"oasis-billing/internal/domain"
	"oasis-billing/internal/domain/model"
	"oasis-billing/internal/domain/ports/repository"
)

var _ repository.CallbackEventRepository = (*callbackEventRepo)(nil)

type callbackEventRepo struct{ pool *pgxpool.Pool }

func NewCallbackEventRepo(pool *pgxpool.Pool) *callbackEventRepo {
	return &callbackEventRepo{pool: pool}
}

const callbackEventColumns = `id, gateway, format, COALESCE(merchant_order_id, ''), COALESCE(external_reference, ''), COALESCE(raw_status_code, ''), payload, status, reason, attempts, received_at, processed_at, updated_at`

func (r *callbackEventRepo) Save(ctx context.Context, tx repository.Tx, ev *model.CallbackEvent) error {
	const q = `
INSERT INTO callback_events (
  id, gateway, format, merchant_order_id, external_reference, raw_status_code, payload, status, reason, attempts, received_at, processed_at, updated_at
) VALUES ($1,$2,$3,NULLIF($4,''),NULLIF($5,''),NULLIF($6,''),$7,$8,$9,$10,$11,$12,$13);`
	_, err := execSQL(ctx, r.pool, tx, q,
		ev.ID, string(ev.Gateway), string(ev.Format), ev.MerchantOrderID, ev.ExternalReference, ev.RawStatusCode,
		ev.Payload, string(ev.Status), ev.Reason, ev.Attempts, ev.ReceivedAt, ev.ProcessedAt, ev.UpdatedAt)
	if err != nil {
		return execErr(err)
	}
	return nil
}

func (r *callbackEventRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.CallbackEvent, error) {
	const q = `SELECT ` + callbackEventColumns + ` FROM callback_events WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanCallbackEvent(row)
}

func (r *callbackEventRepo) MarkResult(ctx context.Context, tx repository.Tx, id string, status model.CallbackEventStatus, reason string, at time.Time) error {
	const q = `
UPDATE callback_events
   SET status=$2, reason=$3, attempts=attempts+1, updated_at=$4,
       processed_at=CASE WHEN $2='processed' THEN $4 ELSE processed_at END
 WHERE id=$1;`
	ct, err := execSQL(ctx, r.pool, tx, q, id, string(status), reason, at)
	if err != nil {
		return execErr(err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *callbackEventRepo) ListByStatus(ctx context.Context, tx repository.Tx, status model.CallbackEventStatus, limit int) ([]*model.CallbackEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + callbackEventColumns + ` FROM callback_events WHERE status=$1 ORDER BY received_at ASC LIMIT $2;`
	return r.list(ctx, tx, q, string(status), limit)
}

func (r *callbackEventRepo) ListRetriable(ctx context.Context, tx repository.Tx, maxAttempts, limit int) ([]*model.CallbackEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + callbackEventColumns + ` FROM callback_events WHERE status='failed' AND attempts < $1 ORDER BY received_at ASC LIMIT $2;`
	return r.list(ctx, tx, q, maxAttempts, limit)
}

func (r *callbackEventRepo) list(ctx context.Context, tx repository.Tx, q string, args ...any) ([]*model.CallbackEvent, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, execErr(err)
	}
	defer rows.Close()

	var out []*model.CallbackEvent
	for rows.Next() {
		ev, err := scanCallbackEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanCallbackEvent(row pgx.Row) (*model.CallbackEvent, error) {
	ev := &model.CallbackEvent{}
	var gw, format, status string
	if err := row.Scan(&ev.ID, &gw, &format, &ev.MerchantOrderID, &ev.ExternalReference, &ev.RawStatusCode,
		&ev.Payload, &status, &ev.Reason, &ev.Attempts, &ev.ReceivedAt, &ev.ProcessedAt, &ev.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	ev.Gateway = model.Gateway(gw)
	ev.Format = model.Format(format)
	ev.Status = model.CallbackEventStatus(status)
	return ev, nil
}
