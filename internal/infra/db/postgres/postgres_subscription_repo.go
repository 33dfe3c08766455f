package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"oasis-billing/internal/domain"
	"oasis-billing/internal/domain/model"
	"oasis-billing/internal/domain/ports/repository"
)

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.UserSubscription) error {
	const q = `
INSERT INTO user_subscriptions (
  id, user_id, plan_id, created_at, start_at, expires_at, status, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
  plan_id=$3, start_at=$5, expires_at=$6, status=$7, updated_at=$8;`

	_, err := execSQL(ctx, r.pool, tx, q, s.ID, s.UserID, s.PlanID, s.CreatedAt, s.StartAt, s.ExpiresAt, string(s.Status), s.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return execErr(err)
	}
	return nil
}

func (r *subscriptionRepo) FindActiveByUser(ctx context.Context, tx repository.Tx, userID string) (*model.UserSubscription, error) {
	q := forUpdate(`
SELECT id, user_id, plan_id, created_at, start_at, expires_at, status, updated_at
  FROM user_subscriptions
 WHERE user_id=$1 AND status='active'
 ORDER BY created_at DESC
 LIMIT 1`, tx) + ";"
	return r.queryOne(ctx, tx, q, userID)
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.UserSubscription, error) {
	const q = `
SELECT id, user_id, plan_id, created_at, start_at, expires_at, status, updated_at
  FROM user_subscriptions
 WHERE id=$1;`
	return r.queryOne(ctx, tx, q, id)
}

func (r *subscriptionRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.UserSubscription, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}

	s := &model.UserSubscription{}
	var status string
	if err := row.Scan(&s.ID, &s.UserID, &s.PlanID, &s.CreatedAt, &s.StartAt, &s.ExpiresAt, &status, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	s.Status = model.SubscriptionStatus(status)
	return s, nil
}

var _ repository.ActivationRepository = (*activationRepo)(nil)

type activationRepo struct {
	pool *pgxpool.Pool
}

func NewActivationRepo(pool *pgxpool.Pool) *activationRepo {
	return &activationRepo{pool: pool}
}

// Claim relies on the primary key of subscription_activations: the loser of
// a race blocks on the winner's insert and then sees ON CONFLICT.
func (r *activationRepo) Claim(ctx context.Context, tx repository.Tx, rec *model.ActivationRecord) (bool, *model.ActivationRecord, error) {
	const ins = `
INSERT INTO subscription_activations (idempotency_key, user_id, plan_id, created_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (idempotency_key) DO NOTHING;`
	ct, err := execSQL(ctx, r.pool, tx, ins, rec.IdempotencyKey, rec.UserID, rec.PlanID, rec.CreatedAt)
	if err != nil {
		return false, nil, execErr(err)
	}
	if ct.RowsAffected() == 1 {
		return true, nil, nil
	}

	const sel = `
SELECT idempotency_key, user_id, plan_id, COALESCE(subscription_id::text, ''), created_at
  FROM subscription_activations
 WHERE idempotency_key=$1;`
	row, err := pickRow(ctx, r.pool, tx, sel, rec.IdempotencyKey)
	if err != nil {
		return false, nil, err
	}
	existing := &model.ActivationRecord{}
	if err := row.Scan(&existing.IdempotencyKey, &existing.UserID, &existing.PlanID, &existing.SubscriptionID, &existing.CreatedAt); err != nil {
		return false, nil, domain.ErrReadDatabaseRow
	}
	return false, existing, nil
}

func (r *activationRepo) Attach(ctx context.Context, tx repository.Tx, key, subscriptionID string) error {
	const q = `UPDATE subscription_activations SET subscription_id=$2 WHERE idempotency_key=$1;`
	ct, err := execSQL(ctx, r.pool, tx, q, key, subscriptionID)
	if err != nil {
		return execErr(err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
