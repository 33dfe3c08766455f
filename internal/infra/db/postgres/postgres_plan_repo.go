package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"oasis-billing/internal/domain"
	"oasis-billing/internal/domain/model"
	"oasis-billing/internal/domain/ports/repository"
)

// Ensure interface compliance
var _ repository.SubscriptionPlanRepository = (*PostgresPlanRepo)(nil)

type PostgresPlanRepo struct {
	pool *pgxpool.Pool
}

func NewPlanRepo(pool *pgxpool.Pool) *PostgresPlanRepo {
	return &PostgresPlanRepo{pool: pool}
}

func (r *PostgresPlanRepo) Save(ctx context.Context, tx repository.Tx, plan *model.SubscriptionPlan) error {
	const sql = `
INSERT INTO subscription_plans (id, name, duration_days, price, currency, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE
  SET name          = EXCLUDED.name,
      duration_days = EXCLUDED.duration_days,
      price         = EXCLUDED.price,
      currency      = EXCLUDED.currency;
`
	_, err := execSQL(ctx, r.pool, tx, sql,
		strings.ToLower(plan.ID), plan.Name, plan.DurationDays, plan.Price, plan.Currency, plan.CreatedAt,
	)
	if err != nil {
		return execErr(err)
	}
	return nil
}

func (r *PostgresPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionPlan, error) {
	const sql = `
SELECT id, name, duration_days, price, currency, created_at
  FROM subscription_plans
 WHERE id = $1;
`
	row, err := pickRow(ctx, r.pool, tx, sql, strings.ToLower(id))
	if err != nil {
		return nil, err
	}
	var p model.SubscriptionPlan
	if err := row.Scan(&p.ID, &p.Name, &p.DurationDays, &p.Price, &p.Currency, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("FindByID plan: %w", err)
	}
	return &p, nil
}

func (r *PostgresPlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.SubscriptionPlan, error) {
	const sql = `
SELECT id, name, duration_days, price, currency, created_at
  FROM subscription_plans
 ORDER BY price ASC;
`
	rows, err := queryRows(ctx, r.pool, tx, sql)
	if err != nil {
		return nil, fmt.Errorf("ListAll plans: %w", err)
	}
	defer rows.Close()
	var out []*model.SubscriptionPlan
	for rows.Next() {
		var p model.SubscriptionPlan
		if err := rows.Scan(&p.ID, &p.Name, &p.DurationDays, &p.Price, &p.Currency, &p.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
