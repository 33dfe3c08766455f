package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"oasis-billing/internal/domain"
	"oasis-billing/internal/domain/model"
	"oasis-billing/internal/domain/ports/repository"
)

var _ repository.TransactionRepository = (*transactionRepo)(nil)

type transactionRepo struct{ pool *pgxpool.Pool }

func NewTransactionRepo(pool *pgxpool.Pool) *transactionRepo {
	return &transactionRepo{pool: pool}
}

const transactionColumns = `merchant_order_id, user_id, plan_id, amount, currency, gateway, status, gateway_reference, created_at, updated_at`

func (r *transactionRepo) CreatePending(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	const q = `
INSERT INTO transactions (` + transactionColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10);`
	_, err := execSQL(ctx, r.pool, tx, q,
		t.MerchantOrderID, t.UserID, t.PlanID, t.Amount, t.Currency, string(t.Gateway), string(t.Status), t.GatewayReference, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return execErr(err)
	}
	return nil
}

func (r *transactionRepo) FindByMerchantOrderID(ctx context.Context, tx repository.Tx, merchantOrderID string) (*model.Transaction, error) {
	q := forUpdate(`SELECT `+transactionColumns+` FROM transactions WHERE UPPER(merchant_order_id) = UPPER($1)`, tx) + ";"
	row, err := pickRow(ctx, r.pool, tx, q, strings.TrimSpace(merchantOrderID))
	if err != nil {
		return nil, err
	}
	return scanTransaction(row)
}

func (r *transactionRepo) UpdateStatusIf(ctx context.Context, tx repository.Tx, merchantOrderID string, from, to model.TransactionStatus, gatewayRef *string) (bool, error) {
	const q = `
UPDATE transactions
   SET status = $3, gateway_reference = COALESCE($4, gateway_reference), updated_at = NOW()
 WHERE UPPER(merchant_order_id) = UPPER($1) AND status = $2;`
	ct, err := execSQL(ctx, r.pool, tx, q, strings.TrimSpace(merchantOrderID), string(from), string(to), gatewayRef)
	if err != nil {
		return false, execErr(err)
	}
	return ct.RowsAffected() == 1, nil
}

func (r *transactionRepo) TouchReference(ctx context.Context, tx repository.Tx, merchantOrderID string, gatewayRef string) error {
	const q = `UPDATE transactions SET gateway_reference = $2, updated_at = NOW() WHERE UPPER(merchant_order_id) = UPPER($1);`
	ct, err := execSQL(ctx, r.pool, tx, q, strings.TrimSpace(merchantOrderID), gatewayRef)
	if err != nil {
		return execErr(err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *transactionRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + transactionColumns + ` FROM transactions WHERE status = 'pending' AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		return nil, execErr(err)
	}
	defer rows.Close()

	var out []*model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	t := &model.Transaction{}
	var gw, status string
	if err := row.Scan(&t.MerchantOrderID, &t.UserID, &t.PlanID, &t.Amount, &t.Currency, &gw, &status, &t.GatewayReference, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	t.Gateway = model.Gateway(gw)
	t.Status = model.TransactionStatus(status)
	return t, nil
}
