package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside a storage transaction and hands the
// transaction handle to repositories through the tx argument.
//
// Repositories accept a nil tx (non-transactional path) and, when handed a
// real one, lock the rows they read (SELECT ... FOR UPDATE) so that
// read-decide-write sequences are safe against concurrent callbacks.
//
// The concrete handle type is infra-defined (pgx.Tx for Postgres).
// If fn returns an error everything written through tx is rolled back.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
