package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

// TransactionManager executes a function within a database transaction,
// passing the tx handle through the repositories' `tx` argument.
//
// Repositories MUST gracefully accept a nil tx (non-transactional path); the
// concrete handle type is infra-defined (pgx.Tx for Postgres). No use case in
// this service relies on multi-row transactions for correctness — fulfillment
// is guarded by the order-level sticky check — but the manager keeps related
// writes together where it is cheap to do so.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
