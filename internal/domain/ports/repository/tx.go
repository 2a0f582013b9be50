package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle. Its concrete type is owned by the
// storage implementation (pgx.Tx for Postgres); repositories accept nil for
// the non-transactional path.
type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside a single storage transaction and commits
// when fn returns nil.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
