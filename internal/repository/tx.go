package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrVersionConflict signals that a version-checked write matched the row id
// but not the version token. The concurrency coordinator retries the whole
// command on this sentinel and nothing else.
var ErrVersionConflict = errors.New("aggregate version conflict")

// ErrNoTransaction signals a write that must run inside a transaction was
// attempted without one.
var ErrNoTransaction = errors.New("operation requires an ambient transaction")

// Querier is the query surface shared by pgxpool.Pool and pgx.Tx. Repositories
// resolve it per call so the same methods work inside and outside a
// coordinator-managed transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txContextKey struct{}

// WithTx returns a context carrying the transaction.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext extracts the ambient transaction, if any.
func TxFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txContextKey{}).(pgx.Tx)
	return tx, ok
}

// TxManager runs a function inside a store transaction. The transaction is
// carried in the context so repositories pick it up transparently.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PgxTxManager is the pgxpool-backed TxManager.
type PgxTxManager struct {
	pool *pgxpool.Pool
}

// NewPgxTxManager constructs the manager.
func NewPgxTxManager(pool *pgxpool.Pool) *PgxTxManager {
	return &PgxTxManager{pool: pool}
}

// WithinTx begins a transaction, runs fn with it in the context, and commits
// on success. Any error from fn, including a cancelled context, rolls the
// transaction back; nothing is ever left half-committed.
func (m *PgxTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(WithTx(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func querier(ctx context.Context, pool *pgxpool.Pool) Querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return pool
}
