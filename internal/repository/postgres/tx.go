package postgres

import (
	"context"
	"sync/atomic"

	domainErrors "github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/cassiomorais/orders/internal/domain/uow"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the common query interface satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Tx is a unit of work backed by a pgx transaction.
type Tx struct {
	tx   pgx.Tx
	done atomic.Bool
}

func (t *Tx) Commit(ctx context.Context) error {
	if !t.done.CompareAndSwap(false, true) {
		return domainErrors.NewPersistenceError("commit tx", domainErrors.ErrTxNotActive)
	}
	if err := t.tx.Commit(ctx); err != nil {
		return domainErrors.NewPersistenceError("commit tx", err)
	}
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error {
	if !t.done.CompareAndSwap(false, true) {
		return domainErrors.NewPersistenceError("rollback tx", domainErrors.ErrTxNotActive)
	}
	if err := t.tx.Rollback(ctx); err != nil {
		return domainErrors.NewPersistenceError("rollback tx", err)
	}
	return nil
}

// TxManager opens units of work on a pool.
type TxManager struct {
	pool *pgxpool.Pool
}

// NewTxManager creates a new transaction manager.
func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool}
}

func (m *TxManager) Begin(ctx context.Context) (uow.Tx, error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return nil, domainErrors.NewPersistenceError("begin tx", err)
	}
	return &Tx{tx: tx}, nil
}

// WithTransaction executes fn inside a database transaction.
// The transaction is committed if fn returns nil, rolled back otherwise.
func (m *TxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx uow.Tx) error) error {
	return uow.Run(ctx, m, fn)
}

// conn returns the pgx transaction behind an active unit of work.
func conn(op string, tx uow.Tx) (DBTX, error) {
	t, ok := tx.(*Tx)
	if !ok || t == nil || t.done.Load() {
		return nil, domainErrors.NewPersistenceError(op, domainErrors.ErrTxNotActive)
	}
	return t.tx, nil
}

// connOrPool is conn for a non-nil tx and the pool otherwise.
func connOrPool(op string, tx uow.Tx, pool *pgxpool.Pool) (DBTX, error) {
	if tx == nil {
		return pool, nil
	}
	return conn(op, tx)
}
