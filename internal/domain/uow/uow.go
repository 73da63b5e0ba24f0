package uow

import (
	"context"
	"fmt"
)

// Tx is an open unit of work. Stores receive it explicitly so the
// atomicity boundary is visible at every call site.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Manager opens units of work against one datastore.
type Manager interface {
	Begin(ctx context.Context) (Tx, error)
}

// Run executes fn inside a new unit of work.
// The unit is committed if fn returns nil, rolled back otherwise.
func Run(ctx context.Context, m Manager, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := m.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback failed (%v) after error: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
