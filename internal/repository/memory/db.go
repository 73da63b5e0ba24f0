// Package memory is an in-process transactional backend. A unit of work
// holds the database exclusively from Begin until Commit or Rollback, which
// gives serializable isolation. Writes are applied in place and undone on
// rollback.
package memory

import (
	"context"
	"time"

	domainErrors "github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/cassiomorais/orders/internal/domain/event"
	"github.com/cassiomorais/orders/internal/domain/order"
	"github.com/cassiomorais/orders/internal/domain/outbox"
	"github.com/cassiomorais/orders/internal/domain/payment"
	"github.com/cassiomorais/orders/internal/domain/uow"
	"github.com/cassiomorais/orders/internal/messaging"
	"github.com/google/uuid"
)

type DB struct {
	sem chan struct{}
	now func() time.Time

	events       map[uuid.UUID]*event.Event
	outbox       map[int64]*outbox.Entry
	nextOutboxID int64
	processed    map[string]processedMessage
	orders       map[uuid.UUID]order.Order
	payments     map[uuid.UUID]payment.Payment
	deadLetters  []messaging.DeadLetter
}

type processedMessage struct {
	processedAt time.Time
	expiresAt   time.Time
}

type Option func(*DB)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(db *DB) { db.now = now }
}

func New(opts ...Option) *DB {
	db := &DB{
		sem:       make(chan struct{}, 1),
		now:       time.Now,
		events:    make(map[uuid.UUID]*event.Event),
		outbox:    make(map[int64]*outbox.Entry),
		processed: make(map[string]processedMessage),
		orders:    make(map[uuid.UUID]order.Order),
		payments:  make(map[uuid.UUID]payment.Payment),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Tx is a unit of work on a DB.
type Tx struct {
	db   *DB
	undo []func()
	done bool
}

func (db *DB) Begin(ctx context.Context) (uow.Tx, error) {
	if err := db.acquire(ctx); err != nil {
		return nil, domainErrors.NewPersistenceError("begin tx", err)
	}
	return &Tx{db: db}, nil
}

// WithTransaction executes fn inside a unit of work.
// The unit is committed if fn returns nil, rolled back otherwise.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx uow.Tx) error) error {
	return uow.Run(ctx, db, fn)
}

func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return domainErrors.NewPersistenceError("commit tx", domainErrors.ErrTxNotActive)
	}
	t.done = true
	t.undo = nil
	t.db.release()
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return domainErrors.NewPersistenceError("rollback tx", domainErrors.ErrTxNotActive)
	}
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.done = true
	t.undo = nil
	t.db.release()
	return nil
}

func (t *Tx) onRollback(fn func()) {
	t.undo = append(t.undo, fn)
}

func (db *DB) acquire(ctx context.Context) error {
	select {
	case db.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (db *DB) release() {
	<-db.sem
}

// active returns the concrete unit of work behind tx if it belongs to db and
// has not ended.
func (db *DB) active(op string, tx uow.Tx) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t == nil || t.db != db || t.done {
		return nil, domainErrors.NewPersistenceError(op, domainErrors.ErrTxNotActive)
	}
	return t, nil
}

// read runs fn with the database held, either by tx or by a short
// implicit unit of work when tx is nil.
func (db *DB) read(ctx context.Context, op string, tx uow.Tx, fn func() error) error {
	if tx != nil {
		if _, err := db.active(op, tx); err != nil {
			return err
		}
		return fn()
	}
	if err := db.acquire(ctx); err != nil {
		return domainErrors.NewPersistenceError(op, err)
	}
	defer db.release()
	return fn()
}
