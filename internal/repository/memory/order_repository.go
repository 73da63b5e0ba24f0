package memory

import (
	"context"

	domainErrors "github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/cassiomorais/orders/internal/domain/order"
	"github.com/cassiomorais/orders/internal/domain/payment"
	"github.com/cassiomorais/orders/internal/domain/uow"
	"github.com/google/uuid"
)

// OrderRepository implements order.Repository on a DB.
type OrderRepository struct {
	db *DB
}

func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, tx uow.Tx, o *order.Order) error {
	t, err := r.db.active("insert order", tx)
	if err != nil {
		return err
	}
	if _, exists := r.db.orders[o.ID]; exists {
		return domainErrors.NewPersistenceError("insert order", domainErrors.ErrOptimisticLockFailed)
	}
	r.db.orders[o.ID] = *o
	t.onRollback(func() { delete(r.db.orders, o.ID) })
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, tx uow.Tx, id uuid.UUID) (*order.Order, error) {
	var found order.Order
	err := r.db.read(ctx, "get order", tx, func() error {
		o, ok := r.db.orders[id]
		if !ok {
			return domainErrors.ErrOrderNotFound
		}
		found = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &found, nil
}

func (r *OrderRepository) Update(ctx context.Context, tx uow.Tx, o *order.Order) error {
	t, err := r.db.active("update order", tx)
	if err != nil {
		return err
	}
	prev, ok := r.db.orders[o.ID]
	if !ok || prev.Version != o.Version-1 {
		return domainErrors.ErrOptimisticLockFailed
	}
	r.db.orders[o.ID] = *o
	t.onRollback(func() { r.db.orders[o.ID] = prev })
	return nil
}

// PaymentRepository implements payment.Repository on a DB.
type PaymentRepository struct {
	db *DB
}

func NewPaymentRepository(db *DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, tx uow.Tx, p *payment.Payment) error {
	t, err := r.db.active("insert payment", tx)
	if err != nil {
		return err
	}
	if _, exists := r.db.payments[p.OrderID]; exists {
		return domainErrors.ErrPaymentAlreadyProcessed
	}
	r.db.payments[p.OrderID] = *p
	t.onRollback(func() { delete(r.db.payments, p.OrderID) })
	return nil
}

func (r *PaymentRepository) GetByOrderID(ctx context.Context, tx uow.Tx, orderID uuid.UUID) (*payment.Payment, error) {
	var found payment.Payment
	err := r.db.read(ctx, "get payment", tx, func() error {
		p, ok := r.db.payments[orderID]
		if !ok {
			return domainErrors.ErrPaymentNotFound
		}
		found = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &found, nil
}
