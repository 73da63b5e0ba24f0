package postgres

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/cassiomorais/orders/internal/domain/order"
	"github.com/cassiomorais/orders/internal/domain/uow"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OrderRepository implements order.Repository using PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// scanOrder scans an order from any source implementing the scanner interface.
func (r *OrderRepository) scanOrder(s scanner) (*order.Order, error) {
	o := &order.Order{}
	var (
		status    string
		amountStr string
	)
	err := s.Scan(&o.ID, &o.Product, &amountStr, &status, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrOrderNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	amount, err := numericStringToDecimal(amountStr)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	o.Amount = amount
	o.Status = order.Status(status)
	return o, nil
}

// Create inserts a new order.
func (r *OrderRepository) Create(ctx context.Context, tx uow.Tx, o *order.Order) error {
	db, err := conn("insert order", tx)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx,
		`INSERT INTO orders (id, product, amount, status, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.ID, o.Product, decimalToNumericString(o.Amount), string(o.Status), o.Version, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return domainErrors.NewPersistenceError("insert order", err)
	}
	return nil
}

// GetByID retrieves an order by its ID, locking the row when tx is set.
func (r *OrderRepository) GetByID(ctx context.Context, tx uow.Tx, id uuid.UUID) (*order.Order, error) {
	db, err := connOrPool("get order", tx, r.pool)
	if err != nil {
		return nil, err
	}
	query := `SELECT id, product, amount, status, version, created_at, updated_at
		 FROM orders WHERE id = $1`
	if tx != nil {
		query += ` FOR UPDATE`
	}
	return r.scanOrder(db.QueryRow(ctx, query, id))
}

// Update updates an order with optimistic locking.
func (r *OrderRepository) Update(ctx context.Context, tx uow.Tx, o *order.Order) error {
	db, err := conn("update order", tx)
	if err != nil {
		return err
	}
	tag, err := db.Exec(ctx,
		`UPDATE orders SET status = $1, version = $2, updated_at = $3
		 WHERE id = $4 AND version = $5`,
		string(o.Status), o.Version, o.UpdatedAt, o.ID, o.Version-1,
	)
	if err != nil {
		return domainErrors.NewPersistenceError("update order", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrOptimisticLockFailed
	}
	return nil
}
