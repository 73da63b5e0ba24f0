package postgres

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/cassiomorais/orders/internal/domain/payment"
	"github.com/cassiomorais/orders/internal/domain/uow"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PaymentRepository implements payment.Repository using PostgreSQL.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// Create inserts a new payment.
func (r *PaymentRepository) Create(ctx context.Context, tx uow.Tx, p *payment.Payment) error {
	db, err := conn("insert payment", tx)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx,
		`INSERT INTO payments (id, order_id, amount, status, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.OrderID, decimalToNumericString(p.Amount), string(p.Status), p.Reason, p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domainErrors.ErrPaymentAlreadyProcessed
		}
		return domainErrors.NewPersistenceError("insert payment", err)
	}
	return nil
}

// GetByOrderID retrieves the payment for an order.
func (r *PaymentRepository) GetByOrderID(ctx context.Context, tx uow.Tx, orderID uuid.UUID) (*payment.Payment, error) {
	db, err := connOrPool("get payment", tx, r.pool)
	if err != nil {
		return nil, err
	}

	p := &payment.Payment{}
	var (
		status    string
		amountStr string
	)
	err = db.QueryRow(ctx,
		`SELECT id, order_id, amount, status, reason, created_at
		 FROM payments WHERE order_id = $1`, orderID,
	).Scan(&p.ID, &p.OrderID, &amountStr, &status, &p.Reason, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	amount, err := numericStringToDecimal(amountStr)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	p.Amount = amount
	p.Status = payment.Status(status)
	return p, nil
}
