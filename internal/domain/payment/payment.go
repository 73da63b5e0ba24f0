package payment

import (
	"context"
	"time"

	"github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/cassiomorais/orders/internal/domain/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the outcome of a payment attempt
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Payment represents the single payment taken for an order
type Payment struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	Amount    decimal.Decimal
	Status    Status
	Reason    *string
	CreatedAt time.Time
}

// NewPayment creates a payment from an authorization decision
func NewPayment(orderID uuid.UUID, amount decimal.Decimal, decision Decision, now time.Time) (*Payment, error) {
	if orderID == uuid.Nil {
		return nil, errors.NewValidationError("order_id", "is required")
	}
	if err := money.ValidateAmount(amount); err != nil {
		return nil, err
	}

	p := &Payment{
		ID:        uuid.New(),
		OrderID:   orderID,
		Amount:    amount,
		Status:    StatusCompleted,
		CreatedAt: now,
	}
	if !decision.Approved {
		reason := decision.Reason
		p.Status = StatusFailed
		p.Reason = &reason
	}
	return p, nil
}

// Succeeded reports whether the payment was approved.
func (p *Payment) Succeeded() bool {
	return p.Status == StatusCompleted
}

// Decision is the result of authorizing an amount for an order.
type Decision struct {
	Approved bool
	Reason   string
}

// Authorizer decides whether an order amount can be charged.
type Authorizer interface {
	Authorize(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal) (Decision, error)
}

// LimitAuthorizer approves any amount up to Max.
type LimitAuthorizer struct {
	Max decimal.Decimal
}

func (a LimitAuthorizer) Authorize(_ context.Context, _ uuid.UUID, amount decimal.Decimal) (Decision, error) {
	if amount.GreaterThan(a.Max) {
		return Decision{Approved: false, Reason: "amount exceeds limit of " + a.Max.String()}, nil
	}
	return Decision{Approved: true}, nil
}
