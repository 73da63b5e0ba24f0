package controller

import (
	"time"

	"github.com/cassiomorais/orders/internal/domain/order"
	"github.com/cassiomorais/orders/internal/domain/outbox"
	"github.com/cassiomorais/orders/internal/domain/payment"
	"github.com/shopspring/decimal"
)

// --- Request DTOs ---
// Controllers convert these to service layer DTOs before calling business logic.

// PlaceOrderRequest holds the input for placing an order. Amount accepts
// either a JSON number or a decimal string.
type PlaceOrderRequest struct {
	Product string          `json:"product" validate:"required,max=200"`
	Amount  decimal.Decimal `json:"amount"`
}

// --- Response DTOs ---

// OrderResponse represents an order in API responses.
type OrderResponse struct {
	ID        string    `json:"id"`
	Product   string    `json:"product"`
	Amount    string    `json:"amount"`
	Status    string    `json:"status"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PaymentResponse represents the payment taken for an order.
type PaymentResponse struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Amount    string    `json:"amount"`
	Status    string    `json:"status"`
	Reason    *string   `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// OutboxStatsResponse reports outbox entry counts per status.
type OutboxStatsResponse struct {
	Pending int64 `json:"pending"`
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

// FromOrder converts a domain order to API response.
func FromOrder(o *order.Order) *OrderResponse {
	return &OrderResponse{
		ID:        o.ID.String(),
		Product:   o.Product,
		Amount:    o.Amount.StringFixed(2),
		Status:    string(o.Status),
		Version:   o.Version,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

// FromPayment converts a domain payment to API response.
func FromPayment(p *payment.Payment) *PaymentResponse {
	return &PaymentResponse{
		ID:        p.ID.String(),
		OrderID:   p.OrderID.String(),
		Amount:    p.Amount.StringFixed(2),
		Status:    string(p.Status),
		Reason:    p.Reason,
		CreatedAt: p.CreatedAt,
	}
}

func fromOutboxStats(stats map[outbox.Status]int64) *OutboxStatsResponse {
	return &OutboxStatsResponse{
		Pending: stats[outbox.StatusPending],
		Sent:    stats[outbox.StatusSent],
		Failed:  stats[outbox.StatusFailed],
	}
}
