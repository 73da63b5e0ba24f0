package controller

import (
	"net/http"

	"github.com/cassiomorais/orders/internal/service"
)

// PlaceMetrics records order placement results.
type PlaceMetrics interface {
	OrderPlaced(result string)
}

// OrderController handles order-related HTTP requests.
type OrderController struct {
	orderService *service.OrderService
	metrics      PlaceMetrics
}

// NewOrderController creates a new OrderController. metrics may be nil.
func NewOrderController(orderService *service.OrderService, metrics PlaceMetrics) *OrderController {
	return &OrderController{orderService: orderService, metrics: metrics}
}

// PlaceOrder handles POST /api/v1/orders
func (h *OrderController) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.record("invalid")
		writeError(w, err)
		return
	}

	o, err := h.orderService.PlaceOrder(r.Context(), service.PlaceOrderRequest{
		Product: req.Product,
		Amount:  req.Amount,
	})
	if err != nil {
		h.record("error")
		writeError(w, err)
		return
	}

	h.record("success")
	w.Header().Set("Location", "/api/v1/orders/"+o.ID.String())
	writeJSON(w, http.StatusCreated, FromOrder(o))
}

// GetOrder handles GET /api/v1/orders/{id}
func (h *OrderController) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	o, err := h.orderService.GetOrder(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromOrder(o))
}

// GetPayment handles GET /api/v1/orders/{id}/payment
func (h *OrderController) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	p, err := h.orderService.GetPayment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromPayment(p))
}

func (h *OrderController) record(result string) {
	if h.metrics != nil {
		h.metrics.OrderPlaced(result)
	}
}
