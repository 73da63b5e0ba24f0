package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cassiomorais/orders/internal/domain/outbox"
	"github.com/cassiomorais/orders/internal/domain/payment"
	"github.com/cassiomorais/orders/internal/domain/uow"
	"github.com/cassiomorais/orders/internal/infrastructure/config"
	"github.com/cassiomorais/orders/internal/infrastructure/observability"
	"github.com/cassiomorais/orders/internal/middleware"
	"github.com/cassiomorais/orders/internal/repository/memory"
	"github.com/cassiomorais/orders/internal/service"
	"github.com/cassiomorais/orders/internal/testutil"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	db         *memory.DB
	outbox     *memory.OutboxStore
	paymentSvc *service.PaymentService
	metrics    *observability.Metrics
	handler    http.Handler
}

func newTestAPI(t *testing.T, server config.ServerConfig, checks ...HealthCheck) *testAPI {
	t.Helper()
	db := memory.New()
	orders := memory.NewOrderRepository(db)
	payments := memory.NewPaymentRepository(db)
	store := memory.NewOutboxStore(db, 2)
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())

	orderSvc := service.NewOrderService(orders, payments, store, db, zerolog.Nop())
	outboxSvc := service.NewOutboxService(store, db, zerolog.Nop())
	paymentSvc := service.NewPaymentService(payments, store,
		payment.LimitAuthorizer{Max: decimal.NewFromInt(100)}, zerolog.Nop())

	return &testAPI{
		db:         db,
		outbox:     store,
		paymentSvc: paymentSvc,
		metrics:    metrics,
		handler: NewRouter(RouterDeps{
			OrderService:  orderSvc,
			OutboxService: outboxSvc,
			Metrics:       metrics,
			HealthChecks:  checks,
			Server:        server,
		}),
	}
}

func (a *testAPI) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func TestRouter_PlaceAndGetOrder(t *testing.T) {
	api := newTestAPI(t, config.ServerConfig{})

	w := api.do(t, http.MethodPost, "/api/v1/orders", `{"product":"lamp","amount":"42.5"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeBody[OrderResponse](t, w)
	assert.Equal(t, "lamp", created.Product)
	assert.Equal(t, "42.50", created.Amount)
	assert.Equal(t, "CREATED", created.Status)
	assert.Equal(t, "/api/v1/orders/"+created.ID, w.Header().Get("Location"))

	w = api.do(t, http.MethodGet, "/api/v1/orders/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.ID, decodeBody[OrderResponse](t, w).ID)

	stats, err := api.outbox.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats[outbox.StatusPending])
	assert.Equal(t, 1.0, promtestutil.ToFloat64(api.metrics.OrdersPlaced.WithLabelValues("success")))
}

func TestRouter_PlaceOrderRejectsBadInput(t *testing.T) {
	api := newTestAPI(t, config.ServerConfig{})

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"invalid json", `{`, "validation_error"},
		{"missing product", `{"amount":10}`, "validation_error"},
		{"zero amount", `{"product":"lamp","amount":0}`, "invalid_amount"},
		{"negative amount", `{"product":"lamp","amount":"-3"}`, "invalid_amount"},
		{"sub-cent amount", `{"product":"lamp","amount":"10.005"}`, "invalid_amount"},
		{"amount out of range", `{"product":"lamp","amount":"99999999999.99"}`, "invalid_amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(t, http.MethodPost, "/api/v1/orders", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.wantCode, decodeBody[ErrorResponse](t, w).Code)
		})
	}

	stats, err := api.outbox.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats[outbox.StatusPending], "rejected orders must not emit events")
}

func TestRouter_GetOrderErrors(t *testing.T) {
	api := newTestAPI(t, config.ServerConfig{})

	w := api.do(t, http.MethodGet, "/api/v1/orders/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_id", decodeBody[ErrorResponse](t, w).Code)

	w = api.do(t, http.MethodGet, "/api/v1/orders/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_GetPayment(t *testing.T) {
	api := newTestAPI(t, config.ServerConfig{})
	ctx := context.Background()

	w := api.do(t, http.MethodPost, "/api/v1/orders", `{"product":"lamp","amount":250}`)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeBody[OrderResponse](t, w)

	w = api.do(t, http.MethodGet, "/api/v1/orders/"+created.ID+"/payment", "")
	assert.Equal(t, http.StatusNotFound, w.Code, "no payment before order.created is consumed")

	evt := testutil.NewTestOrderCreatedEvent(uuid.MustParse(created.ID), "250")
	require.NoError(t, api.db.WithTransaction(ctx, func(ctx context.Context, tx uow.Tx) error {
		return api.paymentSvc.HandleOrderCreated(ctx, tx, evt)
	}))

	w = api.do(t, http.MethodGet, "/api/v1/orders/"+created.ID+"/payment", "")
	require.Equal(t, http.StatusOK, w.Code)
	p := decodeBody[PaymentResponse](t, w)
	assert.Equal(t, created.ID, p.OrderID)
	assert.Equal(t, "FAILED", p.Status)
	require.NotNil(t, p.Reason)
}

func TestRouter_OutboxStatsAndRequeue(t *testing.T) {
	api := newTestAPI(t, config.ServerConfig{})
	ctx := context.Background()

	w := api.do(t, http.MethodPost, "/api/v1/orders", `{"product":"lamp","amount":10}`)
	require.Equal(t, http.StatusCreated, w.Code)

	pending, err := api.outbox.FetchPending(ctx, 10, 2)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	id := pending[0].ID

	path := "/api/v1/outbox/" + strconv.FormatInt(id, 10) + "/requeue"
	w = api.do(t, http.MethodPost, path, "")
	assert.Equal(t, http.StatusConflict, w.Code, "PENDING entries cannot be requeued")

	for range 2 {
		require.NoError(t, api.db.WithTransaction(ctx, func(ctx context.Context, tx uow.Tx) error {
			return api.outbox.MarkFailed(ctx, tx, id, "bus down", time.Now())
		}))
	}

	w = api.do(t, http.MethodGet, "/api/v1/outbox/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, OutboxStatsResponse{Failed: 1}, decodeBody[OutboxStatsResponse](t, w))

	w = api.do(t, http.MethodPost, path, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	entry, err := api.outbox.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, outbox.StatusPending, entry.Status)
	assert.Zero(t, entry.Attempts)

	w = api.do(t, http.MethodPost, "/api/v1/outbox/999/requeue", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/outbox/abc/requeue", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_OutboxRequiresOperator(t *testing.T) {
	api := newTestAPI(t, config.ServerConfig{OperatorJWTSecret: "secret"})

	w := api.do(t, http.MethodGet, "/api/v1/outbox/stats", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		Role: middleware.RoleOperator,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	w = api.do(t, http.MethodGet, "/api/v1/outbox/stats", "", "Authorization", "Bearer "+signed)
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/orders", `{"product":"lamp","amount":10}`)
	assert.Equal(t, http.StatusCreated, w.Code, "order endpoints stay public")
}

func TestRouter_Health(t *testing.T) {
	healthy := newTestAPI(t, config.ServerConfig{},
		HealthCheck{Name: "database", Check: func(context.Context) error { return nil }})

	assert.Equal(t, http.StatusOK, healthy.do(t, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, healthy.do(t, http.MethodGet, "/health/live", "").Code)
	assert.Equal(t, http.StatusOK, healthy.do(t, http.MethodGet, "/health/ready", "").Code)

	broken := newTestAPI(t, config.ServerConfig{},
		HealthCheck{Name: "database", Check: func(context.Context) error { return nil }},
		HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("refused") }})

	w := broken.do(t, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "redis unavailable", decodeBody[map[string]string](t, w)["reason"])
}
