package controller

import (
	"time"

	"github.com/cassiomorais/orders/internal/infrastructure/config"
	"github.com/cassiomorais/orders/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/orders/internal/middleware"
	"github.com/cassiomorais/orders/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterDeps struct {
	OrderService  *service.OrderService
	OutboxService *service.OutboxService
	Metrics       *observability.Metrics
	HealthChecks  []HealthCheck
	Server        config.ServerConfig

	// IdempotencyStore enables Idempotency-Key replay on POST /orders when set.
	IdempotencyStore customMW.IdempotencyStore
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Server.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Location", "X-Idempotency-Replayed"},
		AllowCredentials: deps.Server.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.SecurityHeaders())
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.HealthChecks...)
	orderH := NewOrderController(deps.OrderService, deps.Metrics)
	outboxH := NewOutboxController(deps.OutboxService)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if deps.Server.RateLimitPerMinute > 0 {
			r.Use(customMW.RateLimit(deps.Server.RateLimitPerMinute))
		}

		place := r.With()
		if deps.IdempotencyStore != nil {
			place = r.With(customMW.Idempotency(deps.IdempotencyStore, deps.Server.IdempotencyTTL))
		}

		// Orders
		place.Post("/orders", orderH.PlaceOrder)
		r.Get("/orders/{id}", orderH.GetOrder)
		r.Get("/orders/{id}/payment", orderH.GetPayment)

		// Outbox operations
		r.Group(func(r chi.Router) {
			if deps.Server.OperatorJWTSecret != "" {
				r.Use(customMW.RequireOperator(deps.Server.OperatorJWTSecret))
			}
			r.Get("/outbox/stats", outboxH.Stats)
			r.Post("/outbox/{id}/requeue", outboxH.Requeue)
		})
	})

	return r
}
