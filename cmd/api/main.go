package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/orders/internal/bootstrap"
	"github.com/cassiomorais/orders/internal/controller"
	infraRedis "github.com/cassiomorais/orders/internal/infrastructure/redis"
	"github.com/cassiomorais/orders/internal/middleware"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "orders-api", "orders")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Services ---
	// In-memory storage is only visible to this process, so it also runs the
	// relay and the consumers.
	var (
		services   *bootstrap.Services
		processing *bootstrap.Processing
	)
	if app.Storage.InProcess() {
		processing, err = app.NewProcessing(ctx)
		if err != nil {
			app.Logger.Error().Err(err).Msg("Failed to start in-process processing")
			return
		}
		services = processing.Services()
	} else {
		services = app.NewServices(nil)
	}

	// --- Build router ---
	var checks []controller.HealthCheck
	if app.Storage.Pool != nil {
		checks = append(checks, controller.HealthCheck{Name: "database", Check: app.Storage.Pool.Ping})
	}
	var idempotency middleware.IdempotencyStore
	if app.Redis != nil {
		client := app.Redis
		checks = append(checks, controller.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
		idempotency = infraRedis.NewIdempotencyStore(client)
	}

	router := controller.NewRouter(controller.RouterDeps{
		OrderService:     services.Orders,
		OutboxService:    services.Outbox,
		Metrics:          app.Metrics,
		HealthChecks:     checks,
		Server:           app.Config.Server,
		IdempotencyStore: idempotency,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
	}

	processingDone := make(chan error, 1)
	if processing != nil {
		go func() { processingDone <- processing.Run(ctx) }()
	} else {
		close(processingDone)
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Error().Err(err).Msg("HTTP server failed")
			stop()
		}
	}()

	<-ctx.Done()

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := <-processingDone; err != nil {
		app.Logger.Error().Err(err).Msg("Background processing error")
	}
	app.Logger.Info().Msg("Server exited")
}
