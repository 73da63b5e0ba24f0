package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/cassiomorais/orders/internal/infrastructure/config"
	"github.com/cassiomorais/orders/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/orders/internal/infrastructure/redis"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// App holds the process-wide dependencies shared by the API and the worker.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Metrics *observability.Metrics
	Storage *Storage
	// Redis is nil when neither the bus nor the dead-letter sink uses it.
	Redis *redis.Client

	closers []func() error
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info().
		Str("service", serviceName).
		Str("instance_id", cfg.InstanceID).
		Str("storage", cfg.Storage.Driver).
		Str("bus", cfg.Bus.Driver).
		Msg("Starting")

	app := &App{Config: cfg, Logger: logger}

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			app.closers = append(app.closers, func() error {
				return observability.Shutdown(context.Background(), tp)
			})
			logger.Info().Msg("Tracing enabled")
		}
	}

	app.Metrics = observability.NewMetrics(metricsNamespace, nil)
	logger.Info().Msg("Metrics initialized")

	storage, err := NewStorage(ctx, cfg, logger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	app.Storage = storage
	app.closers = append(app.closers, storage.Close)

	if cfg.UsesRedis() {
		client, err := infraRedis.NewClient(ctx, &cfg.Redis, logger)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		app.Redis = client
		app.closers = append(app.closers, client.Close)
		logger.Info().Str("addr", cfg.Redis.RedisAddr()).Msg("Connected to Redis")
	}

	return app, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
