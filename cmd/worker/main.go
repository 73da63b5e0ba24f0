package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/orders/internal/bootstrap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "orders-worker", "orders_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	if app.Storage.InProcess() {
		app.Logger.Error().Msg("The worker needs shared storage, run the API alone with storage.driver=memory")
		return
	}

	processing, err := app.NewProcessing(ctx)
	if err != nil {
		app.Logger.Error().Err(err).Msg("Failed to start worker")
		return
	}

	app.Logger.Info().
		Str("topic", app.Config.Bus.Topic).
		Str("consumer", app.Config.InstanceID).
		Int("workers", app.Config.Consumer.Workers).
		Msg("Worker started")

	if err := processing.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}
