package service

import (
	"context"

	"github.com/cassiomorais/orders/internal/domain/outbox"
	"github.com/cassiomorais/orders/internal/domain/uow"
	"github.com/rs/zerolog"
)

// OutboxService exposes operator actions on the outbox.
type OutboxService struct {
	store     outbox.Store
	txManager uow.Manager
	logger    zerolog.Logger
	opts      options
}

func NewOutboxService(store outbox.Store, txManager uow.Manager, logger zerolog.Logger, opts ...Option) *OutboxService {
	return &OutboxService{store: store, txManager: txManager, logger: logger, opts: newOptions(opts)}
}

func (s *OutboxService) Stats(ctx context.Context) (map[outbox.Status]int64, error) {
	return s.store.Stats(ctx)
}

// Requeue returns a FAILED entry to PENDING with a fresh attempt budget.
func (s *OutboxService) Requeue(ctx context.Context, id int64) error {
	err := uow.Run(ctx, s.txManager, func(ctx context.Context, tx uow.Tx) error {
		return s.store.Requeue(ctx, tx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info().Int64("entry_id", id).Msg("Outbox entry requeued")
	if s.opts.notifier != nil {
		s.opts.notifier.Notify()
	}
	return nil
}
