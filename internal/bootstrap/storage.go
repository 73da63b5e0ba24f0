package bootstrap

import (
	"context"
	"fmt"

	"github.com/cassiomorais/orders/internal/domain/dedup"
	"github.com/cassiomorais/orders/internal/domain/order"
	"github.com/cassiomorais/orders/internal/domain/outbox"
	"github.com/cassiomorais/orders/internal/domain/payment"
	"github.com/cassiomorais/orders/internal/domain/uow"
	"github.com/cassiomorais/orders/internal/infrastructure/config"
	"github.com/cassiomorais/orders/internal/messaging"
	"github.com/cassiomorais/orders/internal/repository/memory"
	"github.com/cassiomorais/orders/internal/repository/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Storage is the persistence backend selected by storage.driver.
type Storage struct {
	TxManager uow.Manager
	Orders    order.Repository
	Payments  payment.Repository
	Outbox    outbox.Store
	Dedup     dedup.Store
	// DeadLetters stores poison messages in the database.
	DeadLetters messaging.DeadLetterSink

	// Pool is nil for the memory driver.
	Pool *pgxpool.Pool
}

func NewStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Storage, error) {
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		db := memory.New()
		logger.Warn().Msg("Using in-memory storage, state is lost on restart")
		return &Storage{
			TxManager:   db,
			Orders:      memory.NewOrderRepository(db),
			Payments:    memory.NewPaymentRepository(db),
			Outbox:      memory.NewOutboxStore(db, cfg.Relay.MaxAttempts),
			Dedup:       memory.NewDedupStore(db, cfg.Dedup.Retention),
			DeadLetters: memory.NewDeadLetterStore(db),
		}, nil

	case config.StoragePostgres:
		pool, err := postgres.NewPool(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		logger.Info().Str("host", cfg.Database.Host).Msg("Connected to PostgreSQL")
		return &Storage{
			TxManager:   postgres.NewTxManager(pool),
			Orders:      postgres.NewOrderRepository(pool),
			Payments:    postgres.NewPaymentRepository(pool),
			Outbox:      postgres.NewOutboxStore(pool, cfg.Relay.MaxAttempts),
			Dedup:       postgres.NewDedupStore(pool, cfg.Dedup.Retention),
			DeadLetters: postgres.NewDeadLetterStore(pool),
			Pool:        pool,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// InProcess reports whether the relay and consumer must run inside the API
// process because no other process can see the storage.
func (s *Storage) InProcess() bool {
	return s.Pool == nil
}

func (s *Storage) Close() error {
	if s.Pool != nil {
		s.Pool.Close()
	}
	return nil
}
