package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/orders/internal/consumer"
	"github.com/cassiomorais/orders/internal/domain/payment"
	"github.com/cassiomorais/orders/internal/infrastructure/config"
	infraAWS "github.com/cassiomorais/orders/internal/infrastructure/aws"
	infraRedis "github.com/cassiomorais/orders/internal/infrastructure/redis"
	"github.com/cassiomorais/orders/internal/messaging"
	"github.com/cassiomorais/orders/internal/relay"
	"github.com/cassiomorais/orders/internal/service"
	"github.com/cassiomorais/orders/internal/worker"
	"github.com/cassiomorais/orders/pkg/backoff"
)

const relayLockKey = "orders:relay"

// Bus is the transport selected by bus.driver plus the dead-letter sink
// selected by deadletter.driver.
type Bus struct {
	Publisher  messaging.Publisher
	Subscriber messaging.Subscriber
	DeadLetter messaging.DeadLetterSink
}

// NewBus builds the bus clients. The Redis consumer group is created when
// missing.
func (a *App) NewBus(ctx context.Context) (*Bus, error) {
	cfg := a.Config
	bus := &Bus{}

	var clients *infraAWS.Clients
	if cfg.UsesAWS() {
		var err error
		clients, err = infraAWS.NewClients(ctx, &cfg.AWS)
		if err != nil {
			return nil, fmt.Errorf("create aws clients: %w", err)
		}
	}

	var publisher messaging.Publisher
	switch cfg.Bus.Driver {
	case config.BusRedis:
		publisher = infraRedis.NewStreamPublisher(a.Redis, cfg.Bus.MaxLen)
		sub := infraRedis.NewStreamSubscriber(a.Redis, infraRedis.StreamSubscriberConfig{
			Stream:    cfg.Bus.Topic,
			Group:     cfg.Bus.ConsumerGroup,
			Consumer:  cfg.InstanceID,
			BatchSize: cfg.Bus.BatchSize,
			Block:     cfg.Bus.BlockDuration,
			ClaimIdle: cfg.Bus.ClaimIdle,
		})
		if err := sub.CreateGroup(ctx); err != nil {
			return nil, fmt.Errorf("create consumer group: %w", err)
		}
		bus.Subscriber = sub
	case config.BusSNSSQS:
		publisher = infraAWS.NewSNSPublisher(clients.SNS)
		bus.Subscriber = infraAWS.NewSQSSubscriber(clients.SQS, infraAWS.SQSSubscriberConfig{
			QueueURL:          cfg.Bus.Queue,
			MaxMessages:       int32(cfg.Bus.BatchSize),
			WaitTimeSeconds:   cfg.AWS.WaitTimeSeconds,
			VisibilityTimeout: cfg.AWS.VisibilityTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown bus driver %q", cfg.Bus.Driver)
	}

	breaker := messaging.DefaultBreakerSettings("bus-publisher")
	if cfg.Relay.BreakerMinRequests > 0 {
		breaker.MinRequests = cfg.Relay.BreakerMinRequests
	}
	if cfg.Relay.BreakerFailureRatio > 0 {
		breaker.FailureRatio = cfg.Relay.BreakerFailureRatio
	}
	if cfg.Relay.BreakerTimeout > 0 {
		breaker.Timeout = cfg.Relay.BreakerTimeout
	}
	bus.Publisher = messaging.NewBreakerPublisher(publisher, breaker, a.Metrics.BreakerStateChanged)

	switch cfg.DeadLetter.Driver {
	case config.DeadLetterRedis:
		bus.DeadLetter = infraRedis.NewStreamDeadLetterSink(a.Redis, cfg.DeadLetter.Stream)
	case config.DeadLetterPostgres:
		bus.DeadLetter = a.Storage.DeadLetters
	case config.DeadLetterS3:
		bus.DeadLetter = infraAWS.NewS3DeadLetterSink(clients.S3, cfg.DeadLetter.Bucket, cfg.DeadLetter.Prefix)
	default:
		return nil, fmt.Errorf("unknown deadletter driver %q", cfg.DeadLetter.Driver)
	}

	a.Logger.Info().
		Str("bus", cfg.Bus.Driver).
		Str("topic", cfg.Bus.Topic).
		Str("deadletter", cfg.DeadLetter.Driver).
		Msg("Bus ready")
	return bus, nil
}

// Services are the application services shared by HTTP and consumers.
type Services struct {
	Orders   *service.OrderService
	Payments *service.PaymentService
	Outbox   *service.OutboxService
}

// NewServices builds the services. notifier may be nil; the relay passes
// itself so appended events are published without waiting a poll interval.
func (a *App) NewServices(notifier service.Notifier) *Services {
	s := a.Storage
	var opts []service.Option
	if notifier != nil {
		opts = append(opts, service.WithNotifier(notifier))
	}

	authorizer := payment.LimitAuthorizer{Max: a.Config.PaymentLimit()}
	return &Services{
		Orders:   service.NewOrderService(s.Orders, s.Payments, s.Outbox, s.TxManager, a.Logger, opts...),
		Payments: service.NewPaymentService(s.Payments, s.Outbox, authorizer, a.Logger, opts...),
		Outbox:   service.NewOutboxService(s.Outbox, s.TxManager, a.Logger, opts...),
	}
}

// NewRelay builds the outbox relay. With relay.use_lock and Redis available,
// only the instance holding the lease publishes.
func (a *App) NewRelay(bus *Bus) *relay.Relay {
	cfg := a.Config.Relay
	opts := []relay.Option{
		relay.WithLogger(a.Logger),
		relay.WithMetrics(a.Metrics),
	}
	if cfg.UseLock && a.Redis != nil {
		opts = append(opts, relay.WithLocker(infraRedis.NewLock(a.Redis, relayLockKey, a.Config.InstanceID, cfg.LockTTL)))
	}

	return relay.New(a.Storage.Outbox, a.Storage.TxManager, bus.Publisher, relay.Config{
		Topic:          a.Config.Bus.Topic,
		BatchSize:      cfg.BatchSize,
		MaxAttempts:    cfg.MaxAttempts,
		PollInterval:   cfg.PollInterval,
		PublishTimeout: cfg.PublishTimeout,
		Backoff:        backoff.Policy{Base: cfg.BackoffBase, Max: cfg.BackoffMax},
	}, opts...)
}

// NewConsumerPool wires the event handlers into a consumer pool reading bus.
func (a *App) NewConsumerPool(bus *Bus, services *Services) *consumer.Pool {
	registry := consumer.NewRegistry()
	service.RegisterHandlers(registry, services.Orders, services.Payments)

	c := consumer.New(a.Storage.TxManager, a.Storage.Dedup, registry, bus.Subscriber, bus.DeadLetter,
		consumer.WithLogger(a.Logger),
		consumer.WithMetrics(a.Metrics),
		consumer.WithProcessingTimeout(a.Config.Consumer.ProcessingTimeout),
	)
	return consumer.NewPool(c, bus.Subscriber, a.Config.Consumer.Workers, a.Config.Consumer.IdleWait, a.Logger)
}

// NewMaintenance returns the dedup purge and outbox stats workers.
func (a *App) NewMaintenance() []*worker.Periodic {
	return []*worker.Periodic{
		worker.NewPeriodic("dedup-purge", a.Config.Dedup.PurgeInterval, a.Logger,
			worker.PurgeDedup(a.Storage.Dedup, time.Now, a.Metrics, a.Logger)),
		worker.NewPeriodic("outbox-stats", a.Config.Observability.StatsInterval, a.Logger,
			worker.ReportOutboxStats(a.Storage.Outbox, a.Metrics)),
	}
}
