package consumer

import (
	"context"
	"time"

	"github.com/cassiomorais/orders/internal/messaging"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Pool runs a fixed number of workers pulling from one subscriber.
type Pool struct {
	consumer *Consumer
	sub      messaging.Subscriber
	workers  int
	idle     time.Duration
	logger   zerolog.Logger
}

// NewPool creates a pool of workers. idle is the pause after an empty or
// failed receive.
func NewPool(c *Consumer, sub messaging.Subscriber, workers int, idle time.Duration, logger zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if idle <= 0 {
		idle = 100 * time.Millisecond
	}
	return &Pool{consumer: c, sub: sub, workers: workers, idle: idle, logger: logger}
}

// Run blocks until ctx is cancelled. Workers stop receiving as soon as ctx is
// done; deliveries already received are processed to completion, each bounded
// by the consumer's processing timeout plus a short settle window.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info().Int("workers", p.workers).Msg("Consumer pool started")
	defer p.logger.Info().Msg("Consumer pool stopped")

	g, gCtx := errgroup.WithContext(ctx)
	for i := range p.workers {
		g.Go(func() error {
			return p.work(gCtx, i)
		})
	}
	return g.Wait()
}

func (p *Pool) work(ctx context.Context, id int) error {
	log := p.logger.With().Int("worker", id).Logger()
	for {
		if ctx.Err() != nil {
			return nil
		}

		deliveries, err := p.sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Msg("Failed to receive messages")
			p.pause(ctx)
			continue
		}
		if len(deliveries) == 0 {
			p.pause(ctx)
			continue
		}

		inFlight := context.WithoutCancel(ctx)
		for _, d := range deliveries {
			p.consumer.OnMessage(inFlight, d)
		}
	}
}

func (p *Pool) pause(ctx context.Context) {
	t := time.NewTimer(p.idle)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
