package bootstrap

import (
	"context"

	"github.com/cassiomorais/orders/internal/relay"
	"golang.org/x/sync/errgroup"
)

// Processing is the background half of the service: the relay, the consumer
// pool and the maintenance workers.
type Processing struct {
	app      *App
	bus      *Bus
	relay    *relay.Relay
	services *Services
}

// NewProcessing builds the bus, the relay and services notified by it.
func (a *App) NewProcessing(ctx context.Context) (*Processing, error) {
	bus, err := a.NewBus(ctx)
	if err != nil {
		return nil, err
	}
	r := a.NewRelay(bus)
	return &Processing{
		app:      a,
		bus:      bus,
		relay:    r,
		services: a.NewServices(r),
	}, nil
}

func (p *Processing) Services() *Services { return p.services }

// Run blocks until ctx is cancelled and every component has stopped.
func (p *Processing) Run(ctx context.Context) error {
	cfg := p.app.Config
	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Relay.Enabled {
		g.Go(func() error { return p.relay.Run(gCtx) })
	} else {
		p.app.Logger.Info().Msg("Outbox relay disabled")
	}

	if cfg.Consumer.Enabled {
		pool := p.app.NewConsumerPool(p.bus, p.services)
		g.Go(func() error { return pool.Run(gCtx) })
	} else {
		p.app.Logger.Info().Msg("Consumers disabled")
	}

	for _, w := range p.app.NewMaintenance() {
		g.Go(func() error { return w.Run(gCtx) })
	}

	return g.Wait()
}
