package service

import (
	"context"
	"fmt"

	domainErrors "github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/cassiomorais/orders/internal/domain/event"
	"github.com/cassiomorais/orders/internal/domain/order"
	"github.com/cassiomorais/orders/internal/domain/outbox"
	"github.com/cassiomorais/orders/internal/domain/payment"
	"github.com/cassiomorais/orders/internal/domain/uow"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// OrderService handles order placement and reacts to payment outcomes.
type OrderService struct {
	orderRepo   order.Repository
	paymentRepo payment.Repository
	outboxStore outbox.Store
	txManager   uow.Manager
	logger      zerolog.Logger
	opts        options
}

// NewOrderService creates a new OrderService.
func NewOrderService(
	orderRepo order.Repository,
	paymentRepo payment.Repository,
	outboxStore outbox.Store,
	txManager uow.Manager,
	logger zerolog.Logger,
	opts ...Option,
) *OrderService {
	return &OrderService{
		orderRepo:   orderRepo,
		paymentRepo: paymentRepo,
		outboxStore: outboxStore,
		txManager:   txManager,
		logger:      logger,
		opts:        newOptions(opts),
	}
}

// PlaceOrder creates an order and records order.created in the same unit of
// work.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*order.Order, error) {
	o, err := order.NewOrder(req.Product, req.Amount, s.opts.now())
	if err != nil {
		return nil, err
	}

	evt, err := event.New(event.TypeOrderCreated, event.OrderCreated{
		OrderID: o.ID,
		Product: o.Product,
		Amount:  o.Amount,
	}, o.CreatedAt)
	if err != nil {
		return nil, err
	}

	err = uow.Run(ctx, s.txManager, func(ctx context.Context, tx uow.Tx) error {
		if err := s.orderRepo.Create(ctx, tx, o); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if _, err := s.outboxStore.Append(ctx, tx, evt); err != nil {
			return fmt.Errorf("append order event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("order_id", o.ID.String()).
		Str("event_id", evt.ID.String()).
		Msg("Order placed")

	if s.opts.notifier != nil {
		s.opts.notifier.Notify()
	}
	return o, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return s.orderRepo.GetByID(ctx, nil, id)
}

// GetPayment returns the payment taken for an order.
func (s *OrderService) GetPayment(ctx context.Context, orderID uuid.UUID) (*payment.Payment, error) {
	if _, err := s.orderRepo.GetByID(ctx, nil, orderID); err != nil {
		return nil, err
	}
	return s.paymentRepo.GetByOrderID(ctx, nil, orderID)
}

// HandlePaymentCompleted completes the order paid by a payment.completed event.
func (s *OrderService) HandlePaymentCompleted(ctx context.Context, tx uow.Tx, evt *event.Event) error {
	var p event.PaymentCompleted
	if err := evt.DecodePayload(&p); err != nil {
		return err
	}
	return s.transition(ctx, tx, p.OrderID, order.StatusCompleted)
}

// HandlePaymentFailed cancels the order named by a payment.failed event.
func (s *OrderService) HandlePaymentFailed(ctx context.Context, tx uow.Tx, evt *event.Event) error {
	var p event.PaymentFailed
	if err := evt.DecodePayload(&p); err != nil {
		return err
	}
	return s.transition(ctx, tx, p.OrderID, order.StatusCancelled)
}

func (s *OrderService) transition(ctx context.Context, tx uow.Tx, orderID uuid.UUID, status order.Status) error {
	if orderID == uuid.Nil {
		return domainErrors.NewValidationError("order_id", "is required")
	}

	o, err := s.orderRepo.GetByID(ctx, tx, orderID)
	if err != nil {
		return err
	}

	changed, err := o.TransitionTo(status, s.opts.now())
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	if err := s.orderRepo.Update(ctx, tx, o); err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	s.logger.Info().
		Str("order_id", o.ID.String()).
		Str("status", string(o.Status)).
		Msg("Order status changed")
	return nil
}
