package service

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/cassiomorais/orders/internal/domain/event"
	"github.com/cassiomorais/orders/internal/domain/outbox"
	"github.com/cassiomorais/orders/internal/domain/payment"
	"github.com/cassiomorais/orders/internal/domain/uow"
	"github.com/rs/zerolog"
)

// PaymentService takes the payment for newly created orders.
type PaymentService struct {
	paymentRepo payment.Repository
	outboxStore outbox.Store
	authorizer  payment.Authorizer
	logger      zerolog.Logger
	opts        options
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(
	paymentRepo payment.Repository,
	outboxStore outbox.Store,
	authorizer payment.Authorizer,
	logger zerolog.Logger,
	opts ...Option,
) *PaymentService {
	return &PaymentService{
		paymentRepo: paymentRepo,
		outboxStore: outboxStore,
		authorizer:  authorizer,
		logger:      logger,
		opts:        newOptions(opts),
	}
}

// HandleOrderCreated authorizes the order amount, stores the payment and
// records payment.completed or payment.failed, all inside tx. An order that
// already has a payment is left alone.
func (s *PaymentService) HandleOrderCreated(ctx context.Context, tx uow.Tx, evt *event.Event) error {
	var oc event.OrderCreated
	if err := evt.DecodePayload(&oc); err != nil {
		return err
	}

	// Check first: a failed insert would abort the surrounding transaction.
	existing, err := s.paymentRepo.GetByOrderID(ctx, tx, oc.OrderID)
	switch {
	case err == nil:
		s.logger.Info().
			Str("order_id", oc.OrderID.String()).
			Str("payment_id", existing.ID.String()).
			Msg("Order already has a payment, skipping")
		return nil
	case !errors.Is(err, domainErrors.ErrPaymentNotFound):
		return fmt.Errorf("look up payment: %w", err)
	}

	decision, err := s.authorizer.Authorize(ctx, oc.OrderID, oc.Amount)
	if err != nil {
		return fmt.Errorf("authorize payment: %w", err)
	}

	p, err := payment.NewPayment(oc.OrderID, oc.Amount, decision, s.opts.now())
	if err != nil {
		return err
	}
	if err := s.paymentRepo.Create(ctx, tx, p); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}

	var out *event.Event
	if p.Succeeded() {
		out, err = event.New(event.TypePaymentCompleted, event.PaymentCompleted{
			PaymentID: p.ID,
			OrderID:   p.OrderID,
			Amount:    p.Amount,
		}, p.CreatedAt)
	} else {
		out, err = event.New(event.TypePaymentFailed, event.PaymentFailed{
			PaymentID: p.ID,
			OrderID:   p.OrderID,
			Amount:    p.Amount,
			Reason:    decision.Reason,
		}, p.CreatedAt)
	}
	if err != nil {
		return err
	}
	if _, err := s.outboxStore.Append(ctx, tx, out); err != nil {
		return fmt.Errorf("append payment event: %w", err)
	}

	s.logger.Info().
		Str("order_id", p.OrderID.String()).
		Str("payment_id", p.ID.String()).
		Str("status", string(p.Status)).
		Msg("Payment recorded")
	return nil
}
