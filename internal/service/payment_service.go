package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shinyyama/tailor-backend/internal/events"
	"github.com/shinyyama/tailor-backend/internal/model"
	"github.com/shinyyama/tailor-backend/internal/payment"
	"github.com/shinyyama/tailor-backend/internal/policy"
	"github.com/shinyyama/tailor-backend/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sourcePayment = "payment"

var webhookActor = policy.System("payment-webhook")

type WebhookResult struct {
	Order     *model.Order
	Duplicate bool
}

type PaymentService interface {
	Initiate(ctx context.Context, actor policy.Actor, orderID uint64) (*model.Order, error)
	HandleWebhook(ctx context.Context, ev payment.WebhookEvent) (WebhookResult, error)
}

type paymentService struct {
	*engine
}

func NewPaymentService(d Deps) PaymentService {
	return &paymentService{engine: newEngine(d)}
}

// Initiate opens a provider checkout for the order total. Calling it again
// returns the stored session.
func (s *paymentService) Initiate(ctx context.Context, actor policy.Actor, orderID uint64) (*model.Order, error) {
	o, err := s.Orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if !policy.CanPerform(actor, policy.OpInitiatePayment, o) {
		return nil, ErrUnauthorized
	}
	if o.Status != model.OrderStatusPendingPayment {
		return nil, fmt.Errorf("%w: order is %s", ErrInvalidTransition, o.Status)
	}
	if o.Payment.Ref != "" {
		return o, nil
	}
	session, err := s.Provider.Initiate(ctx, payment.Checkout{
		OrderNumber: o.Number,
		Amount:      o.Pricing.Total,
		Currency:    o.Pricing.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("initiate payment: %w", err)
	}
	o, err = s.Orders.Mutate(ctx, orderID, func(tx repository.OrderTx) error {
		o := tx.Order()
		if o.Payment.Ref != "" {
			return nil
		}
		if o.Status != model.OrderStatusPendingPayment {
			return fmt.Errorf("%w: order is %s", ErrInvalidTransition, o.Status)
		}
		o.Payment.Ref = session.Ref
		o.Payment.CheckoutURL = session.CheckoutURL
		return nil
	})
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return o, nil
}

// HandleWebhook applies a verified provider event. Replays and events for
// orders that already left pending_payment are reported as duplicates, except
// a capture for a cancelled order without custody: that money is held so an
// admin can refund it.
func (s *paymentService) HandleWebhook(ctx context.Context, ev payment.WebhookEvent) (WebhookResult, error) {
	key := ev.DedupKey()
	if key == "" || ev.OrderNumber == "" {
		return WebhookResult{}, fmt.Errorf("%w: eventId and orderNumber are required", ErrValidation)
	}
	if ev.Status != payment.WebhookCompleted && ev.Status != payment.WebhookFailed {
		return WebhookResult{}, fmt.Errorf("%w: unknown payment status %q", ErrValidation, ev.Status)
	}
	current, err := s.Orders.FindByNumber(ctx, ev.OrderNumber)
	if err != nil {
		return WebhookResult{}, mapRepoErr(err)
	}
	if s.Guard.Seen(ctx, sourcePayment, key) {
		return s.duplicate(ctx, current), nil
	}

	var (
		b    outbox
		late bool
	)
	o, err := s.Orders.Mutate(ctx, current.ID, func(tx repository.OrderTx) error {
		o := tx.Order()
		claimed, err := tx.ClaimEvent(sourcePayment, key)
		if err != nil {
			return err
		}
		if !claimed {
			return errDuplicate
		}
		if o.Status == model.OrderStatusCancelled && ev.Status == payment.WebhookCompleted && !o.Payment.HasCustody() {
			late = true
			return s.capture(o, &b, ev)
		}
		if o.Status != model.OrderStatusPendingPayment {
			return errDuplicate
		}
		if ev.Status == payment.WebhookFailed {
			return s.apply(ctx, tx, &b, transition{
				to:      model.OrderStatusPaymentFailed,
				trigger: model.TriggerPayment,
				actor:   webhookActor,
				note:    ev.Reason,
			})
		}
		if ev.Amount != o.Pricing.Total {
			return fmt.Errorf("%w: paid amount %d does not match order total %d", ErrValidation, ev.Amount, o.Pricing.Total)
		}
		if err := s.apply(ctx, tx, &b, transition{
			to:      model.OrderStatusPaymentConfirmed,
			trigger: model.TriggerPayment,
			actor:   webhookActor,
			note:    "payment " + ev.TransactionID,
		}); err != nil {
			return err
		}
		if err := s.capture(o, &b, ev); err != nil {
			s.hazard(ctx, "hold", "escrow hold refused on payment confirmation",
				zap.Uint64("order_id", o.ID), zap.String("escrow_status", string(o.Payment.EscrowStatus)), zap.Error(err))
			return err
		}
		return nil
	})
	switch {
	case errors.Is(err, errDuplicate), errors.Is(err, gorm.ErrDuplicatedKey):
		s.Guard.Remember(ctx, sourcePayment, key)
		fresh, ferr := s.Orders.FindByID(ctx, current.ID)
		if ferr != nil {
			fresh = current
		}
		return s.duplicate(ctx, fresh), nil
	case err != nil:
		if ev.Status == payment.WebhookCompleted && errors.Is(err, ErrValidation) {
			s.Metrics.Escrow(ctx, "hold", "rejected")
		}
		return WebhookResult{}, mapRepoErr(err)
	}
	s.Guard.Remember(ctx, sourcePayment, key)
	if ev.Status == payment.WebhookCompleted {
		s.Metrics.Escrow(ctx, "hold", "ok")
	}
	if late {
		s.hazard(ctx, "late_payment", "payment captured for a cancelled order; escrow held pending refund",
			zap.Uint64("order_id", o.ID),
			zap.String("order_number", o.Number),
			zap.String("transaction_id", ev.TransactionID),
			zap.Int64("amount", o.Payment.EscrowAmount),
		)
	}
	s.flush(ctx, o.Number, &b)
	return WebhookResult{Order: o}, nil
}

// capture records a settled payment and puts its amount into custody.
func (s *paymentService) capture(o *model.Order, b *outbox, ev payment.WebhookEvent) error {
	if ev.Amount != o.Pricing.Total {
		return fmt.Errorf("%w: paid amount %d does not match order total %d", ErrValidation, ev.Amount, o.Pricing.Total)
	}
	if err := s.hold(o, o.Pricing.Total); err != nil {
		return err
	}
	now := s.Now()
	o.Payment.Status = model.PaymentStatusPaid
	o.Payment.TransactionID = ev.TransactionID
	o.Payment.PaidAt = &now
	if o.Payment.Ref == "" {
		o.Payment.Ref = ev.PaymentRef
	}
	b.event(events.TypeEscrowHeld, events.EscrowPayload{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		Status:      string(model.EscrowStatusHeld),
		Amount:      o.Payment.EscrowAmount,
	})
	return nil
}

func (s *paymentService) duplicate(ctx context.Context, o *model.Order) WebhookResult {
	s.Metrics.Duplicate(ctx, sourcePayment)
	s.Logger.Info("duplicate payment webhook ignored",
		zap.Uint64("order_id", o.ID),
		zap.String("order_number", o.Number),
		zap.String("status", string(o.Status)),
	)
	return WebhookResult{Order: o, Duplicate: true}
}
