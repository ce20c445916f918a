package service

import (
	"context"
	"fmt"

	"github.com/shinyyama/tailor-backend/internal/events"
	"github.com/shinyyama/tailor-backend/internal/model"
	"github.com/shinyyama/tailor-backend/internal/payment"
	"github.com/shinyyama/tailor-backend/internal/policy"
	"github.com/shinyyama/tailor-backend/internal/repository"
	"go.uber.org/zap"
)

// EscrowService moves custody of a paid order along none -> held -> released
// or refunded. Release and refund are terminal.
type EscrowService interface {
	Release(ctx context.Context, actor policy.Actor, orderID uint64) (*model.Order, int64, error)
	Refund(ctx context.Context, actor policy.Actor, orderID uint64) (*model.Order, int64, error)
	Payment(ctx context.Context, actor policy.Actor, orderID uint64) (*model.Order, error)
	Earnings(ctx context.Context, actor policy.Actor, shopUID string) (*model.ShopEarning, error)
	Revenue(ctx context.Context, actor policy.Actor, q repository.RevenueQuery) ([]repository.RevenueRow, error)
}

type escrowService struct {
	*engine
}

func NewEscrowService(d Deps) EscrowService {
	return &escrowService{engine: newEngine(d)}
}

// Release pays the shop its cost and completes the order in one transaction.
func (s *escrowService) Release(ctx context.Context, actor policy.Actor, orderID uint64) (*model.Order, int64, error) {
	var b outbox
	var payout int64
	o, err := s.Orders.Mutate(ctx, orderID, func(tx repository.OrderTx) error {
		o := tx.Order()
		if !policy.CanPerform(actor, policy.OpReleaseEscrow, o) {
			return ErrUnauthorized
		}
		if o.Payment.EscrowStatus != model.EscrowStatusHeld {
			return fmt.Errorf("%w: escrow is %s", ErrEscrowNotHeld, o.Payment.EscrowStatus)
		}
		switch o.Status {
		case model.OrderStatusDelivered:
			if err := s.apply(ctx, tx, &b, transition{
				to:      model.OrderStatusCompleted,
				trigger: model.TriggerRelease,
				actor:   actor,
				note:    "escrow released to shop",
			}); err != nil {
				return err
			}
		case model.OrderStatusCompleted:
			s.hazard(ctx, "completed_while_held", "order completed while escrow still held",
				zap.Uint64("order_id", o.ID), zap.String("order_number", o.Number))
		default:
			return fmt.Errorf("%w: status %s", ErrOrderNotDelivered, o.Status)
		}
		now := s.Now()
		payout = o.Pricing.ShopCost
		o.Payment.EscrowStatus = model.EscrowStatusReleased
		o.Payment.Status = model.PaymentStatusReleased
		o.Payment.PayoutAmount = payout
		o.Payment.ReleasedAt = &now
		if o.CompletedAt == nil {
			o.CompletedAt = &now
		}
		if err := tx.CreditShop(o.ShopUID, payout); err != nil {
			return fmt.Errorf("credit shop: %w", err)
		}
		b.event(events.TypeEscrowReleased, events.EscrowPayload{
			OrderID:     o.ID,
			OrderNumber: o.Number,
			Status:      string(model.EscrowStatusReleased),
			Amount:      o.Payment.EscrowAmount,
		})
		b.notify(o.ShopUID, "payout_released", "Payout for "+o.Number, fmt.Sprintf("%d fils released", payout), o.ID)
		return nil
	})
	if err != nil {
		s.Metrics.Escrow(ctx, "release", "rejected")
		return nil, 0, mapRepoErr(err)
	}
	s.Metrics.Escrow(ctx, "release", "ok")
	s.flush(ctx, o.Number, &b)

	ref, err := s.Provider.Transfer(ctx, payment.Transfer{
		OrderNumber: o.Number,
		ShopUID:     o.ShopUID,
		Amount:      payout,
		Currency:    o.Pricing.Currency,
	})
	if err != nil {
		s.hazard(ctx, "payout_transfer", "payout transfer failed after release",
			zap.Uint64("order_id", o.ID), zap.String("order_number", o.Number), zap.Error(err))
		return o, payout, nil
	}
	if updated, err := s.storeRef(ctx, o.ID, func(p *model.Payment) { p.PayoutRef = ref }); err == nil {
		o = updated
	}
	return o, payout, nil
}

// Refund returns the held amount to the customer of a cancelled order.
func (s *escrowService) Refund(ctx context.Context, actor policy.Actor, orderID uint64) (*model.Order, int64, error) {
	var b outbox
	var amount int64
	o, err := s.Orders.Mutate(ctx, orderID, func(tx repository.OrderTx) error {
		o := tx.Order()
		if !policy.CanPerform(actor, policy.OpRefundEscrow, o) {
			return ErrUnauthorized
		}
		if o.Payment.EscrowStatus != model.EscrowStatusHeld {
			return fmt.Errorf("%w: escrow is %s", ErrEscrowNotHeld, o.Payment.EscrowStatus)
		}
		if o.Status != model.OrderStatusCancelled {
			return fmt.Errorf("%w: refund needs a cancelled order, status is %s", ErrInvalidTransition, o.Status)
		}
		if err := s.apply(ctx, tx, &b, transition{
			to:      model.OrderStatusRefunded,
			trigger: model.TriggerRefund,
			actor:   actor,
			note:    "escrow refunded to customer",
		}); err != nil {
			return err
		}
		now := s.Now()
		amount = o.Payment.EscrowAmount
		o.Payment.EscrowStatus = model.EscrowStatusRefunded
		o.Payment.Status = model.PaymentStatusRefunded
		o.Payment.RefundAmount = amount
		o.Payment.RefundedAt = &now
		b.event(events.TypeEscrowRefunded, events.EscrowPayload{
			OrderID:     o.ID,
			OrderNumber: o.Number,
			Status:      string(model.EscrowStatusRefunded),
			Amount:      amount,
		})
		return nil
	})
	if err != nil {
		s.Metrics.Escrow(ctx, "refund", "rejected")
		return nil, 0, mapRepoErr(err)
	}
	s.Metrics.Escrow(ctx, "refund", "ok")
	s.flush(ctx, o.Number, &b)

	ref, err := s.Provider.Refund(ctx, payment.Refund{
		OrderNumber: o.Number,
		PaymentRef:  o.Payment.Ref,
		Amount:      amount,
		Currency:    o.Pricing.Currency,
	})
	if err != nil {
		s.hazard(ctx, "refund_transfer", "provider refund failed after escrow refund",
			zap.Uint64("order_id", o.ID), zap.String("order_number", o.Number), zap.Error(err))
		return o, amount, nil
	}
	if updated, err := s.storeRef(ctx, o.ID, func(p *model.Payment) { p.RefundRef = ref }); err == nil {
		o = updated
	}
	return o, amount, nil
}

func (s *escrowService) storeRef(ctx context.Context, orderID uint64, set func(p *model.Payment)) (*model.Order, error) {
	o, err := s.Orders.Mutate(ctx, orderID, func(tx repository.OrderTx) error {
		set(&tx.Order().Payment)
		return nil
	})
	if err != nil {
		s.Logger.Warn("provider reference not stored", zap.Uint64("order_id", orderID), zap.Error(err))
		return nil, err
	}
	return o, nil
}

func (s *escrowService) Payment(ctx context.Context, actor policy.Actor, orderID uint64) (*model.Order, error) {
	o, err := s.Orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if !policy.CanPerform(actor, policy.OpViewPayment, o) {
		return nil, ErrUnauthorized
	}
	return o, nil
}

func (s *escrowService) Earnings(ctx context.Context, actor policy.Actor, shopUID string) (*model.ShopEarning, error) {
	if !policy.CanPerform(actor, policy.OpViewEarnings, nil) {
		return nil, ErrUnauthorized
	}
	if actor.Role == policy.RoleShop {
		shopUID = actor.ID
	}
	if shopUID == "" {
		return nil, fmt.Errorf("%w: shop is required", ErrValidation)
	}
	return s.engine.Earnings.Get(ctx, shopUID)
}

// Revenue sums settled orders per period. Grouping defaults to month.
func (s *escrowService) Revenue(ctx context.Context, actor policy.Actor, q repository.RevenueQuery) ([]repository.RevenueRow, error) {
	if !policy.CanPerform(actor, policy.OpViewRevenue, nil) {
		return nil, ErrUnauthorized
	}
	switch q.GroupBy {
	case "":
		q.GroupBy = repository.GroupByMonth
	case repository.GroupByDay, repository.GroupByMonth, repository.GroupByYear:
	default:
		return nil, fmt.Errorf("%w: groupBy must be day, month or year", ErrValidation)
	}
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return nil, fmt.Errorf("%w: endDate is before startDate", ErrValidation)
	}
	rows, err := s.Reports.Revenue(ctx, q)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return rows, nil
}
