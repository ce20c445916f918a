package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shinyyama/tailor-backend/internal/events"
	"github.com/shinyyama/tailor-backend/internal/model"
	"github.com/shinyyama/tailor-backend/internal/policy"
	"github.com/shinyyama/tailor-backend/internal/pricing"
	"github.com/shinyyama/tailor-backend/internal/repository"
	"go.uber.org/zap"
)

type PlaceOrderInput struct {
	DesignID            uint64
	OptionIDs           []string
	Measurements        map[string]float64
	DeliveryAddress     model.Address
	DeliveryZone        string
	ItemCount           int
	Urgency             string
	SpecialInstructions string
}

// OrderPatch carries the fields a caller asked to change. Nil means untouched.
type OrderPatch struct {
	SpecialInstructions *string
	DeliveryAddress     *model.Address
	ShopNotes           *string
	EstimatedCompletion *time.Time
}

func (p OrderPatch) fields() []string {
	var f []string
	if p.SpecialInstructions != nil {
		f = append(f, policy.FieldSpecialInstructions)
	}
	if p.DeliveryAddress != nil {
		f = append(f, policy.FieldDeliveryAddress)
	}
	if p.ShopNotes != nil {
		f = append(f, policy.FieldShopNotes)
	}
	if p.EstimatedCompletion != nil {
		f = append(f, policy.FieldEstimatedCompletion)
	}
	return f
}

type OrderService interface {
	PlaceOrder(ctx context.Context, actor policy.Actor, in PlaceOrderInput) (*model.Order, error)
	Get(ctx context.Context, actor policy.Actor, id uint64) (*model.Order, error)
	List(ctx context.Context, actor policy.Actor, status model.OrderStatus, limit int) ([]model.Order, error)
	UpdateStatus(ctx context.Context, actor policy.Actor, id uint64, to model.OrderStatus, note string) (*model.Order, error)
	Cancel(ctx context.Context, actor policy.Actor, id uint64, reason string) (*model.Order, error)
	Edit(ctx context.Context, actor policy.Actor, id uint64, patch OrderPatch) (*model.Order, error)
	Review(ctx context.Context, actor policy.Actor, id uint64, rating int, comment string) (*model.Order, error)
}

type orderService struct {
	*engine
}

func NewOrderService(d Deps) OrderService {
	return &orderService{engine: newEngine(d)}
}

func (s *orderService) PlaceOrder(ctx context.Context, actor policy.Actor, in PlaceOrderInput) (*model.Order, error) {
	if !policy.CanPerform(actor, policy.OpPlaceOrder, nil) {
		return nil, ErrUnauthorized
	}
	if in.ItemCount == 0 {
		in.ItemCount = 1
	}
	if in.DeliveryZone == "" {
		return nil, fmt.Errorf("%w: deliveryZone is required", ErrValidation)
	}
	design, err := s.Designs.FindByID(ctx, in.DesignID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if !design.Published {
		return nil, ErrNotFound
	}

	customizations := make([]model.Customization, 0, len(in.OptionIDs))
	var optionsCost int64
	seen := map[string]bool{}
	for _, id := range in.OptionIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		opt, ok := design.Option(id)
		if !ok {
			return nil, fmt.Errorf("%w: unknown customization %q", ErrValidation, id)
		}
		customizations = append(customizations, model.Customization{OptionID: opt.ID, Label: opt.Label, Cost: opt.Cost})
		optionsCost += opt.Cost
	}

	rows, err := s.Rules.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	table, err := pricing.NewRuleTable(rows, s.Pricing)
	if err != nil {
		s.hazard(ctx, "pricing_rules", "pricing rule table rejected", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrPricingUnavailable, err)
	}
	urgency := pricing.Urgency(strings.ToLower(in.Urgency))
	if urgency == "" {
		urgency = pricing.UrgencyNormal
	}
	br, err := pricing.NewCalculator(table).Compute(pricing.Input{
		DesignBaseCost:     design.BaseCost,
		CustomizationsCost: optionsCost,
		Zone:               in.DeliveryZone,
		ItemCount:          in.ItemCount,
		Urgency:            urgency,
		Category:           design.Category,
		ShopTier:           design.ShopTier,
	})
	if err != nil {
		if errors.Is(err, pricing.ErrInvalidInput) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return nil, err
	}

	number, err := s.Numbers.OrderNumber(ctx)
	if err != nil {
		return nil, err
	}
	measurements := make(map[string]float64, len(in.Measurements))
	for k, v := range in.Measurements {
		measurements[k] = v
	}
	now := s.Now()
	o := &model.Order{
		Number:              number,
		CustomerUID:         actor.ID,
		ShopUID:             design.ShopUID,
		DesignID:            design.ID,
		Category:            design.Category,
		ShopTier:            design.ShopTier,
		Customizations:      customizations,
		Measurements:        measurements,
		DeliveryAddress:     in.DeliveryAddress,
		PickupAddress:       design.WorkshopAddress,
		DeliveryZone:        in.DeliveryZone,
		ItemCount:           in.ItemCount,
		Urgency:             string(urgency),
		SpecialInstructions: in.SpecialInstructions,
		Status:              model.OrderStatusPendingPayment,
		Pricing: model.Pricing{
			ItemPrice:      br.ItemPrice,
			ShopCost:       br.ShopCost,
			DeliveryFee:    br.DeliveryFee,
			UrgencyFee:     br.UrgencyFee,
			Subtotal:       br.Subtotal,
			VAT:            br.VAT,
			VATPercent:     br.VATPercent,
			Total:          br.Total,
			PlatformMargin: br.PlatformMargin,
			MarginRuleID:   br.MarginRuleID,
			Currency:       br.Currency,
		},
		Payment: model.Payment{
			Status:       model.PaymentStatusPending,
			EscrowStatus: model.EscrowStatusNone,
		},
	}
	o.AppendTimeline(model.TimelineEntry{
		Status:    model.OrderStatusPendingPayment,
		ActorUID:  actor.ID,
		ActorRole: string(actor.Role),
		Note:      "order placed",
		CreatedAt: now,
	})
	if err := s.Orders.Create(ctx, o); err != nil {
		return nil, err
	}

	s.Metrics.OrderCreated(ctx, o.DeliveryZone)
	var b outbox
	b.event(events.TypeOrderCreated, events.OrderStatusPayload{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		To:          string(o.Status),
		ActorRole:   string(actor.Role),
	})
	b.notify(o.ShopUID, "order_placed", "New order "+o.Number, "A new order is awaiting payment", o.ID)
	s.flush(ctx, o.Number, &b)
	s.Logger.Info("order placed",
		zap.Uint64("order_id", o.ID),
		zap.String("order_number", o.Number),
		zap.Int64("total", o.Pricing.Total),
	)
	return o, nil
}

func (s *orderService) Get(ctx context.Context, actor policy.Actor, id uint64) (*model.Order, error) {
	o, err := s.Orders.FindByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if !policy.CanPerform(actor, policy.OpViewOrder, o) {
		return nil, ErrUnauthorized
	}
	return o, nil
}

func (s *orderService) List(ctx context.Context, actor policy.Actor, status model.OrderStatus, limit int) ([]model.Order, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	f := repository.OrderFilter{Status: status, Limit: limit}
	switch actor.Role {
	case policy.RoleCustomer:
		f.CustomerUID = actor.ID
	case policy.RoleShop:
		f.ShopUID = actor.ID
	case policy.RoleAdmin:
	default:
		return nil, ErrUnauthorized
	}
	if actor.ID == "" {
		return nil, ErrUnauthorized
	}
	return s.Orders.List(ctx, f)
}

// UpdateStatus is the role-gated status endpoint. Shops drive production,
// customers may only cancel, and admins may follow the table or override it.
func (s *orderService) UpdateStatus(ctx context.Context, actor policy.Actor, id uint64, to model.OrderStatus, note string) (*model.Order, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, to)
	}
	if to == model.OrderStatusCancelled {
		return s.Cancel(ctx, actor, id, note)
	}
	switch actor.Role {
	case policy.RoleShop, policy.RoleAdmin:
	default:
		return nil, ErrUnauthorized
	}

	var b outbox
	o, err := s.Orders.Mutate(ctx, id, func(tx repository.OrderTx) error {
		o := tx.Order()
		if !policy.CanPerform(actor, policy.OpAdvanceProduction, o) {
			return ErrUnauthorized
		}
		trigger, inTable := model.TransitionTrigger(o.Status, to)
		if inTable && trigger == model.TriggerProduction {
			return s.apply(ctx, tx, &b, transition{to: to, trigger: trigger, actor: actor, note: note})
		}
		if actor.Role == policy.RoleShop {
			return s.shopRefusal(to, o.Status)
		}
		return s.override(ctx, tx, &b, actor, to, note)
	})
	if err != nil {
		return nil, mapRepoErr(err)
	}
	s.flush(ctx, o.Number, &b)
	return o, nil
}

func (s *orderService) shopRefusal(to, from model.OrderStatus) error {
	switch to {
	case model.OrderStatusInReview, model.OrderStatusInProduction, model.OrderStatusReadyForDelivery:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return ErrUnauthorized
}

func (s *orderService) override(ctx context.Context, tx repository.OrderTx, b *outbox, actor policy.Actor, to model.OrderStatus, note string) error {
	o := tx.Order()
	if to == model.OrderStatusCompleted {
		s.hazard(ctx, "override_completed", "override into completed refused; completion requires escrow release",
			zap.Uint64("order_id", o.ID),
			zap.String("order_number", o.Number),
			zap.String("from", string(o.Status)),
			zap.String("actor_uid", actor.ID),
			zap.String("escrow_status", string(o.Payment.EscrowStatus)),
		)
		return fmt.Errorf("%w: %s -> %s requires escrow release", ErrInvalidTransition, o.Status, to)
	}
	if strings.TrimSpace(note) == "" {
		return fmt.Errorf("%w: an override needs a note", ErrValidation)
	}
	return s.apply(ctx, tx, b, transition{to: to, actor: actor, note: note, override: true})
}

func (s *orderService) Cancel(ctx context.Context, actor policy.Actor, id uint64, reason string) (*model.Order, error) {
	var b outbox
	o, err := s.Orders.Mutate(ctx, id, func(tx repository.OrderTx) error {
		o := tx.Order()
		if !policy.CanPerform(actor, policy.OpCancel, o) {
			return ErrUnauthorized
		}
		if !o.Status.Cancellable() {
			return fmt.Errorf("%w: status %s", ErrOrderNotCancellable, o.Status)
		}
		if err := s.apply(ctx, tx, &b, transition{
			to:      model.OrderStatusCancelled,
			trigger: model.TriggerCancel,
			actor:   actor,
			note:    reason,
		}); err != nil {
			return err
		}
		o.CancelReason = reason
		return nil
	})
	if err != nil {
		return nil, mapRepoErr(err)
	}
	s.flush(ctx, o.Number, &b)
	return o, nil
}

func (s *orderService) Edit(ctx context.Context, actor policy.Actor, id uint64, patch OrderPatch) (*model.Order, error) {
	fields := patch.fields()
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: nothing to update", ErrValidation)
	}
	o, err := s.Orders.Mutate(ctx, id, func(tx repository.OrderTx) error {
		o := tx.Order()
		if !policy.CanPerform(actor, policy.OpEditOrder, o) {
			return ErrUnauthorized
		}
		allowed := policy.EditableFields(actor.Role, o.Status)
		for _, f := range fields {
			if !allowed[f] {
				return fmt.Errorf("%w: %s cannot be changed in status %s", ErrValidation, f, o.Status)
			}
		}
		if patch.SpecialInstructions != nil {
			o.SpecialInstructions = *patch.SpecialInstructions
		}
		if patch.DeliveryAddress != nil {
			// Zone and delivery fee were priced for the original emirate.
			if !sameEmirate(o.DeliveryAddress.Emirate, patch.DeliveryAddress.Emirate) {
				return fmt.Errorf("%w: deliveryAddress cannot move to another emirate", ErrValidation)
			}
			o.DeliveryAddress = *patch.DeliveryAddress
		}
		if patch.ShopNotes != nil {
			o.ShopNotes = *patch.ShopNotes
		}
		if patch.EstimatedCompletion != nil {
			t := *patch.EstimatedCompletion
			o.EstimatedCompletion = &t
		}
		return nil
	})
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return o, nil
}

func sameEmirate(stored, next string) bool {
	stored = strings.TrimSpace(stored)
	return stored == "" || strings.EqualFold(stored, strings.TrimSpace(next))
}

func (s *orderService) Review(ctx context.Context, actor policy.Actor, id uint64, rating int, comment string) (*model.Order, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrValidation)
	}
	var b outbox
	o, err := s.Orders.Mutate(ctx, id, func(tx repository.OrderTx) error {
		o := tx.Order()
		if !policy.CanPerform(actor, policy.OpReview, o) {
			return ErrUnauthorized
		}
		if o.Status != model.OrderStatusCompleted {
			return ErrNotReviewable
		}
		if o.Rating != nil {
			return ErrAlreadyReviewed
		}
		now := s.Now()
		r := rating
		o.Rating = &r
		o.ReviewComment = comment
		o.ReviewedAt = &now
		b.notify(o.ShopUID, "order_reviewed", "Order "+o.Number+" was reviewed", fmt.Sprintf("Rating: %d/5", rating), o.ID)
		return nil
	})
	if err != nil {
		return nil, mapRepoErr(err)
	}
	s.flush(ctx, o.Number, &b)
	return o, nil
}
