package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shinyyama/tailor-backend/internal/events"
	"github.com/shinyyama/tailor-backend/internal/idempotency"
	"github.com/shinyyama/tailor-backend/internal/model"
	"github.com/shinyyama/tailor-backend/internal/payment"
	"github.com/shinyyama/tailor-backend/internal/policy"
	"github.com/shinyyama/tailor-backend/internal/pricing"
	"github.com/shinyyama/tailor-backend/internal/repository"
	"github.com/shinyyama/tailor-backend/internal/storage"
	"github.com/shinyyama/tailor-backend/internal/telemetry"
	"go.uber.org/zap"
)

const overridePrefix = "[admin override] "

// Deps is everything the order, escrow, payment and delivery services share.
type Deps struct {
	Orders   repository.OrderRepository
	Jobs     repository.DeliveryJobRepository
	Designs  repository.DesignRepository
	Rules    repository.PricingRuleRepository
	Earnings repository.ShopEarningRepository
	Reports  repository.ReportRepository
	Numbers  NumberSource

	Provider  payment.Provider
	Publisher events.Publisher
	Guard     idempotency.Guard
	Notifier  NotificationService
	Proofs    storage.ProofStore
	Metrics   *telemetry.Metrics
	Logger    *zap.Logger

	Pricing             pricing.Defaults
	MaxDeliveryAttempts int
	Now                 func() time.Time
}

// DepsFromSet fills the repository fields and order numbering from set. The
// caller adds the collaborators.
func DepsFromSet(set repository.Set) Deps {
	return Deps{
		Orders:   set.Orders,
		Jobs:     set.Jobs,
		Designs:  set.Designs,
		Rules:    set.Rules,
		Earnings: set.Earnings,
		Reports:  set.Reports,
		Numbers:  NewSequenceNumbers(set.Sequences),
	}
}

type engine struct {
	Deps
}

func newEngine(d Deps) *engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Publisher == nil {
		d.Publisher = events.NopPublisher{}
	}
	if d.Guard == nil {
		d.Guard = idempotency.NopGuard{}
	}
	if d.Provider == nil {
		d.Provider = payment.NewSandboxProvider("https://checkout.sandbox.local/pay", d.Logger)
	}
	if d.MaxDeliveryAttempts < 1 {
		d.MaxDeliveryAttempts = 3
	}
	if d.Pricing.VATPercent == 0 && d.Pricing.DefaultMarginPercent == 0 {
		d.Pricing = pricing.Defaults{
			VATPercent:           pricing.DefaultVATPercent,
			DefaultMarginPercent: pricing.DefaultMarginPercent,
			UrgentFeePercent:     25,
			ExpressFeePercent:    50,
		}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &engine{Deps: d}
}

// outbox collects what must happen after the order transaction commits.
type outbox struct {
	events      []pendingEvent
	notices     []notice
	transitions []transitionRecord
}

type pendingEvent struct {
	typ     string
	payload any
}

type notice struct {
	userUID string
	typ     string
	title   string
	body    string
	orderID uint64
}

type transitionRecord struct {
	from, to model.OrderStatus
	override bool
}

func (b *outbox) event(typ string, payload any) {
	b.events = append(b.events, pendingEvent{typ: typ, payload: payload})
}

func (b *outbox) notify(uid, typ, title, body string, orderID uint64) {
	b.notices = append(b.notices, notice{userUID: uid, typ: typ, title: title, body: body, orderID: orderID})
}

func (e *engine) flush(ctx context.Context, correlationID string, b *outbox) {
	for _, t := range b.transitions {
		e.Metrics.Transition(ctx, string(t.from), string(t.to), t.override)
	}
	for _, ev := range b.events {
		env, err := events.New(ev.typ, correlationID, ev.payload)
		if err != nil {
			e.Logger.Warn("event not built", zap.String("event_type", ev.typ), zap.Error(err))
			continue
		}
		e.Publisher.Publish(ctx, env)
	}
	if e.Notifier == nil {
		return
	}
	for _, n := range b.notices {
		e.Notifier.Notify(ctx, n.userUID, n.typ, n.title, n.body, n.orderID)
	}
}

// hazard reports a data-integrity problem, distinct from ordinary bad input.
func (e *engine) hazard(ctx context.Context, kind, msg string, fields ...zap.Field) {
	fields = append(fields, zap.Bool("integrity", true), zap.String("kind", kind))
	e.Logger.Error(msg, fields...)
	e.Metrics.Integrity(ctx, kind)
}

type transition struct {
	to       model.OrderStatus
	trigger  model.Trigger
	actor    policy.Actor
	note     string
	override bool
}

// apply moves the locked order to t.to, appends exactly one timeline entry and
// runs the boundary side effects. Nothing is written if it returns an error.
func (e *engine) apply(ctx context.Context, tx repository.OrderTx, b *outbox, t transition) error {
	o := tx.Order()
	from := o.Status
	if t.override {
		if !model.CanOverride(from, t.to) {
			return fmt.Errorf("%w: override %s -> %s", ErrInvalidTransition, from, t.to)
		}
	} else if !model.CanTransition(from, t.to, t.trigger) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, t.to)
	}

	now := e.Now()
	switch t.to {
	case model.OrderStatusReadyForDelivery:
		if err := e.ensureDeliveryJob(tx, b, t.actor); err != nil {
			return err
		}
	case model.OrderStatusCancelled:
		if o.CancelledAt == nil {
			o.CancelledAt = &now
		}
		if err := e.cancelJobs(tx, b, t.actor, now); err != nil {
			return err
		}
	case model.OrderStatusPaymentFailed:
		o.Payment.Status = model.PaymentStatusFailed
	case model.OrderStatusCompleted:
		if o.CompletedAt == nil {
			o.CompletedAt = &now
		}
	}

	note := t.note
	if t.override {
		note = overridePrefix + note
	}
	o.Status = t.to
	o.AppendTimeline(model.TimelineEntry{
		Status:    t.to,
		ActorUID:  t.actor.ID,
		ActorRole: string(t.actor.Role),
		Note:      note,
		Override:  t.override,
		CreatedAt: now,
	})

	b.transitions = append(b.transitions, transitionRecord{from: from, to: t.to, override: t.override})
	b.event(events.TypeOrderStatusChanged, events.OrderStatusPayload{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		From:        string(from),
		To:          string(t.to),
		ActorRole:   string(t.actor.Role),
		Override:    t.override,
	})
	b.notify(o.CustomerUID, "order_status", "Order "+o.Number, statusMessage(t.to), o.ID)
	if t.actor.ID != o.ShopUID {
		b.notify(o.ShopUID, "order_status", "Order "+o.Number, statusMessage(t.to), o.ID)
	}
	e.Logger.Info("order transition",
		zap.Uint64("order_id", o.ID),
		zap.String("order_number", o.Number),
		zap.String("from", string(from)),
		zap.String("to", string(t.to)),
		zap.String("actor_role", string(t.actor.Role)),
		zap.Bool("override", t.override),
	)
	return nil
}

// ensureDeliveryJob creates the order's delivery job unless a live one exists.
// A failed or cancelled job is replaced so an admin can restart delivery.
func (e *engine) ensureDeliveryJob(tx repository.OrderTx, b *outbox, actor policy.Actor) error {
	o := tx.Order()
	jobs, err := tx.Jobs()
	if err != nil {
		return err
	}
	if o.DeliveryJobID != nil {
		for _, j := range jobs {
			if j.ID == *o.DeliveryJobID && j.Status != model.DeliveryJobFailed && j.Status != model.DeliveryJobCancelled {
				return nil
			}
		}
	}
	number, err := nextJobNumber(tx)
	if err != nil {
		return err
	}
	now := e.Now()
	j := &model.DeliveryJob{
		Number:         number,
		Type:           model.DeliveryJobTypeDelivery,
		Status:         model.DeliveryJobRequested,
		PickupAddress:  o.PickupAddress,
		DropoffAddress: o.DeliveryAddress,
		Zone:           o.DeliveryZone,
		Cost:           o.Pricing.DeliveryFee,
		MaxAttempts:    e.MaxDeliveryAttempts,
	}
	j.AppendEvent(model.DeliveryJobEvent{
		Status:    model.DeliveryJobRequested,
		ActorUID:  actor.ID,
		ActorRole: string(actor.Role),
		Note:      "created for order " + o.Number,
		CreatedAt: now,
	})
	if err := tx.AddJob(j); err != nil {
		return fmt.Errorf("create delivery job: %w", err)
	}
	id := j.ID
	o.DeliveryJobID = &id
	o.DeliveryExhausted = false
	b.event(events.TypeDeliveryJobCreated, events.DeliveryPayload{
		OrderID:   o.ID,
		JobNumber: j.Number,
		Status:    string(j.Status),
	})
	return nil
}

func (e *engine) cancelJobs(tx repository.OrderTx, b *outbox, actor policy.Actor, now time.Time) error {
	jobs, err := tx.Jobs()
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if !model.CanAdvanceJob(j.Status, model.DeliveryJobCancelled) {
			continue
		}
		j.Status = model.DeliveryJobCancelled
		j.CancelledAt = &now
		j.AppendEvent(model.DeliveryJobEvent{
			Status:    model.DeliveryJobCancelled,
			ActorUID:  actor.ID,
			ActorRole: string(actor.Role),
			Note:      "order cancelled",
			CreatedAt: now,
		})
		b.event(events.TypeDeliveryStatusChange, events.DeliveryPayload{
			OrderID:   j.OrderID,
			JobNumber: j.Number,
			Status:    string(j.Status),
			Attempts:  j.Attempts,
		})
	}
	return nil
}

// hold puts the paid amount into custody. It runs in the same transaction as
// the payment confirmation.
func (e *engine) hold(o *model.Order, amount int64) error {
	if o.Payment.HasCustody() {
		return ErrAlreadyHeld
	}
	if amount <= 0 {
		return fmt.Errorf("%w: escrow amount must be positive", ErrValidation)
	}
	o.Payment.EscrowStatus = model.EscrowStatusHeld
	o.Payment.EscrowAmount = amount
	return nil
}

func statusMessage(s model.OrderStatus) string {
	switch s {
	case model.OrderStatusPaymentConfirmed:
		return "Payment received"
	case model.OrderStatusPaymentFailed:
		return "Payment failed"
	case model.OrderStatusInReview:
		return "Your order is being reviewed"
	case model.OrderStatusInProduction:
		return "Your order is in production"
	case model.OrderStatusReadyForDelivery:
		return "Your order is ready for delivery"
	case model.OrderStatusOutForDelivery:
		return "Your order is out for delivery"
	case model.OrderStatusDelivered:
		return "Your order was delivered"
	case model.OrderStatusCompleted:
		return "Order completed"
	case model.OrderStatusCancelled:
		return "Order cancelled"
	case model.OrderStatusRefunded:
		return "Payment refunded"
	}
	return string(s)
}
