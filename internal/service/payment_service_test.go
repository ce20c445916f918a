package service

import (
	"context"
	"testing"

	"github.com/shinyyama/tailor-backend/internal/events"
	"github.com/shinyyama/tailor-backend/internal/model"
	"github.com/shinyyama/tailor-backend/internal/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryGuard struct {
	seen map[string]bool
}

func (g *memoryGuard) Seen(_ context.Context, source, id string) bool {
	return g.seen[source+"/"+id]
}

func (g *memoryGuard) Remember(_ context.Context, source, id string) {
	g.seen[source+"/"+id] = true
}

func TestWebhookConfirmsAndHolds(t *testing.T) {
	f := newFixture(t)
	o := f.place(t)

	res, err := f.payments.HandleWebhook(context.Background(), f.webhook(o))
	require.NoError(t, err)
	require.False(t, res.Duplicate)
	got := res.Order
	assert.Equal(t, model.OrderStatusPaymentConfirmed, got.Status)
	assert.Equal(t, model.PaymentStatusPaid, got.Payment.Status)
	assert.Equal(t, model.EscrowStatusHeld, got.Payment.EscrowStatus)
	assert.Equal(t, o.Pricing.Total, got.Payment.EscrowAmount)
	assert.Equal(t, "txn-"+o.Number, got.Payment.TransactionID)
	assert.NotNil(t, got.Payment.PaidAt)
	require.Len(t, got.Timeline, 2)
	assert.Equal(t, "system", got.Timeline[1].ActorRole)
	assert.Contains(t, f.pub.types(), events.TypeEscrowHeld)
}

func TestWebhookReplayIsIdempotent(t *testing.T) {
	for _, name := range []string{"db", "redis"} {
		t.Run(name, func(t *testing.T) {
			guard := &memoryGuard{seen: map[string]bool{}}
			f := newFixture(t, func(d *Deps) {
				if name == "redis" {
					d.Guard = guard
				}
			})
			ctx := context.Background()
			o := f.place(t)
			ev := f.webhook(o)

			first, err := f.payments.HandleWebhook(ctx, ev)
			require.NoError(t, err)
			require.False(t, first.Duplicate)

			replay, err := f.payments.HandleWebhook(ctx, ev)
			require.NoError(t, err)
			assert.True(t, replay.Duplicate)
			assert.Equal(t, model.OrderStatusPaymentConfirmed, replay.Order.Status)
			assert.Equal(t, model.EscrowStatusHeld, replay.Order.Payment.EscrowStatus)
			assert.Len(t, replay.Order.Timeline, len(first.Order.Timeline))

			if name == "redis" {
				assert.True(t, guard.seen[sourcePayment+"/"+ev.EventID])
			}
		})
	}
}

func TestWebhookForSettledOrderIsDuplicate(t *testing.T) {
	f := newFixture(t)
	o := f.pay(t, f.place(t))

	res, err := f.payments.HandleWebhook(context.Background(), f.webhook(o))
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Len(t, res.Order.Timeline, len(o.Timeline))
	assert.Equal(t, o.Payment.EscrowAmount, res.Order.Payment.EscrowAmount)
}

func TestWebhookAfterCancelHoldsForRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.driveTo(t, model.OrderStatusCancelled)
	ev := f.webhook(o)

	res, err := f.payments.HandleWebhook(ctx, ev)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, model.OrderStatusCancelled, res.Order.Status)
	assert.Equal(t, model.PaymentStatusPaid, res.Order.Payment.Status)
	assert.Equal(t, model.EscrowStatusHeld, res.Order.Payment.EscrowStatus)
	assert.Equal(t, o.Pricing.Total, res.Order.Payment.EscrowAmount)
	assert.Len(t, res.Order.Timeline, len(o.Timeline))
	assert.Contains(t, f.pub.types(), events.TypeEscrowHeld)

	replay, err := f.payments.HandleWebhook(ctx, ev)
	require.NoError(t, err)
	assert.True(t, replay.Duplicate)
	assert.Equal(t, o.Pricing.Total, replay.Order.Payment.EscrowAmount)

	refunded, amount, err := f.escrow.Refund(ctx, admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Pricing.Total, amount)
	assert.Equal(t, model.OrderStatusRefunded, refunded.Status)
	assert.Equal(t, model.EscrowStatusRefunded, refunded.Payment.EscrowStatus)
}

func TestWebhookAfterCancelRejectsWrongAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.driveTo(t, model.OrderStatusCancelled)
	ev := f.webhook(o)
	ev.Amount = o.Pricing.Total + 1

	_, err := f.payments.HandleWebhook(ctx, ev)
	require.ErrorIs(t, err, ErrValidation)

	stored, err := f.store.Orders().FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EscrowStatusNone, stored.Payment.EscrowStatus)
}

func TestFailedWebhookAfterCancelIsDuplicate(t *testing.T) {
	f := newFixture(t)
	o := f.driveTo(t, model.OrderStatusCancelled)
	ev := f.webhook(o)
	ev.Status = payment.WebhookFailed

	res, err := f.payments.HandleWebhook(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, model.EscrowStatusNone, res.Order.Payment.EscrowStatus)
}

func TestWebhookAmountMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.place(t)
	ev := f.webhook(o)
	ev.Amount = o.Pricing.Total - 100

	_, err := f.payments.HandleWebhook(ctx, ev)
	require.ErrorIs(t, err, ErrValidation)

	stored, err := f.store.Orders().FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPendingPayment, stored.Status)
	assert.Equal(t, model.EscrowStatusNone, stored.Payment.EscrowStatus)

	ev.Amount = o.Pricing.Total
	res, err := f.payments.HandleWebhook(ctx, ev)
	require.NoError(t, err, "a rejected event id is not burned")
	assert.False(t, res.Duplicate)
}

func TestWebhookFailure(t *testing.T) {
	f := newFixture(t)
	o := f.place(t)
	ev := f.webhook(o)
	ev.Status = payment.WebhookFailed
	ev.Reason = "card declined"

	res, err := f.payments.HandleWebhook(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaymentFailed, res.Order.Status)
	assert.Equal(t, model.PaymentStatusFailed, res.Order.Payment.Status)
	assert.Equal(t, model.EscrowStatusNone, res.Order.Payment.EscrowStatus)

	_, err = f.orders.Cancel(context.Background(), customer, o.ID, "")
	require.ErrorIs(t, err, ErrOrderNotCancellable)
}

func TestWebhookValidation(t *testing.T) {
	f := newFixture(t)
	o := f.place(t)
	ctx := context.Background()

	_, err := f.payments.HandleWebhook(ctx, payment.WebhookEvent{OrderNumber: o.Number, Status: payment.WebhookCompleted})
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.payments.HandleWebhook(ctx, payment.WebhookEvent{EventID: "e1", OrderNumber: o.Number, Status: "pending"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.payments.HandleWebhook(ctx, payment.WebhookEvent{EventID: "e1", OrderNumber: "ORD-99999999", Status: payment.WebhookCompleted})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInitiatePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.place(t)

	_, err := f.payments.Initiate(ctx, other, o.ID)
	require.ErrorIs(t, err, ErrUnauthorized)

	first, err := f.payments.Initiate(ctx, customer, o.ID)
	require.NoError(t, err)
	require.NotEmpty(t, first.Payment.Ref)
	assert.Contains(t, first.Payment.CheckoutURL, first.Payment.Ref)

	again, err := f.payments.Initiate(ctx, customer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Payment.Ref, again.Payment.Ref)

	paid := f.pay(t, again)
	assert.Equal(t, first.Payment.Ref, paid.Payment.Ref)
	_, err = f.payments.Initiate(ctx, customer, o.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}
