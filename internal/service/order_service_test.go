package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shinyyama/tailor-backend/internal/events"
	"github.com/shinyyama/tailor-backend/internal/model"
	"github.com/shinyyama/tailor-backend/internal/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaceOrderFreezesPricing(t *testing.T) {
	f := newFixture(t)
	o := f.place(t)

	assert.Equal(t, "ORD-00000001", o.Number)
	assert.Equal(t, model.OrderStatusPendingPayment, o.Status)
	assert.Equal(t, shop.ID, o.ShopUID)
	assert.Equal(t, "Atelier One", o.PickupAddress.FullName)
	assert.Equal(t, int64(25000), o.Pricing.ShopCost)
	assert.Equal(t, int64(1500), o.Pricing.DeliveryFee)
	assert.Equal(t, int64(28750), o.Pricing.ItemPrice)
	assert.Equal(t, int64(3750), o.Pricing.PlatformMargin)
	assert.Equal(t, int64(31763), o.Pricing.Total)
	assert.Equal(t, o.Pricing.Subtotal+o.Pricing.DeliveryFee+o.Pricing.VAT, o.Pricing.Total)
	assert.Equal(t, model.EscrowStatusNone, o.Payment.EscrowStatus)
	require.Len(t, o.Timeline, 1)
	assert.Equal(t, model.OrderStatusPendingPayment, o.Timeline[0].Status)
	assert.Contains(t, f.pub.types(), events.TypeOrderCreated)

	second := f.place(t)
	assert.Equal(t, "ORD-00000002", second.Number)
}

func TestPlaceOrderSnapshotsCustomizations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.orders.PlaceOrder(ctx, customer, PlaceOrderInput{
		DesignID:     f.design.ID,
		OptionIDs:    []string{"embroidery", "embroidery"},
		DeliveryZone: "Z2",
		ItemCount:    4,
		Urgency:      "urgent",
	})
	require.NoError(t, err)
	require.Len(t, o.Customizations, 1)
	assert.Equal(t, int64(30000), o.Pricing.ShopCost)
	assert.Equal(t, int64(3500), o.Pricing.DeliveryFee)
	assert.Positive(t, o.Pricing.UrgencyFee)
	assert.Equal(t, o.Pricing.ItemPrice-o.Pricing.ShopCost, o.Pricing.PlatformMargin)

	f.design.Options[0].Cost = 99999
	require.NoError(t, f.store.Designs().Create(ctx, f.design))
	stored, err := f.orders.Get(ctx, customer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), stored.Customizations[0].Cost)
}

func TestPlaceOrderRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hidden := &model.Design{ShopUID: shop.ID, Title: "Draft", BaseCost: 1000}
	require.NoError(t, f.store.Designs().Create(ctx, hidden))

	tests := []struct {
		name  string
		actor policy.Actor
		in    PlaceOrderInput
		want  error
	}{
		{"unknown zone", customer, PlaceOrderInput{DesignID: f.design.ID, DeliveryZone: "Z9"}, ErrPricingUnavailable},
		{"missing design", customer, PlaceOrderInput{DesignID: 404, DeliveryZone: "Z1"}, ErrNotFound},
		{"unpublished design", customer, PlaceOrderInput{DesignID: hidden.ID, DeliveryZone: "Z1"}, ErrNotFound},
		{"shop cannot order", shop, PlaceOrderInput{DesignID: f.design.ID, DeliveryZone: "Z1"}, ErrUnauthorized},
		{"unknown option", customer, PlaceOrderInput{DesignID: f.design.ID, DeliveryZone: "Z1", OptionIDs: []string{"gold-thread"}}, ErrValidation},
		{"negative items", customer, PlaceOrderInput{DesignID: f.design.ID, DeliveryZone: "Z1", ItemCount: -1}, ErrValidation},
		{"unknown urgency", customer, PlaceOrderInput{DesignID: f.design.ID, DeliveryZone: "Z1", Urgency: "tomorrow"}, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orders.PlaceOrder(ctx, tt.actor, tt.in)
			require.ErrorIs(t, err, tt.want)
		})
	}
	list, err := f.orders.List(ctx, admin, "", 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestShopNotAssignedCannotTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.pay(t, f.place(t))
	before := len(o.Timeline)

	_, err := f.orders.UpdateStatus(ctx, rival, o.ID, model.OrderStatusInReview, "")
	require.ErrorIs(t, err, ErrUnauthorized)

	stored, err := f.store.Orders().FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaymentConfirmed, stored.Status)
	assert.Len(t, stored.Timeline, before)
}

func TestShopTransitionRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.pay(t, f.place(t))

	_, err := f.orders.UpdateStatus(ctx, shop, o.ID, model.OrderStatusInProduction, "")
	require.ErrorIs(t, err, ErrInvalidTransition, "skipping in_review")

	_, err = f.orders.UpdateStatus(ctx, shop, o.ID, model.OrderStatusDelivered, "")
	require.ErrorIs(t, err, ErrUnauthorized, "delivery is not a shop transition")

	_, err = f.orders.UpdateStatus(ctx, shop, o.ID, model.OrderStatusCancelled, "")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.orders.UpdateStatus(ctx, customer, o.ID, model.OrderStatusInReview, "")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.orders.UpdateStatus(ctx, shop, o.ID, model.OrderStatus("shipped"), "")
	require.ErrorIs(t, err, ErrValidation)

	o, err = f.orders.UpdateStatus(ctx, shop, o.ID, model.OrderStatusInReview, "measurements checked")
	require.NoError(t, err)
	last := o.Timeline[len(o.Timeline)-1]
	assert.Equal(t, model.OrderStatusInReview, last.Status)
	assert.Equal(t, shop.ID, last.ActorUID)
	assert.Equal(t, string(policy.RoleShop), last.ActorRole)
	assert.False(t, last.Override)
}

func TestReadyForDeliveryCreatesOneJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.driveTo(t, model.OrderStatusReadyForDelivery)

	j := f.jobOf(t, o)
	assert.Equal(t, model.DeliveryJobRequested, j.Status)
	assert.Equal(t, "DL-00000001", j.Number)
	assert.Equal(t, model.DeliveryJobTypeDelivery, j.Type)
	assert.Equal(t, o.Pricing.DeliveryFee, j.Cost)
	assert.Equal(t, o.PickupAddress, j.PickupAddress)
	assert.Equal(t, o.DeliveryAddress, j.DropoffAddress)
	assert.Equal(t, 3, j.MaxAttempts)
	require.Len(t, j.Events, 1)

	_, err := f.orders.UpdateStatus(ctx, admin, o.ID, model.OrderStatusInProduction, "fabric defect found")
	require.NoError(t, err)
	o, err = f.orders.UpdateStatus(ctx, shop, o.ID, model.OrderStatusReadyForDelivery, "")
	require.NoError(t, err)

	jobs, err := f.delivery.ForOrder(ctx, admin, o.ID)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
	assert.Equal(t, j.ID, *o.DeliveryJobID)
}

func TestAdminOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.pay(t, f.place(t))

	_, err := f.orders.UpdateStatus(ctx, admin, o.ID, model.OrderStatusReadyForDelivery, "")
	require.ErrorIs(t, err, ErrValidation, "override without a note")

	o, err = f.orders.UpdateStatus(ctx, admin, o.ID, model.OrderStatusReadyForDelivery, "rush order")
	require.NoError(t, err)
	last := o.Timeline[len(o.Timeline)-1]
	assert.True(t, last.Override)
	assert.True(t, strings.HasPrefix(last.Note, overridePrefix))
	assert.Equal(t, string(policy.RoleAdmin), last.ActorRole)
	assert.NotNil(t, o.DeliveryJobID)

	o, err = f.orders.UpdateStatus(ctx, admin, o.ID, model.OrderStatusInProduction, "back to the workshop")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusInProduction, o.Status)

	o, err = f.orders.UpdateStatus(ctx, admin, o.ID, model.OrderStatusReadyForDelivery, "")
	require.NoError(t, err, "in_production -> ready_for_delivery is a regular admin transition")
	assert.False(t, o.Timeline[len(o.Timeline)-1].Override)
}

func TestOverrideIntoSettlementStatesRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.driveTo(t, model.OrderStatusDelivered)
	before := len(o.Timeline)

	for _, to := range []model.OrderStatus{model.OrderStatusCompleted, model.OrderStatusRefunded, model.OrderStatusPaymentConfirmed} {
		_, err := f.orders.UpdateStatus(ctx, admin, o.ID, to, "force it")
		require.ErrorIs(t, err, ErrInvalidTransition, to)
	}
	stored, err := f.store.Orders().FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusDelivered, stored.Status)
	assert.Equal(t, model.EscrowStatusHeld, stored.Payment.EscrowStatus)
	assert.Nil(t, stored.CompletedAt)
	assert.Len(t, stored.Timeline, before)
}

func TestOverrideOutOfUnpaidOrderRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.place(t)

	_, err := f.orders.UpdateStatus(ctx, admin, o.ID, model.OrderStatusInReview, "manual")
	require.ErrorIs(t, err, ErrInvalidTransition)

	paid := f.pay(t, o)
	assert.Equal(t, model.OrderStatusPaymentConfirmed, paid.Status)
	assert.Equal(t, model.EscrowStatusHeld, paid.Payment.EscrowStatus)
}

func TestCancelMatrix(t *testing.T) {
	tests := []struct {
		status model.OrderStatus
		ok     bool
	}{
		{model.OrderStatusPendingPayment, true},
		{model.OrderStatusPaymentConfirmed, true},
		{model.OrderStatusInReview, true},
		{model.OrderStatusInProduction, true},
		{model.OrderStatusReadyForDelivery, true},
		{model.OrderStatusOutForDelivery, false},
		{model.OrderStatusDelivered, false},
		{model.OrderStatusCompleted, false},
		{model.OrderStatusCancelled, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			f := newFixture(t)
			o := f.driveTo(t, tt.status)
			before := len(o.Timeline)

			got, err := f.orders.Cancel(context.Background(), customer, o.ID, "no longer needed")
			if !tt.ok {
				require.ErrorIs(t, err, ErrOrderNotCancellable)
				stored, ferr := f.store.Orders().FindByID(context.Background(), o.ID)
				require.NoError(t, ferr)
				assert.Equal(t, tt.status, stored.Status)
				assert.Len(t, stored.Timeline, before)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, model.OrderStatusCancelled, got.Status)
			assert.Equal(t, "no longer needed", got.CancelReason)
			require.NotNil(t, got.CancelledAt)
			assert.Len(t, got.Timeline, before+1)
		})
	}
}

func TestCancelRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.driveTo(t, model.OrderStatusReadyForDelivery)

	_, err := f.orders.Cancel(ctx, other, o.ID, "")
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.orders.Cancel(ctx, shop, o.ID, "")
	require.ErrorIs(t, err, ErrUnauthorized)

	o, err = f.orders.UpdateStatus(ctx, admin, o.ID, model.OrderStatusCancelled, "fraud check")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, o.Status)

	j := f.jobOf(t, o)
	assert.Equal(t, model.DeliveryJobCancelled, j.Status)
	assert.NotNil(t, j.CancelledAt)
}

func TestEditAllowList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.pay(t, f.place(t))
	note := "please add a lining"
	shopNote := "lining added"
	eta := time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)

	o, err := f.orders.Edit(ctx, customer, o.ID, OrderPatch{SpecialInstructions: &note})
	require.NoError(t, err)
	assert.Equal(t, note, o.SpecialInstructions)

	_, err = f.orders.Edit(ctx, customer, o.ID, OrderPatch{ShopNotes: &shopNote})
	require.ErrorIs(t, err, ErrValidation)

	o, err = f.orders.Edit(ctx, shop, o.ID, OrderPatch{ShopNotes: &shopNote, EstimatedCompletion: &eta})
	require.NoError(t, err)
	assert.Equal(t, shopNote, o.ShopNotes)
	require.NotNil(t, o.EstimatedCompletion)
	assert.True(t, eta.Equal(*o.EstimatedCompletion))

	_, err = f.orders.Edit(ctx, other, o.ID, OrderPatch{SpecialInstructions: &note})
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.orders.Edit(ctx, customer, o.ID, OrderPatch{})
	require.ErrorIs(t, err, ErrValidation)
}

func TestEditClosedAfterDeliveryStarts(t *testing.T) {
	f := newFixture(t)
	o := f.driveTo(t, model.OrderStatusReadyForDelivery)
	addr := model.Address{FullName: "Mariam", Emirate: "Sharjah"}

	_, err := f.orders.Edit(context.Background(), customer, o.ID, OrderPatch{DeliveryAddress: &addr})
	require.ErrorIs(t, err, ErrValidation)
}

func TestEditAddressStaysInPricedEmirate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.pay(t, f.place(t))

	moved := model.Address{FullName: "Mariam", Emirate: "Abu Dhabi", Area: "Khalifa City"}
	_, err := f.orders.Edit(ctx, customer, o.ID, OrderPatch{DeliveryAddress: &moved})
	require.ErrorIs(t, err, ErrValidation)

	stored, err := f.store.Orders().FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dubai", stored.DeliveryAddress.Emirate)
	assert.Equal(t, "Z1", stored.DeliveryZone)
	assert.Equal(t, o.Pricing.Total, stored.Pricing.Total)

	nearby := model.Address{FullName: "Mariam", Emirate: "dubai", Area: "JLT", Street: "Cluster D"}
	o, err = f.orders.Edit(ctx, customer, o.ID, OrderPatch{DeliveryAddress: &nearby})
	require.NoError(t, err)
	assert.Equal(t, "JLT", o.DeliveryAddress.Area)
	assert.Equal(t, o.Pricing.Total, stored.Pricing.Total)
}

func TestReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.driveTo(t, model.OrderStatusDelivered)

	_, err := f.orders.Review(ctx, customer, o.ID, 5, "lovely")
	require.ErrorIs(t, err, ErrNotReviewable)

	o, _, err = f.escrow.Release(ctx, admin, o.ID)
	require.NoError(t, err)

	_, err = f.orders.Review(ctx, customer, o.ID, 6, "")
	require.ErrorIs(t, err, ErrValidation)
	_, err = f.orders.Review(ctx, other, o.ID, 4, "")
	require.ErrorIs(t, err, ErrUnauthorized)

	o, err = f.orders.Review(ctx, customer, o.ID, 5, "lovely")
	require.NoError(t, err)
	require.NotNil(t, o.Rating)
	assert.Equal(t, 5, *o.Rating)
	assert.NotNil(t, o.ReviewedAt)

	_, err = f.orders.Review(ctx, customer, o.ID, 3, "changed my mind")
	require.ErrorIs(t, err, ErrAlreadyReviewed)
}

func TestListByRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.place(t)
	second := f.place(t)

	mine, err := f.orders.List(ctx, customer, "", 0)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID, "newest first")

	theirs, err := f.orders.List(ctx, other, "", 0)
	require.NoError(t, err)
	assert.Empty(t, theirs)

	assigned, err := f.orders.List(ctx, shop, "", 0)
	require.NoError(t, err)
	assert.Len(t, assigned, 2)

	f.pay(t, first)
	paid, err := f.orders.List(ctx, admin, model.OrderStatusPaymentConfirmed, 0)
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, first.ID, paid[0].ID)

	_, err = f.orders.List(ctx, partner, "", 0)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestGetChecksOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.place(t)

	_, err := f.orders.Get(ctx, other, o.ID)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.orders.Get(ctx, rival, o.ID)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.orders.Get(ctx, customer, 999)
	require.ErrorIs(t, err, ErrNotFound)

	got, err := f.orders.Get(ctx, shop, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Number, got.Number)
}

func TestTimelineGrowsByOnePerTransition(t *testing.T) {
	f := newFixture(t)
	o := f.driveTo(t, model.OrderStatusCompleted)

	want := []model.OrderStatus{
		model.OrderStatusPendingPayment,
		model.OrderStatusPaymentConfirmed,
		model.OrderStatusInReview,
		model.OrderStatusInProduction,
		model.OrderStatusReadyForDelivery,
		model.OrderStatusOutForDelivery,
		model.OrderStatusDelivered,
		model.OrderStatusCompleted,
	}
	require.Len(t, o.Timeline, len(want))
	for i, e := range o.Timeline {
		assert.Equal(t, i+1, e.Seq)
		assert.Equal(t, want[i], e.Status)
		assert.NotZero(t, e.ID)
		if i > 0 {
			assert.False(t, e.CreatedAt.Before(o.Timeline[i-1].CreatedAt))
		}
	}
	assert.NotNil(t, o.CompletedAt)
}

func TestNotificationsFollowTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.pay(t, f.place(t))

	list, unread, err := f.notes.List(ctx, customer.ID, true, 0)
	require.NoError(t, err)
	require.NotEmpty(t, list)
	assert.Equal(t, int64(len(list)), unread)

	require.NoError(t, f.notes.MarkByOrder(ctx, customer.ID, o.ID))
	_, unread, err = f.notes.List(ctx, customer.ID, true, 0)
	require.NoError(t, err)
	assert.Zero(t, unread)
}
