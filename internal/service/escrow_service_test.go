package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shinyyama/tailor-backend/internal/events"
	"github.com/shinyyama/tailor-backend/internal/model"
	"github.com/shinyyama/tailor-backend/internal/payment"
	"github.com/shinyyama/tailor-backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingProvider struct {
	payment.Provider
}

func (failingProvider) Transfer(context.Context, payment.Transfer) (string, error) {
	return "", errors.New("provider unavailable")
}

func TestReleaseCompletesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.driveTo(t, model.OrderStatusDelivered)

	_, _, err := f.escrow.Release(ctx, customer, o.ID)
	require.ErrorIs(t, err, ErrUnauthorized)

	released, payout, err := f.escrow.Release(ctx, admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Pricing.ShopCost, payout)
	assert.Equal(t, model.OrderStatusCompleted, released.Status)
	assert.Equal(t, model.EscrowStatusReleased, released.Payment.EscrowStatus)
	assert.Equal(t, model.PaymentStatusReleased, released.Payment.Status)
	assert.Equal(t, payout, released.Payment.PayoutAmount)
	assert.NotNil(t, released.CompletedAt)
	assert.NotNil(t, released.Payment.ReleasedAt)
	assert.True(t, strings.HasPrefix(released.Payment.PayoutRef, "tr_"))
	assert.Contains(t, f.pub.types(), events.TypeEscrowReleased)

	_, _, err = f.escrow.Release(ctx, admin, o.ID)
	require.ErrorIs(t, err, ErrEscrowNotHeld)

	earned, err := f.escrow.Earnings(ctx, shop, "")
	require.NoError(t, err)
	assert.Equal(t, payout, earned.ReleasedFils)
	assert.Equal(t, int64(1), earned.OrderCount)
}

func TestReleaseNeedsDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	unpaid := f.place(t)
	_, _, err := f.escrow.Release(ctx, admin, unpaid.ID)
	require.ErrorIs(t, err, ErrEscrowNotHeld)

	o := f.driveTo(t, model.OrderStatusOutForDelivery)
	_, _, err = f.escrow.Release(ctx, admin, o.ID)
	require.ErrorIs(t, err, ErrOrderNotDelivered)

	stored, err := f.store.Orders().FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EscrowStatusHeld, stored.Payment.EscrowStatus)
	assert.Equal(t, model.OrderStatusOutForDelivery, stored.Status)
}

func TestReleaseTransferFailureKeepsCustody(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Provider = failingProvider{Provider: d.Provider}
	})
	o := f.driveTo(t, model.OrderStatusDelivered)

	released, _, err := f.escrow.Release(context.Background(), admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EscrowStatusReleased, released.Payment.EscrowStatus)
	assert.Empty(t, released.Payment.PayoutRef)
}

func TestConcurrentReleaseAppliesOnce(t *testing.T) {
	f := newFixture(t)
	o := f.driveTo(t, model.OrderStatusDelivered)

	const callers = 12
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = f.escrow.Release(context.Background(), admin, o.ID)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, ErrEscrowNotHeld)
	}
	assert.Equal(t, 1, ok)

	stored, err := f.store.Orders().FindByID(context.Background(), o.ID)
	require.NoError(t, err)
	completed := 0
	for _, e := range stored.Timeline {
		if e.Status == model.OrderStatusCompleted {
			completed++
		}
	}
	assert.Equal(t, 1, completed)

	earned, err := f.escrow.Earnings(context.Background(), admin, shop.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Pricing.ShopCost, earned.ReleasedFils)
}

func TestRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.driveTo(t, model.OrderStatusInProduction)

	_, _, err := f.escrow.Refund(ctx, admin, o.ID)
	require.ErrorIs(t, err, ErrInvalidTransition, "order must be cancelled first")

	_, err = f.orders.Cancel(ctx, customer, o.ID, "wrong size")
	require.NoError(t, err)

	_, _, err = f.escrow.Refund(ctx, customer, o.ID)
	require.ErrorIs(t, err, ErrUnauthorized)

	refunded, amount, err := f.escrow.Refund(ctx, admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Pricing.Total, amount)
	assert.Equal(t, model.OrderStatusRefunded, refunded.Status)
	assert.Equal(t, model.EscrowStatusRefunded, refunded.Payment.EscrowStatus)
	assert.Equal(t, amount, refunded.Payment.RefundAmount)
	assert.True(t, strings.HasPrefix(refunded.Payment.RefundRef, "rf_"))
	assert.Contains(t, f.pub.types(), events.TypeEscrowRefunded)

	_, _, err = f.escrow.Refund(ctx, admin, o.ID)
	require.ErrorIs(t, err, ErrEscrowNotHeld)
	_, _, err = f.escrow.Release(ctx, admin, o.ID)
	require.ErrorIs(t, err, ErrEscrowNotHeld)
}

func TestRefundUnpaidCancelledOrder(t *testing.T) {
	f := newFixture(t)
	o := f.driveTo(t, model.OrderStatusCancelled)

	_, _, err := f.escrow.Refund(context.Background(), admin, o.ID)
	require.ErrorIs(t, err, ErrEscrowNotHeld)
}

func TestPaymentView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.pay(t, f.place(t))

	got, err := f.escrow.Payment(ctx, customer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EscrowStatusHeld, got.Payment.EscrowStatus)

	_, err = f.escrow.Payment(ctx, other, o.ID)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.escrow.Earnings(ctx, customer, shop.ID)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestRevenueGroupsCompletedOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.driveTo(t, model.OrderStatusCompleted)
	second := f.driveTo(t, model.OrderStatusCompleted)
	f.driveTo(t, model.OrderStatusDelivered)

	rows, err := f.escrow.Revenue(ctx, admin, repository.RevenueQuery{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, first.CompletedAt.UTC().Format("2006-01"), rows[0].Period)
	assert.Equal(t, int64(2), rows[0].OrderCount)
	assert.Equal(t, first.Pricing.Total+second.Pricing.Total, rows[0].TotalRevenue)
	assert.Equal(t, first.Pricing.PlatformMargin+second.Pricing.PlatformMargin, rows[0].PlatformRevenue)
	assert.Equal(t, first.Pricing.ShopCost+second.Pricing.ShopCost, rows[0].ShopPayout)

	rows, err = f.escrow.Revenue(ctx, admin, repository.RevenueQuery{GroupBy: repository.GroupByDay})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, first.CompletedAt.UTC().Format("2006-01-02"), rows[0].Period)

	later := first.CompletedAt.Add(time.Hour)
	rows, err = f.escrow.Revenue(ctx, admin, repository.RevenueQuery{From: &later})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRevenueRejectsBadQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.escrow.Revenue(ctx, customer, repository.RevenueQuery{})
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.escrow.Revenue(ctx, shop, repository.RevenueQuery{})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.escrow.Revenue(ctx, admin, repository.RevenueQuery{GroupBy: "week"})
	assert.ErrorIs(t, err, ErrValidation)

	from := time.Now()
	to := from.Add(-time.Hour)
	_, err = f.escrow.Revenue(ctx, admin, repository.RevenueQuery{From: &from, To: &to})
	assert.ErrorIs(t, err, ErrValidation)
}
