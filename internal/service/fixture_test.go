package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shinyyama/tailor-backend/internal/events"
	"github.com/shinyyama/tailor-backend/internal/model"
	"github.com/shinyyama/tailor-backend/internal/payment"
	"github.com/shinyyama/tailor-backend/internal/policy"
	"github.com/shinyyama/tailor-backend/internal/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	customer = policy.Actor{ID: "cust-1", Role: policy.RoleCustomer}
	other    = policy.Actor{ID: "cust-2", Role: policy.RoleCustomer}
	shop     = policy.Actor{ID: "shop-1", Role: policy.RoleShop}
	rival    = policy.Actor{ID: "shop-2", Role: policy.RoleShop}
	admin    = policy.Actor{ID: "admin-1", Role: policy.RoleAdmin}
	partner  = policy.Actor{ID: "rider-1", Role: policy.RoleDeliveryPartner}
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Envelope
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}

type fixture struct {
	store    *repository.MemoryStore
	pub      *recordingPublisher
	orders   OrderService
	escrow   EscrowService
	payments PaymentService
	delivery DeliveryService
	notes    NotificationService
	design   *model.Design
	webhooks int
}

func newFixture(t *testing.T, opts ...func(*Deps)) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	pub := &recordingPublisher{}
	logger := zap.NewNop()
	notes := NewNotificationService(store.Notifications(), logger)
	d := DepsFromSet(store.Set())
	d.Provider = payment.NewSandboxProvider("https://checkout.test/pay", logger)
	d.Publisher = pub
	d.Notifier = notes
	d.Logger = logger
	d.MaxDeliveryAttempts = 3
	for _, o := range opts {
		o(&d)
	}
	design := &model.Design{
		ShopUID:   shop.ID,
		Title:     "Evening abaya",
		Category:  "abaya",
		ShopTier:  "gold",
		BaseCost:  25000,
		Published: true,
		Options: []model.DesignOption{
			{ID: "embroidery", Label: "Hand embroidery", Cost: 5000},
		},
		WorkshopAddress: model.Address{FullName: "Atelier One", Emirate: "Dubai", Area: "Al Quoz", Street: "4th St"},
	}
	require.NoError(t, store.Designs().Create(context.Background(), design))
	return &fixture{
		store:    store,
		pub:      pub,
		orders:   NewOrderService(d),
		escrow:   NewEscrowService(d),
		payments: NewPaymentService(d),
		delivery: NewDeliveryService(d),
		notes:    notes,
		design:   design,
	}
}

func (f *fixture) place(t *testing.T) *model.Order {
	t.Helper()
	o, err := f.orders.PlaceOrder(context.Background(), customer, PlaceOrderInput{
		DesignID:        f.design.ID,
		Measurements:    map[string]float64{"chest": 92.5},
		DeliveryAddress: model.Address{FullName: "Mariam", Emirate: "Dubai", Area: "Marina"},
		DeliveryZone:    "Z1",
		ItemCount:       1,
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) webhook(o *model.Order) payment.WebhookEvent {
	f.webhooks++
	return payment.WebhookEvent{
		EventID:       fmt.Sprintf("evt-%s-%d", o.Number, f.webhooks),
		TransactionID: "txn-" + o.Number,
		OrderNumber:   o.Number,
		Status:        payment.WebhookCompleted,
		Amount:        o.Pricing.Total,
	}
}

func (f *fixture) pay(t *testing.T, o *model.Order) *model.Order {
	t.Helper()
	res, err := f.payments.HandleWebhook(context.Background(), f.webhook(o))
	require.NoError(t, err)
	require.False(t, res.Duplicate)
	return res.Order
}

func (f *fixture) jobOf(t *testing.T, o *model.Order) *model.DeliveryJob {
	t.Helper()
	require.NotNil(t, o.DeliveryJobID)
	j, err := f.store.Jobs().FindByID(context.Background(), *o.DeliveryJobID)
	require.NoError(t, err)
	return j
}

// driveTo places an order and walks it along the happy path until target.
func (f *fixture) driveTo(t *testing.T, target model.OrderStatus) *model.Order {
	t.Helper()
	ctx := context.Background()
	o := f.place(t)
	if target == model.OrderStatusCancelled {
		o, err := f.orders.Cancel(ctx, customer, o.ID, "changed my mind")
		require.NoError(t, err)
		return o
	}
	steps := []func() (*model.Order, error){
		func() (*model.Order, error) { return f.pay(t, o), nil },
		func() (*model.Order, error) {
			return f.orders.UpdateStatus(ctx, shop, o.ID, model.OrderStatusInReview, "")
		},
		func() (*model.Order, error) {
			return f.orders.UpdateStatus(ctx, shop, o.ID, model.OrderStatusInProduction, "")
		},
		func() (*model.Order, error) {
			return f.orders.UpdateStatus(ctx, shop, o.ID, model.OrderStatusReadyForDelivery, "")
		},
		func() (*model.Order, error) {
			j := f.jobOf(t, o)
			_, err := f.delivery.Assign(ctx, admin, j.ID, partner.ID)
			require.NoError(t, err)
			_, err = f.delivery.Pickup(ctx, partner, j.ID, Callback{CallbackID: "pickup-1"})
			require.NoError(t, err)
			return f.store.Orders().FindByID(ctx, o.ID)
		},
		func() (*model.Order, error) {
			_, err := f.delivery.Deliver(ctx, partner, f.jobOf(t, o).ID, Callback{CallbackID: "deliver-1"}, nil)
			require.NoError(t, err)
			return f.store.Orders().FindByID(ctx, o.ID)
		},
		func() (*model.Order, error) {
			o, _, err := f.escrow.Release(ctx, admin, o.ID)
			return o, err
		},
	}
	for _, step := range steps {
		if o.Status == target {
			return o
		}
		next, err := step()
		require.NoError(t, err)
		o = next
	}
	require.Equal(t, target, o.Status)
	return o
}
