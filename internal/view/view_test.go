package view

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shinyyama/tailor-backend/internal/model"
	"github.com/shinyyama/tailor-backend/internal/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var shopOnlyKeys = []string{
	"shopUid", "shopCost", "platformMargin", "payoutAmount", "payoutRef", "pickupAddress",
	"shopNotes", "shopTier", "actorUid", "partnerUid", "marginRuleId", "cost",
}

func fullOrder(status model.OrderStatus) *model.Order {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	jobID := uint64(4)
	rating := 5
	o := &model.Order{
		ID:             1,
		Number:         "ORD-00000001",
		CustomerUID:    "cust-1",
		ShopUID:        "shop-1",
		DesignID:       9,
		Category:       "abaya",
		ShopTier:       "gold",
		Customizations: []model.Customization{{OptionID: "lining", Label: "Silk lining", Cost: 4000}},
		Measurements:   map[string]float64{"chest": 92},
		DeliveryAddress: model.Address{
			FullName: "Customer", Emirate: "Dubai", Area: "Marina",
		},
		PickupAddress: model.Address{FullName: "Atelier Noor", Emirate: "Sharjah", Area: "Al Qasba"},
		DeliveryZone:  "Z1",
		ItemCount:     1,
		Urgency:       "normal",
		ShopNotes:     "use the blue thread",
		Status:        status,
		Pricing: model.Pricing{
			ItemPrice: 28750, ShopCost: 25000, DeliveryFee: 1500, Subtotal: 28750, VAT: 1513,
			VATPercent: 5, Total: 31763, PlatformMargin: 3750, MarginRuleID: 3, Currency: "AED",
		},
		Payment: model.Payment{
			Ref: "pay_1", Status: model.PaymentStatusPaid, EscrowStatus: model.EscrowStatusHeld,
			EscrowAmount: 31763, PayoutAmount: 25000, PayoutRef: "tr_1", PaidAt: &now, ReleasedAt: &now,
		},
		DeliveryJobID: &jobID,
		Rating:        &rating,
		CompletedAt:   &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	o.AppendTimeline(model.TimelineEntry{Status: status, ActorUID: "shop-1", ActorRole: "shop", Note: "moved", CreatedAt: now})
	return o
}

func collectKeys(t *testing.T, v any) map[string]bool {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	var decoded any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	keys := map[string]bool{}
	var walk func(any)
	walk = func(n any) {
		switch x := n.(type) {
		case map[string]any:
			for k, child := range x {
				keys[k] = true
				walk(child)
			}
		case []any:
			for _, child := range x {
				walk(child)
			}
		}
	}
	walk(decoded)
	return keys
}

func TestCustomerOrderViewHidesShop(t *testing.T) {
	callers := []policy.Actor{
		{ID: "cust-1", Role: policy.RoleCustomer},
		{ID: "rider-1", Role: policy.RoleDeliveryPartner},
		{},
	}
	for _, status := range model.AllOrderStatuses {
		for _, a := range callers {
			keys := collectKeys(t, Order(a, fullOrder(status)))
			for _, k := range shopOnlyKeys {
				assert.False(t, keys[k], "status=%s role=%q leaked %s", status, a.Role, k)
			}
			assert.True(t, keys["orderNumber"])
			assert.True(t, keys["total"])
		}
	}
}

func TestStaffOrderViewKeepsFidelity(t *testing.T) {
	o := fullOrder(model.OrderStatusInProduction)
	for _, role := range []policy.Role{policy.RoleShop, policy.RoleAdmin} {
		v, ok := Order(policy.Actor{ID: "x", Role: role}, o).(StaffOrderView)
		require.True(t, ok)
		assert.Equal(t, "shop-1", v.ShopUID)
		assert.Equal(t, int64(25000), v.Pricing.ShopCost)
		assert.Equal(t, int64(3750), v.Pricing.PlatformMargin)
		assert.Equal(t, "Al Qasba", v.PickupAddress.Area)
		assert.Equal(t, "shop-1", v.Timeline[0].ActorUID)
		assert.Equal(t, int64(4000), v.Customizations[0].Cost)
	}
}

func TestViewDoesNotMutate(t *testing.T) {
	o := fullOrder(model.OrderStatusDelivered)
	before := o.Clone()
	_ = CustomerOrder(o)
	_ = StaffOrder(o)
	assert.Equal(t, before, o)
}

func TestCustomerDeliveryJobHidesPickup(t *testing.T) {
	now := time.Now()
	j := &model.DeliveryJob{
		ID: 4, Number: "DL-00000001", Type: model.DeliveryJobTypeDelivery, OrderID: 1,
		Status:         model.DeliveryJobPickedUp,
		PickupAddress:  model.Address{Area: "Al Qasba"},
		DropoffAddress: model.Address{Area: "Marina"},
		Zone:           "Z1", Cost: 1500, PartnerUID: "rider-1", MaxAttempts: 3, PickedUpAt: &now,
	}
	j.AppendEvent(model.DeliveryJobEvent{Status: model.DeliveryJobPickedUp, ActorUID: "rider-1", ActorRole: "delivery_partner", CreatedAt: now})

	keys := collectKeys(t, DeliveryJob(policy.Actor{ID: "cust-1", Role: policy.RoleCustomer}, j))
	for _, k := range shopOnlyKeys {
		assert.False(t, keys[k], "leaked %s", k)
	}
	assert.True(t, keys["dropoffAddress"])

	staff, ok := DeliveryJob(policy.Actor{ID: "rider-1", Role: policy.RoleDeliveryPartner}, j).(StaffDeliveryJobView)
	require.True(t, ok)
	assert.Equal(t, "Al Qasba", staff.PickupAddress.Area)
}

func TestPaymentView(t *testing.T) {
	p := fullOrder(model.OrderStatusCompleted).Payment
	keys := collectKeys(t, Payment(policy.Actor{ID: "cust-1", Role: policy.RoleCustomer}, p))
	assert.False(t, keys["payoutAmount"])
	assert.True(t, keys["escrowStatus"])

	keys = collectKeys(t, Payment(policy.Actor{ID: "a", Role: policy.RoleAdmin}, p))
	assert.True(t, keys["payoutAmount"])
}

func TestCustomerViewsDropStaffNotes(t *testing.T) {
	now := time.Now()
	o := fullOrder(model.OrderStatusInProduction)
	o.AppendTimeline(model.TimelineEntry{Status: model.OrderStatusCancelled, ActorUID: "cust-1", ActorRole: "customer", Note: "wrong size", CreatedAt: now})
	o.AppendTimeline(model.TimelineEntry{Status: model.OrderStatusOutForDelivery, ActorRole: "system", Note: "picked up by DL-00000001", CreatedAt: now})
	o.AppendTimeline(model.TimelineEntry{Status: model.OrderStatusInReview, ActorUID: "admin-1", ActorRole: "admin", Note: "[admin override] call Atelier Noor", Override: true, CreatedAt: now})

	c := CustomerOrder(o)
	require.Len(t, c.Timeline, 4)
	assert.Empty(t, c.Timeline[0].Note, "shop note")
	assert.Equal(t, "wrong size", c.Timeline[1].Note)
	assert.Equal(t, "picked up by DL-00000001", c.Timeline[2].Note)
	assert.Empty(t, c.Timeline[3].Note, "admin note")
	assert.True(t, c.Timeline[3].Override)

	staff := StaffOrder(o)
	assert.Equal(t, "moved", staff.Timeline[0].Note)
	assert.Equal(t, "[admin override] call Atelier Noor", staff.Timeline[3].Note)

	j := &model.DeliveryJob{ID: 4, Number: "DL-00000001", Status: model.DeliveryJobPickedUp}
	j.AppendEvent(model.DeliveryJobEvent{Status: model.DeliveryJobRequested, ActorRole: "shop", Note: "ring Al Qasba workshop", CreatedAt: now})
	j.AppendEvent(model.DeliveryJobEvent{Status: model.DeliveryJobPickedUp, ActorRole: "delivery_partner", Note: "collected at Atelier Noor", CreatedAt: now})
	cj := CustomerDeliveryJob(j)
	require.Len(t, cj.Events, 2)
	for _, e := range cj.Events {
		assert.Empty(t, e.Note)
	}
	assert.Equal(t, "collected at Atelier Noor", StaffDeliveryJob(j).Events[1].Note)
}
