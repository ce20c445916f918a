// Package view renders orders and delivery jobs for a given caller. Customer
// views are distinct types that carry no shop identity, shop location or shop
// payout fields, so a field added to the model stays hidden from customers
// until it is added to the customer type on purpose.
package view

import (
	"time"

	"github.com/shinyyama/tailor-backend/internal/model"
	"github.com/shinyyama/tailor-backend/internal/policy"
)

type CustomizationView struct {
	OptionID string `json:"optionId"`
	Label    string `json:"label"`
}

type CustomerPricingView struct {
	ItemPrice   int64  `json:"itemPrice"`
	DeliveryFee int64  `json:"deliveryFee"`
	UrgencyFee  int64  `json:"urgencyFee"`
	Subtotal    int64  `json:"subtotal"`
	VAT         int64  `json:"vat"`
	VATPercent  int64  `json:"vatPercent"`
	Total       int64  `json:"total"`
	Currency    string `json:"currency"`
}

type CustomerPaymentView struct {
	Ref          string  `json:"paymentRef,omitempty"`
	Status       string  `json:"status"`
	EscrowStatus string  `json:"escrowStatus"`
	Amount       int64   `json:"amount"`
	RefundAmount int64   `json:"refundAmount,omitempty"`
	PaidAt       *string `json:"paidAt,omitempty"`
	RefundedAt   *string `json:"refundedAt,omitempty"`
}

type CustomerTimelineView struct {
	Status    string `json:"status"`
	ActorRole string `json:"actorRole"`
	Note      string `json:"note,omitempty"`
	Override  bool   `json:"override,omitempty"`
	At        string `json:"at"`
}

type CustomerOrderView struct {
	ID                  uint64                 `json:"id"`
	Number              string                 `json:"orderNumber"`
	DesignID            uint64                 `json:"designId"`
	Category            string                 `json:"category,omitempty"`
	Customizations      []CustomizationView    `json:"customizations"`
	Measurements        map[string]float64     `json:"measurements,omitempty"`
	DeliveryAddress     model.Address          `json:"deliveryAddress"`
	DeliveryZone        string                 `json:"deliveryZone"`
	ItemCount           int                    `json:"itemCount"`
	Urgency             string                 `json:"urgency"`
	SpecialInstructions string                 `json:"specialInstructions,omitempty"`
	EstimatedCompletion *string                `json:"estimatedCompletion,omitempty"`
	Status              string                 `json:"status"`
	Pricing             CustomerPricingView    `json:"pricing"`
	Payment             CustomerPaymentView    `json:"payment"`
	DeliveryExhausted   bool                   `json:"deliveryExhausted,omitempty"`
	CancelReason        string                 `json:"cancelReason,omitempty"`
	Rating              *int                   `json:"rating,omitempty"`
	ReviewComment       string                 `json:"reviewComment,omitempty"`
	CompletedAt         *string                `json:"completedAt,omitempty"`
	CancelledAt         *string                `json:"cancelledAt,omitempty"`
	Timeline            []CustomerTimelineView `json:"timeline"`
	CreatedAt           string                 `json:"createdAt"`
}

type StaffPricingView struct {
	CustomerPricingView
	ShopCost       int64  `json:"shopCost"`
	PlatformMargin int64  `json:"platformMargin"`
	MarginRuleID   uint64 `json:"marginRuleId,omitempty"`
}

type StaffPaymentView struct {
	CustomerPaymentView
	TransactionID string  `json:"transactionId,omitempty"`
	PayoutAmount  int64   `json:"payoutAmount,omitempty"`
	PayoutRef     string  `json:"payoutRef,omitempty"`
	RefundRef     string  `json:"refundRef,omitempty"`
	ReleasedAt    *string `json:"releasedAt,omitempty"`
}

type StaffTimelineView struct {
	CustomerTimelineView
	Seq      int    `json:"seq"`
	ActorUID string `json:"actorUid,omitempty"`
}

type StaffOrderView struct {
	ID                  uint64                `json:"id"`
	Number              string                `json:"orderNumber"`
	CustomerUID         string                `json:"customerUid"`
	ShopUID             string                `json:"shopUid"`
	DesignID            uint64                `json:"designId"`
	Category            string                `json:"category,omitempty"`
	ShopTier            string                `json:"shopTier,omitempty"`
	Customizations      []model.Customization `json:"customizations"`
	Measurements        map[string]float64    `json:"measurements,omitempty"`
	DeliveryAddress     model.Address         `json:"deliveryAddress"`
	PickupAddress       model.Address         `json:"pickupAddress"`
	DeliveryZone        string                `json:"deliveryZone"`
	ItemCount           int                   `json:"itemCount"`
	Urgency             string                `json:"urgency"`
	SpecialInstructions string                `json:"specialInstructions,omitempty"`
	ShopNotes           string                `json:"shopNotes,omitempty"`
	EstimatedCompletion *string               `json:"estimatedCompletion,omitempty"`
	Status              string                `json:"status"`
	Pricing             StaffPricingView      `json:"pricing"`
	Payment             StaffPaymentView      `json:"payment"`
	DeliveryJobID       *uint64               `json:"deliveryJobId,omitempty"`
	DeliveryExhausted   bool                  `json:"deliveryExhausted,omitempty"`
	CancelReason        string                `json:"cancelReason,omitempty"`
	Rating              *int                  `json:"rating,omitempty"`
	ReviewComment       string                `json:"reviewComment,omitempty"`
	CompletedAt         *string               `json:"completedAt,omitempty"`
	CancelledAt         *string               `json:"cancelledAt,omitempty"`
	Timeline            []StaffTimelineView   `json:"timeline"`
	CreatedAt           string                `json:"createdAt"`
	UpdatedAt           string                `json:"updatedAt"`
}

// Order picks the representation for the caller. Anything that is not staff
// gets the customer view.
func Order(a policy.Actor, o *model.Order) any {
	if IsStaff(a) {
		return StaffOrder(o)
	}
	return CustomerOrder(o)
}

func Orders(a policy.Actor, list []model.Order) []any {
	out := make([]any, 0, len(list))
	for i := range list {
		out = append(out, Order(a, &list[i]))
	}
	return out
}

func IsStaff(a policy.Actor) bool {
	switch a.Role {
	case policy.RoleShop, policy.RoleAdmin, policy.RoleSystem:
		return true
	}
	return false
}

func CustomerOrder(o *model.Order) CustomerOrderView {
	customizations := make([]CustomizationView, 0, len(o.Customizations))
	for _, c := range o.Customizations {
		customizations = append(customizations, CustomizationView{OptionID: c.OptionID, Label: c.Label})
	}
	timeline := make([]CustomerTimelineView, 0, len(o.Timeline))
	for _, e := range o.Timeline {
		timeline = append(timeline, customerTimeline(e))
	}
	return CustomerOrderView{
		ID:                  o.ID,
		Number:              o.Number,
		DesignID:            o.DesignID,
		Category:            o.Category,
		Customizations:      customizations,
		Measurements:        o.Measurements,
		DeliveryAddress:     o.DeliveryAddress,
		DeliveryZone:        o.DeliveryZone,
		ItemCount:           o.ItemCount,
		Urgency:             o.Urgency,
		SpecialInstructions: o.SpecialInstructions,
		EstimatedCompletion: formatTime(o.EstimatedCompletion),
		Status:              string(o.Status),
		Pricing:             customerPricing(o.Pricing),
		Payment:             customerPayment(o.Payment),
		DeliveryExhausted:   o.DeliveryExhausted,
		CancelReason:        o.CancelReason,
		Rating:              o.Rating,
		ReviewComment:       o.ReviewComment,
		CompletedAt:         formatTime(o.CompletedAt),
		CancelledAt:         formatTime(o.CancelledAt),
		Timeline:            timeline,
		CreatedAt:           o.CreatedAt.Format(time.RFC3339),
	}
}

func StaffOrder(o *model.Order) StaffOrderView {
	timeline := make([]StaffTimelineView, 0, len(o.Timeline))
	for _, e := range o.Timeline {
		timeline = append(timeline, StaffTimelineView{CustomerTimelineView: timelineEntry(e), Seq: e.Seq, ActorUID: e.ActorUID})
	}
	return StaffOrderView{
		ID:                  o.ID,
		Number:              o.Number,
		CustomerUID:         o.CustomerUID,
		ShopUID:             o.ShopUID,
		DesignID:            o.DesignID,
		Category:            o.Category,
		ShopTier:            o.ShopTier,
		Customizations:      append([]model.Customization{}, o.Customizations...),
		Measurements:        o.Measurements,
		DeliveryAddress:     o.DeliveryAddress,
		PickupAddress:       o.PickupAddress,
		DeliveryZone:        o.DeliveryZone,
		ItemCount:           o.ItemCount,
		Urgency:             o.Urgency,
		SpecialInstructions: o.SpecialInstructions,
		ShopNotes:           o.ShopNotes,
		EstimatedCompletion: formatTime(o.EstimatedCompletion),
		Status:              string(o.Status),
		Pricing: StaffPricingView{
			CustomerPricingView: customerPricing(o.Pricing),
			ShopCost:            o.Pricing.ShopCost,
			PlatformMargin:      o.Pricing.PlatformMargin,
			MarginRuleID:        o.Pricing.MarginRuleID,
		},
		Payment:           StaffPayment(o.Payment),
		DeliveryJobID:     o.DeliveryJobID,
		DeliveryExhausted: o.DeliveryExhausted,
		CancelReason:      o.CancelReason,
		Rating:            o.Rating,
		ReviewComment:     o.ReviewComment,
		CompletedAt:       formatTime(o.CompletedAt),
		CancelledAt:       formatTime(o.CancelledAt),
		Timeline:          timeline,
		CreatedAt:         o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         o.UpdatedAt.Format(time.RFC3339),
	}
}

// Payment renders only the payment sub-record.
func Payment(a policy.Actor, p model.Payment) any {
	if IsStaff(a) {
		return StaffPayment(p)
	}
	return customerPayment(p)
}

func StaffPayment(p model.Payment) StaffPaymentView {
	return StaffPaymentView{
		CustomerPaymentView: customerPayment(p),
		TransactionID:       p.TransactionID,
		PayoutAmount:        p.PayoutAmount,
		PayoutRef:           p.PayoutRef,
		RefundRef:           p.RefundRef,
		ReleasedAt:          formatTime(p.ReleasedAt),
	}
}

func customerPricing(p model.Pricing) CustomerPricingView {
	return CustomerPricingView{
		ItemPrice:   p.ItemPrice,
		DeliveryFee: p.DeliveryFee,
		UrgencyFee:  p.UrgencyFee,
		Subtotal:    p.Subtotal,
		VAT:         p.VAT,
		VATPercent:  p.VATPercent,
		Total:       p.Total,
		Currency:    p.Currency,
	}
}

func customerPayment(p model.Payment) CustomerPaymentView {
	return CustomerPaymentView{
		Ref:          p.Ref,
		Status:       string(p.Status),
		EscrowStatus: string(p.EscrowStatus),
		Amount:       p.EscrowAmount,
		RefundAmount: p.RefundAmount,
		PaidAt:       formatTime(p.PaidAt),
		RefundedAt:   formatTime(p.RefundedAt),
	}
}

// customerNote drops free text written by the shop, a rider or an admin; it
// can name the atelier or its location.
func customerNote(actorRole, note string) string {
	switch policy.Role(actorRole) {
	case policy.RoleCustomer, policy.RoleSystem:
		return note
	}
	return ""
}

func customerTimeline(e model.TimelineEntry) CustomerTimelineView {
	v := timelineEntry(e)
	v.Note = customerNote(e.ActorRole, e.Note)
	return v
}

func timelineEntry(e model.TimelineEntry) CustomerTimelineView {
	return CustomerTimelineView{
		Status:    string(e.Status),
		ActorRole: e.ActorRole,
		Note:      e.Note,
		Override:  e.Override,
		At:        e.CreatedAt.Format(time.RFC3339),
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
