// Package pricing derives the customer price, shop payout and platform margin
// for an order. Amounts are integer fils; percentages are applied with decimal
// arithmetic and rounded half away from zero.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrPricingUnavailable = errors.New("pricing_unavailable")
	ErrInvalidInput       = errors.New("invalid_pricing_input")
)

const Currency = "AED"

type Input struct {
	DesignBaseCost     int64
	CustomizationsCost int64
	Zone               string
	ItemCount          int
	Urgency            Urgency
	Category           string
	ShopTier           string
}

type Breakdown struct {
	ItemPrice      int64
	ShopCost       int64
	DeliveryFee    int64
	UrgencyFee     int64
	Subtotal       int64
	VAT            int64
	VATPercent     int64
	Total          int64
	PlatformMargin int64
	MarginRuleID   uint64
	Bucket         Bucket
	Currency       string
}

type Calculator struct {
	rules RuleTable
}

func NewCalculator(rules RuleTable) *Calculator {
	return &Calculator{rules: rules}
}

// Compute is deterministic for identical inputs and rule tables.
func (c *Calculator) Compute(in Input) (Breakdown, error) {
	if in.DesignBaseCost < 0 || in.CustomizationsCost < 0 {
		return Breakdown{}, fmt.Errorf("%w: negative cost", ErrInvalidInput)
	}
	if in.Urgency == "" {
		in.Urgency = UrgencyNormal
	}
	if !in.Urgency.Valid() {
		return Breakdown{}, fmt.Errorf("%w: unknown urgency %q", ErrInvalidInput, in.Urgency)
	}
	bucket, err := BucketFor(in.ItemCount)
	if err != nil {
		return Breakdown{}, err
	}
	deliveryFee, ok := c.rules.deliveryFee(in.Zone, bucket, in.ItemCount)
	if !ok {
		return Breakdown{}, fmt.Errorf("%w: zone %q bucket %s", ErrPricingUnavailable, in.Zone, bucket)
	}

	shopCost := in.DesignBaseCost + in.CustomizationsCost
	itemPrice, ruleID := c.itemPrice(shopCost, in.Category, in.ShopTier)
	urgencyFee := percentOf(itemPrice, c.rules.UrgencyPercent[in.Urgency])
	subtotal := itemPrice + urgencyFee
	vat := percentOf(subtotal+deliveryFee, c.rules.VATPercent)

	return Breakdown{
		ItemPrice:      itemPrice,
		ShopCost:       shopCost,
		DeliveryFee:    deliveryFee,
		UrgencyFee:     urgencyFee,
		Subtotal:       subtotal,
		VAT:            vat,
		VATPercent:     c.rules.VATPercent.IntPart(),
		Total:          subtotal + deliveryFee + vat,
		PlatformMargin: itemPrice - shopCost,
		MarginRuleID:   ruleID,
		Bucket:         bucket,
		Currency:       Currency,
	}, nil
}

func (c *Calculator) itemPrice(shopCost int64, category, tier string) (int64, uint64) {
	r, ok := c.rules.marginRule(category, tier)
	if !ok {
		return shopCost + percentOf(shopCost, c.rules.DefaultMarginPercent), 0
	}
	withRule := shopCost + r.FixedAmount + percentOf(shopCost, r.Percent)
	floor := shopCost + r.MinimumMargin
	if floor > withRule {
		return floor, r.ID
	}
	return withRule, r.ID
}

func percentOf(amount int64, pct decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(pct).Div(decimal.NewFromInt(100)).Round(0).IntPart()
}
