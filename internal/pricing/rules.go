package pricing

import (
	"fmt"
	"sort"

	"github.com/shinyyama/tailor-backend/internal/model"
	"github.com/shopspring/decimal"
)

// DefaultMarginPercent applies when no active margin rule matches a design.
const DefaultMarginPercent = 15

// DefaultVATPercent is the UAE standard VAT rate.
const DefaultVATPercent = 5

type Bucket string

const (
	B1 Bucket = "B1"
	B2 Bucket = "B2"
	B3 Bucket = "B3"
	B4 Bucket = "B4"
)

// BucketFor maps an item count to its delivery bucket: 1-3 B1, 4-6 B2, 7-10 B3, 11+ B4.
func BucketFor(itemCount int) (Bucket, error) {
	switch {
	case itemCount < 1:
		return "", fmt.Errorf("%w: item count must be at least 1", ErrInvalidInput)
	case itemCount <= 3:
		return B1, nil
	case itemCount <= 6:
		return B2, nil
	case itemCount <= 10:
		return B3, nil
	default:
		return B4, nil
	}
}

type Urgency string

const (
	UrgencyNormal  Urgency = "normal"
	UrgencyUrgent  Urgency = "urgent"
	UrgencyExpress Urgency = "express"
)

func (u Urgency) Valid() bool {
	switch u {
	case UrgencyNormal, UrgencyUrgent, UrgencyExpress:
		return true
	}
	return false
}

type MarginRule struct {
	ID            uint64
	Category      string
	ShopTier      string
	FixedAmount   int64
	Percent       decimal.Decimal
	MinimumMargin int64
}

func (r MarginRule) matches(category, tier string) (int, bool) {
	score := 0
	if r.Category != "" {
		if r.Category != category {
			return 0, false
		}
		score += 2
	}
	if r.ShopTier != "" {
		if r.ShopTier != tier {
			return 0, false
		}
		score++
	}
	return score, true
}

// DeliveryRate prices one zone x bucket cell:
// base + uplift% of base + itemCount * perItem.
type DeliveryRate struct {
	BaseFee       int64
	UpliftPercent decimal.Decimal
	PerItemFee    int64
}

func (r DeliveryRate) fee(itemCount int) int64 {
	return r.BaseFee + percentOf(r.BaseFee, r.UpliftPercent) + int64(itemCount)*r.PerItemFee
}

// RuleTable is an immutable snapshot of the pricing configuration.
type RuleTable struct {
	Delivery             map[string]map[Bucket]DeliveryRate
	Margins              []MarginRule
	DefaultMarginPercent decimal.Decimal
	VATPercent           decimal.Decimal
	UrgencyPercent       map[Urgency]decimal.Decimal
}

type Defaults struct {
	VATPercent           int64
	DefaultMarginPercent int64
	UrgentFeePercent     int64
	ExpressFeePercent    int64
}

// DefaultDeliveryTable returns the built-in zone x bucket fees in fils.
func DefaultDeliveryTable() map[string]map[Bucket]int64 {
	aed := func(b1, b2, b3, b4 int64) map[Bucket]int64 {
		return map[Bucket]int64{B1: b1 * 100, B2: b2 * 100, B3: b3 * 100, B4: b4 * 100}
	}
	return map[string]map[Bucket]int64{
		"Z1": aed(15, 20, 30, 50),
		"Z2": aed(25, 35, 45, 70),
		"Z3": aed(35, 45, 60, 90),
		"Z4": aed(50, 65, 85, 120),
	}
}

// NewRuleTable layers active rule rows over the built-in delivery table.
func NewRuleTable(rows []model.PricingRule, d Defaults) (RuleTable, error) {
	t := RuleTable{
		Delivery:             map[string]map[Bucket]DeliveryRate{},
		DefaultMarginPercent: decimal.NewFromInt(d.DefaultMarginPercent),
		VATPercent:           decimal.NewFromInt(d.VATPercent),
		UrgencyPercent: map[Urgency]decimal.Decimal{
			UrgencyNormal:  decimal.Zero,
			UrgencyUrgent:  decimal.NewFromInt(d.UrgentFeePercent),
			UrgencyExpress: decimal.NewFromInt(d.ExpressFeePercent),
		},
	}
	for zone, fees := range DefaultDeliveryTable() {
		t.Delivery[zone] = map[Bucket]DeliveryRate{}
		for b, fee := range fees {
			t.Delivery[zone][b] = DeliveryRate{BaseFee: fee}
		}
	}
	for _, r := range rows {
		if !r.Active {
			continue
		}
		switch r.Kind {
		case model.PricingRuleDelivery:
			b := Bucket(r.Bucket)
			if r.Zone == "" || (b != B1 && b != B2 && b != B3 && b != B4) {
				return RuleTable{}, fmt.Errorf("pricing rule %d: invalid zone/bucket %q/%q", r.ID, r.Zone, r.Bucket)
			}
			uplift, err := parsePercent(r.UpliftPercent)
			if err != nil {
				return RuleTable{}, fmt.Errorf("pricing rule %d: uplift percent: %w", r.ID, err)
			}
			if t.Delivery[r.Zone] == nil {
				t.Delivery[r.Zone] = map[Bucket]DeliveryRate{}
			}
			t.Delivery[r.Zone][b] = DeliveryRate{BaseFee: r.BaseFee, UpliftPercent: uplift, PerItemFee: r.PerItemFee}
		case model.PricingRuleMargin:
			pct, err := parsePercent(r.Percent)
			if err != nil {
				return RuleTable{}, fmt.Errorf("pricing rule %d: percent: %w", r.ID, err)
			}
			t.Margins = append(t.Margins, MarginRule{
				ID:            r.ID,
				Category:      r.Category,
				ShopTier:      r.ShopTier,
				FixedAmount:   r.FixedAmount,
				Percent:       pct,
				MinimumMargin: r.MinimumMargin,
			})
		default:
			return RuleTable{}, fmt.Errorf("pricing rule %d: unknown kind %q", r.ID, r.Kind)
		}
	}
	sort.Slice(t.Margins, func(i, j int) bool { return t.Margins[i].ID < t.Margins[j].ID })
	return t, nil
}

func parsePercent(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func (t RuleTable) deliveryFee(zone string, b Bucket, itemCount int) (int64, bool) {
	rates, ok := t.Delivery[zone]
	if !ok {
		return 0, false
	}
	rate, ok := rates[b]
	if !ok {
		return 0, false
	}
	return rate.fee(itemCount), true
}

func (t RuleTable) marginRule(category, tier string) (MarginRule, bool) {
	best, bestScore, found := MarginRule{}, -1, false
	for _, r := range t.Margins {
		if score, ok := r.matches(category, tier); ok && score > bestScore {
			best, bestScore, found = r, score, true
		}
	}
	return best, found
}
