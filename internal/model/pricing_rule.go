package model

type PricingRuleKind string

const (
	PricingRuleDelivery PricingRuleKind = "delivery"
	PricingRuleMargin   PricingRuleKind = "margin"
)

// PricingRule is externally managed; the engine only reads active rows.
type PricingRule struct {
	ID            uint64          `gorm:"primaryKey;autoIncrement"`
	Kind          PricingRuleKind `gorm:"column:kind;size:16;index;not null"`
	Zone          string          `gorm:"column:zone;size:8"`
	Bucket        string          `gorm:"column:bucket;size:4"`
	Category      string          `gorm:"column:category;size:64"`
	ShopTier      string          `gorm:"column:shop_tier;size:32"`
	BaseFee       int64           `gorm:"column:base_fee"`
	UpliftPercent string          `gorm:"column:uplift_percent;size:16"`
	PerItemFee    int64           `gorm:"column:per_item_fee"`
	FixedAmount   int64           `gorm:"column:fixed_amount"`
	Percent       string          `gorm:"column:percent;size:16"`
	MinimumMargin int64           `gorm:"column:minimum_margin"`
	Active        bool            `gorm:"column:active;not null;default:true"`
}

func (PricingRule) TableName() string {
	return "pricing_rules"
}
