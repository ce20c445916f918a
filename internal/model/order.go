package model

import "time"

const CurrencyAED = "AED"

type Address struct {
	FullName    string `json:"fullName"`
	PhoneNumber string `json:"phoneNumber"`
	Emirate     string `json:"emirate"`
	Area        string `json:"area"`
	Street      string `json:"street"`
	Building    string `json:"building"`
	Apartment   string `json:"apartment,omitempty"`
	Directions  string `json:"directions,omitempty"`
}

// Customization is a selected design option frozen at order time.
type Customization struct {
	OptionID string `json:"optionId"`
	Label    string `json:"label"`
	Cost     int64  `json:"cost"`
}

// Pricing is the frozen price snapshot. Amounts are in fils.
type Pricing struct {
	ItemPrice      int64  `gorm:"column:item_price;not null"`
	ShopCost       int64  `gorm:"column:shop_cost;not null"`
	DeliveryFee    int64  `gorm:"column:delivery_fee;not null"`
	UrgencyFee     int64  `gorm:"column:urgency_fee;not null"`
	Subtotal       int64  `gorm:"column:subtotal;not null"`
	VAT            int64  `gorm:"column:vat;not null"`
	VATPercent     int64  `gorm:"column:vat_percent;not null"`
	Total          int64  `gorm:"column:total;not null"`
	PlatformMargin int64  `gorm:"column:platform_margin;not null"`
	MarginRuleID   uint64 `gorm:"column:margin_rule_id"`
	Currency       string `gorm:"column:currency;size:3;not null"`
}

// Payment is the payment and escrow custody sub-record of an order.
type Payment struct {
	Ref           string        `gorm:"column:ref;size:128;index"`
	CheckoutURL   string        `gorm:"column:checkout_url;type:text"`
	TransactionID string        `gorm:"column:transaction_id;size:128"`
	Status        PaymentStatus `gorm:"column:status;size:16;not null"`
	EscrowStatus  EscrowStatus  `gorm:"column:escrow_status;size:32;not null"`
	EscrowAmount  int64         `gorm:"column:escrow_amount;not null"`
	PayoutAmount  int64         `gorm:"column:payout_amount"`
	PayoutRef     string        `gorm:"column:payout_ref;size:128"`
	RefundAmount  int64         `gorm:"column:refund_amount"`
	RefundRef     string        `gorm:"column:refund_ref;size:128"`
	PaidAt        *time.Time    `gorm:"column:paid_at"`
	ReleasedAt    *time.Time    `gorm:"column:released_at"`
	RefundedAt    *time.Time    `gorm:"column:refunded_at"`
}

type Order struct {
	ID                  uint64             `gorm:"primaryKey;autoIncrement"`
	Number              string             `gorm:"column:number;size:32;uniqueIndex;not null"`
	CustomerUID         string             `gorm:"column:customer_uid;size:128;index;not null"`
	ShopUID             string             `gorm:"column:shop_uid;size:128;index;not null"`
	DesignID            uint64             `gorm:"column:design_id;index;not null"`
	Category            string             `gorm:"column:category;size:64"`
	ShopTier            string             `gorm:"column:shop_tier;size:32"`
	Customizations      []Customization    `gorm:"column:customizations;type:json;serializer:json"`
	Measurements        map[string]float64 `gorm:"column:measurements;type:json;serializer:json"`
	DeliveryAddress     Address            `gorm:"column:delivery_address;type:json;serializer:json"`
	PickupAddress       Address            `gorm:"column:pickup_address;type:json;serializer:json"`
	DeliveryZone        string             `gorm:"column:delivery_zone;size:8;not null"`
	ItemCount           int                `gorm:"column:item_count;not null"`
	Urgency             string             `gorm:"column:urgency;size:16;not null"`
	SpecialInstructions string             `gorm:"column:special_instructions;type:text"`
	ShopNotes           string             `gorm:"column:shop_notes;type:text"`
	EstimatedCompletion *time.Time         `gorm:"column:estimated_completion"`
	Status              OrderStatus        `gorm:"column:status;size:32;index;not null"`
	Pricing             Pricing            `gorm:"embedded;embeddedPrefix:price_"`
	Payment             Payment            `gorm:"embedded;embeddedPrefix:pay_"`
	DeliveryJobID       *uint64            `gorm:"column:delivery_job_id"`
	DeliveryExhausted   bool               `gorm:"column:delivery_exhausted;not null;default:false"`
	CancelReason        string             `gorm:"column:cancel_reason;type:text"`
	Rating              *int               `gorm:"column:rating"`
	ReviewComment       string             `gorm:"column:review_comment;type:text"`
	ReviewedAt          *time.Time         `gorm:"column:reviewed_at"`
	CompletedAt         *time.Time         `gorm:"column:completed_at"`
	CancelledAt         *time.Time         `gorm:"column:cancelled_at"`
	Timeline            []TimelineEntry    `gorm:"foreignKey:OrderID"`
	CreatedAt           time.Time          `gorm:"autoCreateTime"`
	UpdatedAt           time.Time          `gorm:"autoUpdateTime"`
}

func (Order) TableName() string {
	return "orders"
}

// AppendTimeline records a status entry. Entries are never edited once stored.
func (o *Order) AppendTimeline(e TimelineEntry) {
	e.OrderID = o.ID
	e.Seq = len(o.Timeline) + 1
	o.Timeline = append(o.Timeline, e)
}

// Clone returns a deep copy so staged mutations never alias stored state.
func (o *Order) Clone() *Order {
	cp := *o
	cp.Customizations = append([]Customization(nil), o.Customizations...)
	if o.Measurements != nil {
		cp.Measurements = make(map[string]float64, len(o.Measurements))
		for k, v := range o.Measurements {
			cp.Measurements[k] = v
		}
	}
	cp.Timeline = append([]TimelineEntry(nil), o.Timeline...)
	return &cp
}

type TimelineEntry struct {
	ID        uint64      `gorm:"primaryKey;autoIncrement"`
	OrderID   uint64      `gorm:"column:order_id;not null;uniqueIndex:ux_order_timeline_seq,priority:1"`
	Seq       int         `gorm:"column:seq;not null;uniqueIndex:ux_order_timeline_seq,priority:2"`
	Status    OrderStatus `gorm:"column:status;size:32;not null"`
	ActorUID  string      `gorm:"column:actor_uid;size:128"`
	ActorRole string      `gorm:"column:actor_role;size:32;not null"`
	Note      string      `gorm:"column:note;type:text"`
	Override  bool        `gorm:"column:override;not null;default:false"`
	CreatedAt time.Time   `gorm:"column:created_at;not null"`
}

func (TimelineEntry) TableName() string {
	return "order_timeline"
}
