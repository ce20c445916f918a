package model

import "time"

type DesignOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Cost  int64  `json:"cost"`
}

// Design is the read-only catalog entry an order is placed against.
type Design struct {
	ID              uint64         `gorm:"primaryKey;autoIncrement"`
	ShopUID         string         `gorm:"column:shop_uid;size:128;index;not null"`
	Title           string         `gorm:"column:title;size:255;not null"`
	Category        string         `gorm:"column:category;size:64;index"`
	ShopTier        string         `gorm:"column:shop_tier;size:32"`
	BaseCost        int64          `gorm:"column:base_cost;not null"`
	Published       bool           `gorm:"column:published;not null;default:false"`
	Options         []DesignOption `gorm:"column:options;type:json;serializer:json"`
	WorkshopAddress Address        `gorm:"column:workshop_address;type:json;serializer:json"`
	CreatedAt       time.Time      `gorm:"autoCreateTime"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime"`
}

func (Design) TableName() string {
	return "designs"
}

func (d *Design) Option(id string) (DesignOption, bool) {
	for _, o := range d.Options {
		if o.ID == id {
			return o, true
		}
	}
	return DesignOption{}, false
}
