package model

import "time"

// ShopEarning is the running payout balance credited to a shop on escrow release.
type ShopEarning struct {
	ShopUID      string    `gorm:"column:shop_uid;primaryKey;size:128"`
	ReleasedFils int64     `gorm:"column:released_fils;not null;default:0"`
	OrderCount   int64     `gorm:"column:order_count;not null;default:0"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

func (ShopEarning) TableName() string {
	return "shop_earnings"
}
