package repository

import (
	"context"

	"github.com/shinyyama/tailor-backend/internal/model"
	"gorm.io/gorm"
)

// ShopEarningRepository reads payout balances. Credits happen inside an
// order's Mutate together with the escrow release.
type ShopEarningRepository interface {
	Get(ctx context.Context, shopUID string) (*model.ShopEarning, error)
	SetDB(db *gorm.DB)
}

type shopEarningRepository struct {
	dbHandle
}

func NewShopEarningRepository(db *gorm.DB) ShopEarningRepository {
	r := &shopEarningRepository{}
	r.SetDB(db)
	return r
}

func (r *shopEarningRepository) Get(ctx context.Context, shopUID string) (*model.ShopEarning, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var e model.ShopEarning
	if err := db.Where("shop_uid = ?", shopUID).FirstOrInit(&e, &model.ShopEarning{ShopUID: shopUID}).Error; err != nil {
		return nil, err
	}
	return &e, nil
}
