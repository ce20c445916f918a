package repository

import (
	"context"

	"github.com/shinyyama/tailor-backend/internal/model"
	"gorm.io/gorm"
)

type PricingRuleRepository interface {
	ListActive(ctx context.Context) ([]model.PricingRule, error)
	Create(ctx context.Context, rules []model.PricingRule) error
	SetDB(db *gorm.DB)
}

type pricingRuleRepository struct {
	dbHandle
}

func NewPricingRuleRepository(db *gorm.DB) PricingRuleRepository {
	r := &pricingRuleRepository{}
	r.SetDB(db)
	return r
}

func (r *pricingRuleRepository) ListActive(ctx context.Context) ([]model.PricingRule, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var list []model.PricingRule
	if err := db.Where("active = ?", true).Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *pricingRuleRepository) Create(ctx context.Context, rules []model.PricingRule) error {
	if len(rules) == 0 {
		return nil
	}
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	return db.Create(&rules).Error
}
