package repository

import (
	"context"

	"github.com/shinyyama/tailor-backend/internal/model"
	"gorm.io/gorm"
)

type DesignRepository interface {
	Create(ctx context.Context, d *model.Design) error
	FindByID(ctx context.Context, id uint64) (*model.Design, error)
	Count(ctx context.Context) (int64, error)
	SetDB(db *gorm.DB)
}

type designRepository struct {
	dbHandle
}

func NewDesignRepository(db *gorm.DB) DesignRepository {
	r := &designRepository{}
	r.SetDB(db)
	return r
}

func (r *designRepository) Create(ctx context.Context, d *model.Design) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	return db.Create(d).Error
}

func (r *designRepository) FindByID(ctx context.Context, id uint64) (*model.Design, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var d model.Design
	if err := db.First(&d, id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *designRepository) Count(ctx context.Context) (int64, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.Model(&model.Design{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
