package repository

import (
	"context"

	"github.com/shinyyama/tailor-backend/internal/model"
	"gorm.io/gorm"
)

type JobFilter struct {
	OrderID    uint64
	PartnerUID string
	Status     model.DeliveryJobStatus
	Limit      int
}

// DeliveryJobRepository is read-only; jobs change only inside an order's Mutate.
type DeliveryJobRepository interface {
	FindByID(ctx context.Context, id uint64) (*model.DeliveryJob, error)
	List(ctx context.Context, f JobFilter) ([]model.DeliveryJob, error)
	SetDB(db *gorm.DB)
}

type deliveryJobRepository struct {
	dbHandle
}

func NewDeliveryJobRepository(db *gorm.DB) DeliveryJobRepository {
	r := &deliveryJobRepository{}
	r.SetDB(db)
	return r
}

func preloadJobEvents(db *gorm.DB) *gorm.DB {
	return db.Order("seq ASC")
}

func (r *deliveryJobRepository) FindByID(ctx context.Context, id uint64) (*model.DeliveryJob, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var j model.DeliveryJob
	if err := db.Preload("Events", preloadJobEvents).First(&j, id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *deliveryJobRepository) List(ctx context.Context, f JobFilter) ([]model.DeliveryJob, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	q := db.Model(&model.DeliveryJob{}).Preload("Events", preloadJobEvents)
	if f.OrderID != 0 {
		q = q.Where("order_id = ?", f.OrderID)
	}
	if f.PartnerUID != "" {
		q = q.Where("partner_uid = ?", f.PartnerUID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	var list []model.DeliveryJob
	if err := q.Order("id DESC").Limit(f.Limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
