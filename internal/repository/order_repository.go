package repository

import (
	"context"
	"fmt"

	"github.com/shinyyama/tailor-backend/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderFilter struct {
	CustomerUID string
	ShopUID     string
	Status      model.OrderStatus
	Limit       int
}

// OrderTx is the unit of work handed to Mutate. Everything staged through it
// is committed together or not at all.
type OrderTx interface {
	// Order is the locked, mutable copy of the order.
	Order() *model.Order
	// Jobs returns the order's delivery jobs, locked for update.
	Jobs() ([]*model.DeliveryJob, error)
	AddJob(j *model.DeliveryJob) error
	// ClaimEvent records an external event id; false means it was already processed.
	ClaimEvent(source, externalID string) (bool, error)
	CreditShop(shopUID string, amount int64) error
	// NextSequence draws from a named counter on the order's own connection.
	NextSequence(name string) (uint64, error)
}

type OrderRepository interface {
	Create(ctx context.Context, o *model.Order) error
	FindByID(ctx context.Context, id uint64) (*model.Order, error)
	FindByNumber(ctx context.Context, number string) (*model.Order, error)
	List(ctx context.Context, f OrderFilter) ([]model.Order, error)
	// Mutate runs fn while holding the order's row lock and persists the result.
	Mutate(ctx context.Context, id uint64, fn func(tx OrderTx) error) (*model.Order, error)
	SetDB(db *gorm.DB)
}

type orderRepository struct {
	dbHandle
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	r := &orderRepository{}
	r.SetDB(db)
	return r
}

func preloadTimeline(db *gorm.DB) *gorm.DB {
	return db.Order("seq ASC")
}

func (r *orderRepository) Create(ctx context.Context, o *model.Order) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		timeline := o.Timeline
		o.Timeline = nil
		if err := tx.Omit(clause.Associations).Create(o).Error; err != nil {
			return err
		}
		for i := range timeline {
			timeline[i].OrderID = o.ID
		}
		o.Timeline = timeline
		if len(timeline) == 0 {
			return nil
		}
		return tx.Create(&o.Timeline).Error
	})
}

func (r *orderRepository) FindByID(ctx context.Context, id uint64) (*model.Order, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var o model.Order
	if err := db.Preload("Timeline", preloadTimeline).First(&o, id).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepository) FindByNumber(ctx context.Context, number string) (*model.Order, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var o model.Order
	if err := db.Preload("Timeline", preloadTimeline).Where("number = ?", number).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepository) List(ctx context.Context, f OrderFilter) ([]model.Order, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	q := db.Model(&model.Order{}).Preload("Timeline", preloadTimeline)
	if f.CustomerUID != "" {
		q = q.Where("customer_uid = ?", f.CustomerUID)
	}
	if f.ShopUID != "" {
		q = q.Where("shop_uid = ?", f.ShopUID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	var list []model.Order
	if err := q.Order("id DESC").Limit(f.Limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *orderRepository) Mutate(ctx context.Context, id uint64, fn func(tx OrderTx) error) (*model.Order, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var out *model.Order
	err = db.Transaction(func(tx *gorm.DB) error {
		var o model.Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Timeline", preloadTimeline).
			First(&o, id).Error; err != nil {
			return err
		}
		gtx := &gormOrderTx{tx: tx, order: &o}
		if err := fn(gtx); err != nil {
			return err
		}
		if err := gtx.flush(); err != nil {
			return err
		}
		out = &o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type gormOrderTx struct {
	tx         *gorm.DB
	order      *model.Order
	jobs       []*model.DeliveryJob
	jobsLoaded bool
}

func (t *gormOrderTx) Order() *model.Order {
	return t.order
}

func (t *gormOrderTx) Jobs() ([]*model.DeliveryJob, error) {
	if t.jobsLoaded {
		return t.jobs, nil
	}
	var list []model.DeliveryJob
	if err := t.tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Events", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		Where("order_id = ?", t.order.ID).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	for i := range list {
		t.jobs = append(t.jobs, &list[i])
	}
	t.jobsLoaded = true
	return t.jobs, nil
}

func (t *gormOrderTx) AddJob(j *model.DeliveryJob) error {
	if _, err := t.Jobs(); err != nil {
		return err
	}
	j.OrderID = t.order.ID
	events := j.Events
	j.Events = nil
	if err := t.tx.Omit(clause.Associations).Create(j).Error; err != nil {
		return err
	}
	for i := range events {
		events[i].JobID = j.ID
	}
	j.Events = events
	t.jobs = append(t.jobs, j)
	return nil
}

func (t *gormOrderTx) ClaimEvent(source, externalID string) (bool, error) {
	res := t.tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.ProcessedEvent{
		Source:     source,
		ExternalID: externalID,
		OrderID:    t.order.ID,
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (t *gormOrderTx) CreditShop(shopUID string, amount int64) error {
	return t.tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "shop_uid"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"released_fils": gorm.Expr("released_fils + ?", amount),
			"order_count":   gorm.Expr("order_count + 1"),
		}),
	}).Create(&model.ShopEarning{ShopUID: shopUID, ReleasedFils: amount, OrderCount: 1}).Error
}

func (t *gormOrderTx) NextSequence(name string) (uint64, error) {
	return nextSequence(t.tx, name)
}

// flush writes the order columns and inserts timeline and job history rows that
// were appended during the transaction. Existing history rows are never updated.
func (t *gormOrderTx) flush() error {
	if err := t.tx.Omit(clause.Associations).Save(t.order).Error; err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	if err := insertNewTimeline(t.tx, t.order); err != nil {
		return err
	}
	for _, j := range t.jobs {
		if err := t.tx.Omit(clause.Associations).Save(j).Error; err != nil {
			return fmt.Errorf("save delivery job %d: %w", j.ID, err)
		}
		var fresh []*model.DeliveryJobEvent
		for i := range j.Events {
			if j.Events[i].ID == 0 {
				j.Events[i].JobID = j.ID
				fresh = append(fresh, &j.Events[i])
			}
		}
		if len(fresh) > 0 {
			if err := t.tx.Create(fresh).Error; err != nil {
				return fmt.Errorf("append delivery job events: %w", err)
			}
		}
	}
	return nil
}

func insertNewTimeline(tx *gorm.DB, o *model.Order) error {
	var fresh []*model.TimelineEntry
	for i := range o.Timeline {
		if o.Timeline[i].ID == 0 {
			o.Timeline[i].OrderID = o.ID
			fresh = append(fresh, &o.Timeline[i])
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	if err := tx.Create(fresh).Error; err != nil {
		return fmt.Errorf("append timeline: %w", err)
	}
	return nil
}
