package repository

import (
	"context"
	"sort"

	"github.com/shinyyama/tailor-backend/internal/model"
	"gorm.io/gorm"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	ListByUser(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, error)
	MarkAllRead(ctx context.Context, userUID string) error
	MarkByOrder(ctx context.Context, userUID string, orderID uint64) error
	CountUnread(ctx context.Context, userUID string) (int64, error)
	SetDB(db *gorm.DB)
}

type notificationRepository struct {
	dbHandle
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	r := &notificationRepository{}
	r.SetDB(db)
	return r
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 50 {
		return 20
	}
	return limit
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	return db.Create(n).Error
}

func (r *notificationRepository) ListByUser(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var list []model.Notification
	q := db.Model(&model.Notification{}).Where("user_uid = ?", userUID)
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}
	if err := q.Order("created_at DESC").Limit(clampLimit(limit)).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userUID string) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	return db.Model(&model.Notification{}).
		Where("user_uid = ? AND read_at IS NULL", userUID).
		Update("read_at", db.NowFunc()).Error
}

func (r *notificationRepository) MarkByOrder(ctx context.Context, userUID string, orderID uint64) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	return db.Model(&model.Notification{}).
		Where("user_uid = ? AND order_id = ? AND read_at IS NULL", userUID, orderID).
		Update("read_at", db.NowFunc()).Error
}

func (r *notificationRepository) CountUnread(ctx context.Context, userUID string) (int64, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return 0, err
	}
	var cnt int64
	if err := db.Model(&model.Notification{}).
		Where("user_uid = ? AND read_at IS NULL", userUID).
		Count(&cnt).Error; err != nil {
		return 0, err
	}
	return cnt, nil
}

type memNotifications struct{ s *MemoryStore }

func (r *memNotifications) SetDB(*gorm.DB) {}

func (r *memNotifications) Create(_ context.Context, n *model.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n.ID = r.s.id("notifications")
	n.CreatedAt = r.s.now()
	r.s.notifications = append(r.s.notifications, *n)
	return nil
}

func (r *memNotifications) ListByUser(_ context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []model.Notification
	for _, n := range r.s.notifications {
		if n.UserUID != userUID || (unreadOnly && n.ReadAt != nil) {
			continue
		}
		list = append(list, n)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	if limit = clampLimit(limit); len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (r *memNotifications) mark(match func(model.Notification) bool) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	for i := range r.s.notifications {
		if r.s.notifications[i].ReadAt == nil && match(r.s.notifications[i]) {
			r.s.notifications[i].ReadAt = &now
		}
	}
}

func (r *memNotifications) MarkAllRead(_ context.Context, userUID string) error {
	r.mark(func(n model.Notification) bool { return n.UserUID == userUID })
	return nil
}

func (r *memNotifications) MarkByOrder(_ context.Context, userUID string, orderID uint64) error {
	r.mark(func(n model.Notification) bool {
		return n.UserUID == userUID && n.OrderID != nil && *n.OrderID == orderID
	})
	return nil
}

func (r *memNotifications) CountUnread(_ context.Context, userUID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var cnt int64
	for _, n := range r.s.notifications {
		if n.UserUID == userUID && n.ReadAt == nil {
			cnt++
		}
	}
	return cnt, nil
}
