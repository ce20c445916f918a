package service

import (
	"context"

	"github.com/shinyyama/tailor-backend/internal/model"
	"github.com/shinyyama/tailor-backend/internal/repository"
	"go.uber.org/zap"
)

type NotificationService interface {
	Notify(ctx context.Context, userUID, typ, title, body string, orderID uint64)
	List(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, int64, error)
	MarkAllRead(ctx context.Context, userUID string) error
	MarkByOrder(ctx context.Context, userUID string, orderID uint64) error
}

type notificationService struct {
	repo   repository.NotificationRepository
	logger *zap.Logger
}

func NewNotificationService(repo repository.NotificationRepository, logger *zap.Logger) NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &notificationService{repo: repo, logger: logger}
}

// Notify is best-effort; failures are logged and never surface to the caller.
func (s *notificationService) Notify(ctx context.Context, userUID, typ, title, body string, orderID uint64) {
	if userUID == "" || typ == "" {
		return
	}
	n := &model.Notification{
		UserUID: userUID,
		Type:    typ,
		Title:   title,
		Body:    body,
	}
	if orderID != 0 {
		n.OrderID = &orderID
	}
	if err := s.repo.Create(ctx, n); err != nil {
		s.logger.Warn("notification not stored", zap.String("type", typ), zap.Uint64("order_id", orderID), zap.Error(err))
	}
}

func (s *notificationService) List(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, int64, error) {
	if userUID == "" {
		return nil, 0, nil
	}
	list, err := s.repo.ListByUser(ctx, userUID, unreadOnly, limit)
	if err != nil {
		return nil, 0, err
	}
	cnt, err := s.repo.CountUnread(ctx, userUID)
	if err != nil {
		return list, 0, err
	}
	return list, cnt, nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userUID string) error {
	if userUID == "" {
		return nil
	}
	return s.repo.MarkAllRead(ctx, userUID)
}

func (s *notificationService) MarkByOrder(ctx context.Context, userUID string, orderID uint64) error {
	if userUID == "" || orderID == 0 {
		return nil
	}
	return s.repo.MarkByOrder(ctx, userUID, orderID)
}
