package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Freeeeeet/coach_marketplace/internal/model"
	"github.com/Freeeeeet/coach_marketplace/internal/notify"
	"github.com/Freeeeeet/coach_marketplace/internal/repository"
)

const defaultNotificationLimit = 50

// NotificationService хранит уведомления и рассылает их наружу
type NotificationService struct {
	store   repository.Store
	sender  notify.Sender
	baseURL string
	now     Clock
	logger  *zap.Logger
}

func NewNotificationService(store repository.Store, sender notify.Sender, baseURL string, clock Clock, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		store:   store,
		sender:  sender,
		baseURL: baseURL,
		now:     clock,
		logger:  logger,
	}
}

// Deliver отправляет уже закоммиченные уведомления.
// Ошибки транспорта только логируются: локальная транзакция уже завершена
func (s *NotificationService) Deliver(ctx context.Context, items outbox) {
	if s.sender == nil || len(items) == 0 {
		return
	}

	ids := make([]int64, 0, len(items))
	for _, n := range items {
		ids = append(ids, n.UserID)
	}
	users, err := s.store.Repos().Users.GetByIDs(ctx, ids)
	if err != nil {
		s.logger.Error("Failed to load notification recipients", zap.Error(err))
		return
	}
	byID := make(map[int64]*model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	for _, n := range items {
		user, ok := byID[n.UserID]
		if !ok {
			continue
		}
		msg, err := notify.Render(s.baseURL, user, n)
		if err != nil {
			s.logger.Error("Failed to render notification", zap.Int64("notification_id", n.ID), zap.Error(err))
			continue
		}
		if err := s.sender.Send(ctx, msg); err != nil {
			s.logger.Warn("Failed to deliver notification",
				zap.Int64("notification_id", n.ID),
				zap.Int64("user_id", n.UserID),
				zap.String("type", string(n.Type)),
				zap.Error(&Error{Kind: KindExternal, Err: err}),
			)
		}
	}
}

func (s *NotificationService) List(ctx context.Context, userID int64, limit int) ([]*model.Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	items, err := s.store.Repos().Notifications.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return items, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID int64) error {
	if err := s.store.Repos().Notifications.MarkRead(ctx, userID, notificationID); err != nil {
		return notFound("notification", err)
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	n, err := s.store.Repos().Notifications.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return n, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID int64) (int, error) {
	n, err := s.store.Repos().Notifications.UnreadCount(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

// Purge удаляет уведомления старше срока хранения
func (s *NotificationService) Purge(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-model.NotificationRetention)
	var deleted int64
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		n, err := r.Notifications.DeleteOlderThan(ctx, cutoff)
		deleted = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("Old notifications purged", zap.Int64("count", deleted), zap.Time("cutoff", cutoff))
	}
	return deleted, nil
}
