package service

import (
	"context"
	"strings"

	"kitarcycle/internal/model"
	"kitarcycle/internal/repository"

	"gorm.io/gorm"
)

// NotificationService is the in-app inbox and device registration side of
// notifications. Delivery lives in package notify.
type NotificationService struct {
	notificationRepo *repository.NotificationRepository
	tokenRepo        *repository.FcmTokenRepository
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{
		notificationRepo: repository.NewNotificationRepository(db),
		tokenRepo:        repository.NewFcmTokenRepository(db),
	}
}

func validRecipient(r model.Recipient) error {
	if !r.Kind.Valid() {
		return validationf("recipient kind must be user or organizer, got %q", r.Kind)
	}
	if r.ID <= 0 {
		return validationf("recipient id is required")
	}
	return nil
}

func (s *NotificationService) List(ctx context.Context, r model.Recipient, page, pageSize int) ([]*model.Notification, int64, error) {
	if err := validRecipient(r); err != nil {
		return nil, 0, err
	}
	page, pageSize = normalizePage(page, pageSize)
	return s.notificationRepo.ListByRecipient(ctx, r, page, pageSize)
}

func (s *NotificationService) UnreadCount(ctx context.Context, r model.Recipient) (int64, error) {
	if err := validRecipient(r); err != nil {
		return 0, err
	}
	return s.notificationRepo.CountUnread(ctx, r)
}

func (s *NotificationService) MarkRead(ctx context.Context, r model.Recipient, id int64) error {
	if err := validRecipient(r); err != nil {
		return err
	}
	return translate(s.notificationRepo.MarkRead(ctx, id, r))
}

func (s *NotificationService) MarkAllRead(ctx context.Context, r model.Recipient) (int64, error) {
	if err := validRecipient(r); err != nil {
		return 0, err
	}
	return s.notificationRepo.MarkAllRead(ctx, r)
}

func (s *NotificationService) RegisterToken(ctx context.Context, r model.Recipient, token, deviceType string) error {
	if err := validRecipient(r); err != nil {
		return err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return validationf("fcm token is required")
	}
	return s.tokenRepo.Upsert(ctx, r, token, strings.ToLower(strings.TrimSpace(deviceType)))
}

func (s *NotificationService) RemoveToken(ctx context.Context, r model.Recipient, token string) error {
	if err := validRecipient(r); err != nil {
		return err
	}
	if strings.TrimSpace(token) == "" {
		return validationf("fcm token is required")
	}
	return s.tokenRepo.Delete(ctx, r, strings.TrimSpace(token))
}
