package repository

import (
	"context"
	"errors"
	"time"

	"kitarcycle/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *NotificationRepository) GetByID(ctx context.Context, id int64) (*model.Notification, error) {
	var n model.Notification
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&n).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepository) MarkSent(ctx context.Context, id int64, providerMessageID string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_sent":             true,
			"sent_at":             &now,
			"provider_message_id": providerMessageID,
		}).Error
}

func (r *NotificationRepository) IncrementRetryCount(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("id = ?", id).
		UpdateColumn("retry_count", gorm.Expr("retry_count + 1")).Error
}

// ListUnsent returns push deliveries still owed, oldest first.
func (r *NotificationRepository) ListUnsent(ctx context.Context, maxRetries, limit int) ([]*model.Notification, error) {
	var list []*model.Notification
	err := r.db.WithContext(ctx).
		Where("is_sent = ? AND retry_count < ?", false, maxRetries).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipient model.Recipient, page, pageSize int) ([]*model.Notification, int64, error) {
	var list []*model.Notification
	var total int64

	query := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("recipient_kind = ? AND recipient_id = ?", recipient.Kind, recipient.ID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&list).Error

	return list, total, err
}

func (r *NotificationRepository) CountUnread(ctx context.Context, recipient model.Recipient) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("recipient_kind = ? AND recipient_id = ? AND is_read = ?", recipient.Kind, recipient.ID, false).
		Count(&count).Error
	return count, err
}

// MarkRead only touches a notification owned by recipient.
func (r *NotificationRepository) MarkRead(ctx context.Context, id int64, recipient model.Recipient) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("id = ? AND recipient_kind = ? AND recipient_id = ?", id, recipient.Kind, recipient.ID).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": &now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipient model.Recipient) (int64, error) {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("recipient_kind = ? AND recipient_id = ? AND is_read = ?", recipient.Kind, recipient.ID, false).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": &now,
		})
	return result.RowsAffected, result.Error
}

// ============================================================
// FCM tokens
// ============================================================

type FcmTokenRepository struct {
	db *gorm.DB
}

func NewFcmTokenRepository(db *gorm.DB) *FcmTokenRepository {
	return &FcmTokenRepository{db: db}
}

// Upsert registers token for recipient. A token seen before is moved to
// the new recipient and reactivated.
func (r *FcmTokenRepository) Upsert(ctx context.Context, recipient model.Recipient, token, deviceType string) error {
	row := &model.FcmToken{
		RecipientKind: recipient.Kind,
		RecipientID:   recipient.ID,
		Token:         token,
		DeviceType:    deviceType,
		IsActive:      true,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token"}},
			DoUpdates: clause.AssignmentColumns([]string{"recipient_kind", "recipient_id", "device_type", "is_active"}),
		}).
		Create(row).Error
}

func (r *FcmTokenRepository) ListActive(ctx context.Context, recipient model.Recipient) ([]*model.FcmToken, error) {
	var tokens []*model.FcmToken
	err := r.db.WithContext(ctx).
		Where("recipient_kind = ? AND recipient_id = ? AND is_active = ?", recipient.Kind, recipient.ID, true).
		Order("id ASC").
		Find(&tokens).Error
	return tokens, err
}

func (r *FcmTokenRepository) Deactivate(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&model.FcmToken{}).
		Where("token IN ?", tokens).
		Update("is_active", false).Error
}

func (r *FcmTokenRepository) Touch(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&model.FcmToken{}).
		Where("token IN ?", tokens).
		Update("last_used_at", &now).Error
}

func (r *FcmTokenRepository) Delete(ctx context.Context, recipient model.Recipient, token string) error {
	return r.db.WithContext(ctx).
		Where("recipient_kind = ? AND recipient_id = ? AND token = ?", recipient.Kind, recipient.ID, token).
		Delete(&model.FcmToken{}).Error
}
