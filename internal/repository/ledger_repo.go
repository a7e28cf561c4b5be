package repository

import (
	"context"
	"time"

	"kitarcycle/internal/model"

	"gorm.io/gorm"
)

// LedgerRepository is the store of point entries. It only ever inserts.
type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.PointEntry) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

func (r *LedgerRepository) ExistsForPickup(ctx context.Context, tx *gorm.DB, pickupID int64) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	var count int64
	err := tx.WithContext(ctx).Model(&model.PointEntry{}).Where("pickup_id = ?", pickupID).Count(&count).Error
	return count > 0, err
}

// SumBetween totals points earned in [from, to).
func (r *LedgerRepository) SumBetween(ctx context.Context, accountID int64, from, to time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&model.PointEntry{}).
		Select("COALESCE(SUM(points_earned), 0)").
		Where("account_id = ? AND created_at >= ? AND created_at < ?", accountID, from, to).
		Scan(&total).Error
	return total, err
}

func (r *LedgerRepository) ListByAccountID(ctx context.Context, accountID int64, page, pageSize int) ([]*model.PointEntry, int64, error) {
	var entries []*model.PointEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&model.PointEntry{}).Where("account_id = ?", accountID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error

	return entries, total, err
}

func (r *LedgerRepository) ListAllByAccountID(ctx context.Context, accountID int64) ([]*model.PointEntry, error) {
	var entries []*model.PointEntry
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&entries).Error
	return entries, err
}
