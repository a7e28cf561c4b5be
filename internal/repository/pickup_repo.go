package repository

import (
	"context"
	"errors"

	"kitarcycle/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrPickupNotFound      = errors.New("pickup not found")
	ErrPickupStatusInvalid = errors.New("pickup status transition not allowed")
	ErrCategoryNotFound    = errors.New("category not found")
)

type PickupRepository struct {
	db *gorm.DB
}

func NewPickupRepository(db *gorm.DB) *PickupRepository {
	return &PickupRepository{db: db}
}

func (r *PickupRepository) Create(ctx context.Context, tx *gorm.DB, pickup *model.Pickup) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(pickup).Error
}

func (r *PickupRepository) GetByID(ctx context.Context, id int64) (*model.Pickup, error) {
	var pickup model.Pickup
	err := r.db.WithContext(ctx).Preload("Category").Where("id = ?", id).First(&pickup).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPickupNotFound
		}
		return nil, err
	}
	return &pickup, nil
}

func (r *PickupRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.Pickup, error) {
	var pickup model.Pickup
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&pickup).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPickupNotFound
		}
		return nil, err
	}
	return &pickup, nil
}

// UpdateStatus moves a pickup from fromStatus to toStatus and applies extra
// column updates in the same statement. It matches zero rows, and fails with
// ErrPickupStatusInvalid, when the pickup is no longer in fromStatus.
func (r *PickupRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, fromStatus, toStatus string, extra map[string]interface{}) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrPickupStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}
	for k, v := range extra {
		updates[k] = v
	}

	result := tx.WithContext(ctx).
		Model(&model.Pickup{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrPickupStatusInvalid
	}

	return nil
}

// UpdateActualWeight records the weighed amount without changing status.
func (r *PickupRepository) UpdateActualWeight(ctx context.Context, tx *gorm.DB, id int64, weight decimal.Decimal) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.Pickup{}).
		Where("id = ?", id).
		Update("actual_weight", weight).Error
}

func (r *PickupRepository) ListByAccountID(ctx context.Context, accountID int64, page, pageSize int) ([]*model.Pickup, int64, error) {
	var pickups []*model.Pickup
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Pickup{}).Where("account_id = ?", accountID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Preload("Category").
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&pickups).Error

	return pickups, total, err
}

// ============================================================
// Categories
// ============================================================

type CategoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

func (r *CategoryRepository) Create(ctx context.Context, category *model.Category) error {
	return r.db.WithContext(ctx).Create(category).Error
}

func (r *CategoryRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Category, error) {
	if tx == nil {
		tx = r.db
	}
	var category model.Category
	err := tx.WithContext(ctx).Where("id = ?", id).First(&category).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}
	return &category, nil
}
