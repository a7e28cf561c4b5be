package repository

import (
	"context"
	"errors"

	"kitarcycle/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrPointsNotEnough  = errors.New("points not enough")
	ErrOptimisticLock   = errors.New("optimistic lock conflict, retry")
	ErrEmailAlreadyUsed = errors.New("email already registered")
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, tx *gorm.DB, account *model.Account) error {
	if tx == nil {
		tx = r.db
	}
	var count int64
	if err := tx.WithContext(ctx).Model(&model.Account{}).Where("email = ?", account.Email).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrEmailAlreadyUsed
	}
	return tx.WithContext(ctx).Create(account).Error
}

func (r *AccountRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Account, error) {
	if tx == nil {
		tx = r.db
	}
	var account model.Account
	err := tx.WithContext(ctx).Preload("TierLevel").Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetByIDForUpdate locks the account row until tx ends.
func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.Account, error) {
	var account model.Account
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// Credit adds points to both the spendable balance and the lifetime total.
// The update only applies if the account is still at version.
func (r *AccountRepository) Credit(ctx context.Context, tx *gorm.DB, id int64, points int64, version int) error {
	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ? AND version = ?", id, version).
		Updates(map[string]interface{}{
			"current_points":      gorm.Expr("current_points + ?", points),
			"total_points_earned": gorm.Expr("total_points_earned + ?", points),
			"version":             gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	return nil
}

// Debit subtracts points from the spendable balance only. total_points_earned
// is never touched.
func (r *AccountRepository) Debit(ctx context.Context, tx *gorm.DB, id int64, points int64, version int) error {
	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ? AND current_points >= ? AND version = ?", id, points, version).
		Updates(map[string]interface{}{
			"current_points": gorm.Expr("current_points - ?", points),
			"version":        gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		// tell "not enough" apart from "someone else got there first"
		var account model.Account
		if err := tx.WithContext(ctx).Select("id", "current_points").Where("id = ?", id).First(&account).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAccountNotFound
			}
			return err
		}
		if account.CurrentPoints < points {
			return ErrPointsNotEnough
		}
		return ErrOptimisticLock
	}

	return nil
}

func (r *AccountRepository) UpdateTier(ctx context.Context, tx *gorm.DB, id int64, tierID int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ?", id).
		Update("tier_level_id", tierID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ClearTier detaches every account from tierID, e.g. before the tier is deleted.
func (r *AccountRepository) ClearTier(ctx context.Context, tx *gorm.DB, tierID int64) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("tier_level_id = ?", tierID).
		Update("tier_level_id", nil)
	return result.RowsAffected, result.Error
}

// TopByTotalEarned orders by lifetime points, ties broken by id.
func (r *AccountRepository) TopByTotalEarned(ctx context.Context, limit int) ([]*model.Account, error) {
	var accounts []*model.Account
	err := r.db.WithContext(ctx).
		Preload("TierLevel").
		Order("total_points_earned DESC").
		Order("id ASC").
		Limit(limit).
		Find(&accounts).Error
	return accounts, err
}

// ListIDsAfter pages through account ids in ascending order.
func (r *AccountRepository) ListIDsAfter(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
