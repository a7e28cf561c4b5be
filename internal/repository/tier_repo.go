package repository

import (
	"context"
	"errors"

	"kitarcycle/internal/model"

	"gorm.io/gorm"
)

var (
	ErrTierNotFound = errors.New("tier level not found")
)

type TierRepository struct {
	db *gorm.DB
}

func NewTierRepository(db *gorm.DB) *TierRepository {
	return &TierRepository{db: db}
}

// List returns the catalog ordered by point_from.
func (r *TierRepository) List(ctx context.Context, tx *gorm.DB) ([]*model.TierLevel, error) {
	if tx == nil {
		tx = r.db
	}
	var tiers []*model.TierLevel
	err := tx.WithContext(ctx).Order("point_from ASC").Order("id ASC").Find(&tiers).Error
	return tiers, err
}

func (r *TierRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.TierLevel, error) {
	if tx == nil {
		tx = r.db
	}
	var tier model.TierLevel
	err := tx.WithContext(ctx).Where("id = ?", id).First(&tier).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTierNotFound
		}
		return nil, err
	}
	return &tier, nil
}

// FindForPoints returns the tier whose closed range contains points.
// Returns ErrTierNotFound when no range matches.
func (r *TierRepository) FindForPoints(ctx context.Context, tx *gorm.DB, points int64) (*model.TierLevel, error) {
	if tx == nil {
		tx = r.db
	}
	var tier model.TierLevel
	err := tx.WithContext(ctx).
		Where("point_from <= ? AND point_to >= ?", points, points).
		Order("point_from ASC").
		Order("id ASC").
		First(&tier).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTierNotFound
		}
		return nil, err
	}
	return &tier, nil
}

// Lowest returns the tier with the smallest point_from.
func (r *TierRepository) Lowest(ctx context.Context, tx *gorm.DB) (*model.TierLevel, error) {
	if tx == nil {
		tx = r.db
	}
	var tier model.TierLevel
	err := tx.WithContext(ctx).Order("point_from ASC").Order("id ASC").First(&tier).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTierNotFound
		}
		return nil, err
	}
	return &tier, nil
}

func (r *TierRepository) Create(ctx context.Context, tier *model.TierLevel) error {
	return r.db.WithContext(ctx).Create(tier).Error
}

func (r *TierRepository) Update(ctx context.Context, tier *model.TierLevel) error {
	result := r.db.WithContext(ctx).
		Model(&model.TierLevel{}).
		Where("id = ?", tier.ID).
		Updates(map[string]interface{}{
			"name":        tier.Name,
			"point_from":  tier.PointFrom,
			"point_to":    tier.PointTo,
			"multiplier":  tier.Multiplier,
			"image":       tier.Image,
			"description": tier.Description,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTierNotFound
	}
	return nil
}

func (r *TierRepository) Delete(ctx context.Context, tx *gorm.DB, id int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).Where("id = ?", id).Delete(&model.TierLevel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTierNotFound
	}
	return nil
}
