package repository

import (
	"context"
	"errors"

	"kitarcycle/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrRewardNotFound     = errors.New("reward not found")
	ErrStockNotEnough     = errors.New("reward stock not enough")
	ErrStockLimit         = errors.New("reward stock limit reached")
	ErrCartItemNotFound   = errors.New("cart item not found")
	ErrRedemptionNotFound = errors.New("redemption not found")
)

type RewardRepository struct {
	db *gorm.DB
}

func NewRewardRepository(db *gorm.DB) *RewardRepository {
	return &RewardRepository{db: db}
}

func (r *RewardRepository) Create(ctx context.Context, reward *model.Reward) error {
	return r.db.WithContext(ctx).Create(reward).Error
}

func (r *RewardRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Reward, error) {
	if tx == nil {
		tx = r.db
	}
	var reward model.Reward
	err := tx.WithContext(ctx).Where("id = ?", id).First(&reward).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRewardNotFound
		}
		return nil, err
	}
	return &reward, nil
}

func (r *RewardRepository) List(ctx context.Context, page, pageSize int) ([]*model.Reward, int64, error) {
	var rewards []*model.Reward
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Reward{})

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rewards).Error

	return rewards, total, err
}

// GetByIDsForUpdate locks the given rewards in id order.
func (r *RewardRepository) GetByIDsForUpdate(ctx context.Context, tx *gorm.DB, ids []int64) (map[int64]*model.Reward, error) {
	var rewards []*model.Reward
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&rewards).Error
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*model.Reward, len(rewards))
	for _, rw := range rewards {
		byID[rw.ID] = rw
	}
	return byID, nil
}

func (r *RewardRepository) Update(ctx context.Context, reward *model.Reward) error {
	result := r.db.WithContext(ctx).
		Model(&model.Reward{}).
		Where("id = ?", reward.ID).
		Updates(map[string]interface{}{
			"name":            reward.Name,
			"description":     reward.Description,
			"points_required": reward.PointsRequired,
			"stock":           reward.Stock,
			"image":           reward.Image,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRewardNotFound
	}
	return nil
}

func (r *RewardRepository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Reward{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRewardNotFound
	}
	return nil
}

// DecrementStock applies only while stock covers quantity.
func (r *RewardRepository) DecrementStock(ctx context.Context, tx *gorm.DB, id int64, quantity int64) error {
	result := tx.WithContext(ctx).
		Model(&model.Reward{}).
		Where("id = ? AND stock >= ?", id, quantity).
		UpdateColumn("stock", gorm.Expr("stock - ?", quantity))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStockNotEnough
	}
	return nil
}

// Restock adds delta to the stock as long as the result stays within limit.
func (r *RewardRepository) Restock(ctx context.Context, id int64, delta, limit int64) error {
	result := r.db.WithContext(ctx).
		Model(&model.Reward{}).
		Where("id = ? AND stock <= ?", id, limit-delta).
		Update("stock", gorm.Expr("stock + ?", delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&model.Reward{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrRewardNotFound
		}
		return ErrStockLimit
	}
	return nil
}

// ============================================================
// Cart
// ============================================================

type CartRepository struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) *CartRepository {
	return &CartRepository{db: db}
}

// AddQuantity inserts the (account, reward) line or adds to its quantity.
func (r *CartRepository) AddQuantity(ctx context.Context, accountID, rewardID, quantity int64) (*model.CartItem, error) {
	item := &model.CartItem{
		AccountID: accountID,
		RewardID:  rewardID,
		Quantity:  quantity,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "account_id"}, {Name: "reward_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"quantity": gorm.Expr("quantity + ?", quantity),
			}),
		}).
		Create(item).Error
	if err != nil {
		return nil, err
	}
	return r.GetByAccountAndReward(ctx, accountID, rewardID)
}

func (r *CartRepository) GetByAccountAndReward(ctx context.Context, accountID, rewardID int64) (*model.CartItem, error) {
	var item model.CartItem
	err := r.db.WithContext(ctx).
		Preload("Reward").
		Where("account_id = ? AND reward_id = ?", accountID, rewardID).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCartItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (r *CartRepository) GetByID(ctx context.Context, id int64) (*model.CartItem, error) {
	var item model.CartItem
	err := r.db.WithContext(ctx).Preload("Reward").Where("id = ?", id).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCartItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (r *CartRepository) ListByAccountID(ctx context.Context, tx *gorm.DB, accountID int64) ([]*model.CartItem, error) {
	if tx == nil {
		tx = r.db
	}
	var items []*model.CartItem
	err := tx.WithContext(ctx).
		Preload("Reward").
		Where("account_id = ?", accountID).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *CartRepository) UpdateQuantity(ctx context.Context, id, quantity int64) error {
	result := r.db.WithContext(ctx).
		Model(&model.CartItem{}).
		Where("id = ?", id).
		Update("quantity", quantity)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCartItemNotFound
	}
	return nil
}

func (r *CartRepository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.CartItem{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCartItemNotFound
	}
	return nil
}

func (r *CartRepository) DeleteByAccountID(ctx context.Context, tx *gorm.DB, accountID int64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Where("account_id = ?", accountID).Delete(&model.CartItem{}).Error
}

// ============================================================
// Redemptions
// ============================================================

type RedemptionRepository struct {
	db *gorm.DB
}

func NewRedemptionRepository(db *gorm.DB) *RedemptionRepository {
	return &RedemptionRepository{db: db}
}

// Create inserts the redemption together with its items.
func (r *RedemptionRepository) Create(ctx context.Context, tx *gorm.DB, redemption *model.Redemption) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(redemption).Error
}

func (r *RedemptionRepository) GetByID(ctx context.Context, id int64) (*model.Redemption, error) {
	var redemption model.Redemption
	err := r.db.WithContext(ctx).
		Preload("Items.Reward").
		Where("id = ?", id).
		First(&redemption).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRedemptionNotFound
		}
		return nil, err
	}
	return &redemption, nil
}

func (r *RedemptionRepository) ListByAccountID(ctx context.Context, accountID int64) ([]*model.Redemption, error) {
	var redemptions []*model.Redemption
	err := r.db.WithContext(ctx).
		Preload("Items.Reward").
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&redemptions).Error
	return redemptions, err
}
