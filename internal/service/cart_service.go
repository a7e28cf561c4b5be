package service

import (
	"context"
	"errors"

	"kitarcycle/internal/model"
	"kitarcycle/internal/repository"

	"gorm.io/gorm"
)

// CartService stages rewards for checkout. Stock is not reserved here; it is
// checked and taken at checkout.
type CartService struct {
	cartRepo    *repository.CartRepository
	rewardRepo  *repository.RewardRepository
	accountRepo *repository.AccountRepository
}

func NewCartService(db *gorm.DB) *CartService {
	return &CartService{
		cartRepo:    repository.NewCartRepository(db),
		rewardRepo:  repository.NewRewardRepository(db),
		accountRepo: repository.NewAccountRepository(db),
	}
}

type CartView struct {
	AccountID   int64             `json:"account_id"`
	Items       []*model.CartItem `json:"items"`
	TotalPoints int64             `json:"total_points"`
}

func (s *CartService) List(ctx context.Context, accountID int64) (*CartView, error) {
	if _, err := s.accountRepo.GetByID(ctx, nil, accountID); err != nil {
		return nil, translate(err)
	}
	items, err := s.cartRepo.ListByAccountID(ctx, nil, accountID)
	if err != nil {
		return nil, err
	}
	total, err := cartTotal(items, func(it *model.CartItem) (int64, bool) {
		if it.Reward == nil {
			return 0, false
		}
		return it.Reward.PointsRequired, true
	})
	if err != nil {
		return nil, err
	}
	return &CartView{AccountID: accountID, Items: items, TotalPoints: total}, nil
}

// Add puts quantity of a reward in the cart, merging with an existing line.
func (s *CartService) Add(ctx context.Context, accountID, rewardID, quantity int64) (*model.CartItem, error) {
	if err := checkQuantity(quantity); err != nil {
		return nil, err
	}
	if _, err := s.accountRepo.GetByID(ctx, nil, accountID); err != nil {
		return nil, translate(err)
	}
	if _, err := s.rewardRepo.GetByID(ctx, nil, rewardID); err != nil {
		return nil, translate(err)
	}
	existing, err := s.cartRepo.GetByAccountAndReward(ctx, accountID, rewardID)
	switch {
	case err == nil:
		if existing.Quantity+quantity > MaxCartQuantity {
			return nil, validationf("cart quantity for reward %d would exceed %d", rewardID, MaxCartQuantity)
		}
	case !errors.Is(err, repository.ErrCartItemNotFound):
		return nil, err
	}
	return s.cartRepo.AddQuantity(ctx, accountID, rewardID, quantity)
}

func (s *CartService) UpdateQuantity(ctx context.Context, itemID, quantity int64) (*model.CartItem, error) {
	if err := checkQuantity(quantity); err != nil {
		return nil, err
	}
	if err := s.cartRepo.UpdateQuantity(ctx, itemID, quantity); err != nil {
		return nil, translate(err)
	}
	item, err := s.cartRepo.GetByID(ctx, itemID)
	return item, translate(err)
}

func (s *CartService) Remove(ctx context.Context, itemID int64) error {
	return translate(s.cartRepo.Delete(ctx, itemID))
}

func checkQuantity(quantity int64) error {
	if quantity <= 0 {
		return validationf("quantity must be at least 1")
	}
	if quantity > MaxCartQuantity {
		return validationf("quantity must not exceed %d", MaxCartQuantity)
	}
	return nil
}
