package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kitarcycle/internal/model"
	"kitarcycle/internal/repository"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type RewardService struct {
	rewardRepo     *repository.RewardRepository
	redemptionRepo *repository.RedemptionRepository
}

func NewRewardService(db *gorm.DB) *RewardService {
	return &RewardService{
		rewardRepo:     repository.NewRewardRepository(db),
		redemptionRepo: repository.NewRedemptionRepository(db),
	}
}

type RewardInput struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	PointsRequired int64  `json:"points_required"`
	Stock          int64  `json:"stock"`
	Image          string `json:"image"`
}

func (in *RewardInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	switch {
	case in.Name == "":
		return validationf("name is required")
	case in.PointsRequired < 0 || in.PointsRequired > MaxPointsRequired:
		return validationf("points_required must be between 0 and %d", MaxPointsRequired)
	case in.Stock < 0 || in.Stock > MaxRewardStock:
		return validationf("stock must be between 0 and %d", MaxRewardStock)
	}
	return nil
}

func (s *RewardService) List(ctx context.Context, page, pageSize int) ([]*model.Reward, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	return s.rewardRepo.List(ctx, page, pageSize)
}

func (s *RewardService) Get(ctx context.Context, id int64) (*model.Reward, error) {
	reward, err := s.rewardRepo.GetByID(ctx, nil, id)
	return reward, translate(err)
}

func (s *RewardService) Create(ctx context.Context, in RewardInput) (*model.Reward, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	reward := &model.Reward{
		Name:           in.Name,
		Description:    in.Description,
		PointsRequired: in.PointsRequired,
		Stock:          in.Stock,
		Image:          in.Image,
	}
	if err := s.rewardRepo.Create(ctx, reward); err != nil {
		return nil, fmt.Errorf("create reward: %w", err)
	}
	return reward, nil
}

func (s *RewardService) Update(ctx context.Context, id int64, in RewardInput) (*model.Reward, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	reward := &model.Reward{
		ID:             id,
		Name:           in.Name,
		Description:    in.Description,
		PointsRequired: in.PointsRequired,
		Stock:          in.Stock,
		Image:          in.Image,
	}
	if err := s.rewardRepo.Update(ctx, reward); err != nil {
		return nil, translate(err)
	}
	return s.Get(ctx, id)
}

func (s *RewardService) Delete(ctx context.Context, id int64) error {
	return translate(s.rewardRepo.Delete(ctx, id))
}

// Restock adds delta units. Removing stock goes through Update.
func (s *RewardService) Restock(ctx context.Context, id int64, delta int64) (*model.Reward, error) {
	if delta <= 0 || delta > MaxRewardStock {
		return nil, validationf("restock quantity must be between 1 and %d", MaxRewardStock)
	}
	if _, err := s.rewardRepo.GetByID(ctx, nil, id); err != nil {
		return nil, translate(err)
	}
	if err := s.rewardRepo.Restock(ctx, id, delta, MaxRewardStock); err != nil {
		if errors.Is(err, repository.ErrStockLimit) {
			return nil, validationf("restock would take reward %d above %d units", id, MaxRewardStock)
		}
		return nil, translate(err)
	}
	log.WithFields(log.Fields{"reward_id": id, "delta": delta}).Info("[RewardService] restocked")
	return s.Get(ctx, id)
}

// ============================================================
// Redemptions (read only)
// ============================================================

func (s *RewardService) ListRedemptions(ctx context.Context, accountID int64) ([]*model.Redemption, error) {
	if accountID <= 0 {
		return nil, validationf("account_id is required")
	}
	return s.redemptionRepo.ListByAccountID(ctx, accountID)
}

func (s *RewardService) GetRedemption(ctx context.Context, id int64) (*model.Redemption, error) {
	redemption, err := s.redemptionRepo.GetByID(ctx, id)
	return redemption, translate(err)
}
