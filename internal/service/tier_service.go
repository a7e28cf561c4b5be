package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"kitarcycle/internal/config"
	"kitarcycle/internal/infrastructure/cache"
	"kitarcycle/internal/model"
	"kitarcycle/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const maxTierNameLength = 20

// TierService keeps every account's tier consistent with its lifetime
// earned points.
type TierService struct {
	db          *gorm.DB
	cfg         *config.Config
	tx          *txRunner
	tierRepo    *repository.TierRepository
	accountRepo *repository.AccountRepository
	outboxRepo  *repository.OutboxRepository
	notifier    Notifier
	leaderboard *cache.LeaderboardCache
}

func NewTierService(db *gorm.DB, rdb *redis.Client, cfg *config.Config, notifier Notifier) *TierService {
	return &TierService{
		db:          db,
		cfg:         cfg,
		tx:          newTxRunner(db, cfg.Business.TxMaxRetries, cfg.Business.TxRetryBackoff),
		tierRepo:    repository.NewTierRepository(db),
		accountRepo: repository.NewAccountRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		notifier:    notifier,
		leaderboard: cache.NewLeaderboardCache(rdb, cfg.Business.LeaderboardCacheTTL),
	}
}

// ReconcileResult is the tier an account ends up on. Previous is nil when
// the account had no tier before.
type ReconcileResult struct {
	Tier     *model.TierLevel
	Previous *model.TierLevel
	Changed  bool
}

// DefaultTier returns the designated fallback tier: business.default_tier_id
// when set, otherwise the tier with the lowest point_from. A catalog without
// one is a broken deployment and reported as ErrConfiguration.
func (s *TierService) DefaultTier(ctx context.Context, tx *gorm.DB) (*model.TierLevel, error) {
	var (
		tier *model.TierLevel
		err  error
	)
	if id := s.cfg.Business.DefaultTierID; id > 0 {
		tier, err = s.tierRepo.GetByID(ctx, tx, id)
	} else {
		tier, err = s.tierRepo.Lowest(ctx, tx)
	}
	if errors.Is(err, repository.ErrTierNotFound) {
		log.WithField("default_tier_id", s.cfg.Business.DefaultTierID).
			Error("[TierService] default tier level is missing from the catalog")
		return nil, ErrNoDefaultTier
	}
	return tier, err
}

// Reconcile moves account onto the tier containing its total_points_earned,
// falling back to the default tier when no range matches. It runs in tx and
// writes nothing when the account is already on the right tier.
func (s *TierService) Reconcile(ctx context.Context, tx *gorm.DB, account *model.Account) (*ReconcileResult, error) {
	target, err := s.tierRepo.FindForPoints(ctx, tx, account.TotalPointsEarned)
	if errors.Is(err, repository.ErrTierNotFound) {
		target, err = s.DefaultTier(ctx, tx)
	}
	if err != nil {
		return nil, err
	}

	if account.HasTier(target.ID) {
		return &ReconcileResult{Tier: target, Previous: target}, nil
	}

	var previous *model.TierLevel
	if account.TierLevelID != nil {
		previous, err = s.tierRepo.GetByID(ctx, tx, *account.TierLevelID)
		if err != nil && !errors.Is(err, repository.ErrTierNotFound) {
			return nil, err
		}
	}

	if err := s.accountRepo.UpdateTier(ctx, tx, account.ID, target.ID); err != nil {
		return nil, err
	}
	account.TierLevelID = &target.ID
	account.TierLevel = target

	payload := map[string]interface{}{
		"account_id":          account.ID,
		"tier_level_id":       target.ID,
		"tier_name":           target.Name,
		"total_points_earned": account.TotalPointsEarned,
	}
	if previous != nil {
		payload["previous_tier_level_id"] = previous.ID
		payload["previous_tier_name"] = previous.Name
	}
	if err := writeEvent(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.PointsEvents, model.EventTierChanged, payload); err != nil {
		return nil, err
	}

	return &ReconcileResult{Tier: target, Previous: previous, Changed: true}, nil
}

// MultiplierFor returns the earning multiplier of the account's current
// tier, or 1 when it has none.
func (s *TierService) MultiplierFor(ctx context.Context, tx *gorm.DB, account *model.Account) (decimal.Decimal, error) {
	if account.TierLevelID == nil {
		return minMultiplier, nil
	}
	tier, err := s.tierRepo.GetByID(ctx, tx, *account.TierLevelID)
	if errors.Is(err, repository.ErrTierNotFound) {
		log.WithField("account_id", account.ID).Warn("[TierService] account points at a deleted tier, using multiplier 1")
		return minMultiplier, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return tier.Multiplier, nil
}

// Assign reconciles one account in its own transaction.
func (s *TierService) Assign(ctx context.Context, accountID int64) (*ReconcileResult, error) {
	var result *ReconcileResult
	err := s.tx.run(ctx, "assign tier", func(tx *gorm.DB) error {
		account, err := s.accountRepo.GetByIDForUpdate(ctx, tx, accountID)
		if err != nil {
			return err
		}
		result, err = s.Reconcile(ctx, tx, account)
		return err
	})
	if err != nil {
		return nil, err
	}
	if result.Changed {
		invalidateLeaderboard(ctx, s.leaderboard)
		s.notifier.Notify(ctx, tierChangedNotice(accountID, result))
	}
	return result, nil
}

// ReconcileAll walks every account in id order, batch at a time, and
// returns how many were moved. A configuration error stops the walk.
func (s *TierService) ReconcileAll(ctx context.Context, batch int) (int, error) {
	if batch < 1 {
		batch = 100
	}
	changed := 0
	var afterID int64
	for {
		ids, err := s.accountRepo.ListIDsAfter(ctx, afterID, batch)
		if err != nil {
			return changed, err
		}
		if len(ids) == 0 {
			return changed, nil
		}
		for _, id := range ids {
			result, err := s.Assign(ctx, id)
			if err != nil {
				if errors.Is(err, ErrConfiguration) || ctx.Err() != nil {
					return changed, err
				}
				log.WithFields(log.Fields{"account_id": id, "error": err}).Warn("[TierService] reconcile failed")
				continue
			}
			if result.Changed {
				changed++
			}
		}
		afterID = ids[len(ids)-1]
	}
}

func tierChangedNotice(accountID int64, result *ReconcileResult) Notice {
	return Notice{
		Recipient: model.UserRecipient(accountID),
		Type:      model.NotificationTypeTierChanged,
		Title:     "Tier updated",
		Message:   fmt.Sprintf("You are now %s.", result.Tier.Name),
		Data: map[string]interface{}{
			"tier_level_id": result.Tier.ID,
			"tier_name":     result.Tier.Name,
			"multiplier":    result.Tier.Multiplier.String(),
		},
	}
}

// ============================================================
// Catalog
// ============================================================

type TierInput struct {
	Name        string          `json:"name"`
	PointFrom   int64           `json:"point_from"`
	PointTo     int64           `json:"point_to"`
	Multiplier  decimal.Decimal `json:"multiplier"`
	Image       string          `json:"image"`
	Description string          `json:"description"`
}

func (in *TierInput) validate() error {
	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		return validationf("name is required")
	case utf8.RuneCountInString(name) > maxTierNameLength:
		return validationf("name must be at most %d characters", maxTierNameLength)
	case in.PointFrom < 0:
		return validationf("point_from must not be negative")
	case in.PointTo <= in.PointFrom:
		return validationf("point_to must be greater than point_from")
	case in.Multiplier.LessThan(minMultiplier):
		return validationf("multiplier must be at least 1")
	}
	in.Name = name
	return nil
}

func (s *TierService) List(ctx context.Context) ([]*model.TierLevel, error) {
	return s.tierRepo.List(ctx, nil)
}

func (s *TierService) Get(ctx context.Context, id int64) (*model.TierLevel, error) {
	tier, err := s.tierRepo.GetByID(ctx, nil, id)
	return tier, translate(err)
}

func (s *TierService) Create(ctx context.Context, in TierInput) (*model.TierLevel, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	tier := &model.TierLevel{
		Name:        in.Name,
		PointFrom:   in.PointFrom,
		PointTo:     in.PointTo,
		Multiplier:  in.Multiplier,
		Image:       in.Image,
		Description: in.Description,
	}
	if err := s.tierRepo.Create(ctx, tier); err != nil {
		return nil, fmt.Errorf("create tier level: %w", err)
	}
	log.WithFields(log.Fields{"tier_level_id": tier.ID, "name": tier.Name}).Info("[TierService] tier level created")
	return tier, nil
}

// Update changes a tier's range or multiplier. Accounts are moved lazily:
// on their next earn, on Assign, or by the reconcile job.
func (s *TierService) Update(ctx context.Context, id int64, in TierInput) (*model.TierLevel, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	tier := &model.TierLevel{
		ID:          id,
		Name:        in.Name,
		PointFrom:   in.PointFrom,
		PointTo:     in.PointTo,
		Multiplier:  in.Multiplier,
		Image:       in.Image,
		Description: in.Description,
	}
	if err := s.tierRepo.Update(ctx, tier); err != nil {
		return nil, translate(err)
	}
	invalidateLeaderboard(ctx, s.leaderboard)
	return s.Get(ctx, id)
}

// Delete removes a tier and detaches its accounts. The designated default
// tier cannot be deleted.
func (s *TierService) Delete(ctx context.Context, id int64) error {
	err := s.tx.run(ctx, "delete tier", func(tx *gorm.DB) error {
		if _, err := s.tierRepo.GetByID(ctx, tx, id); err != nil {
			return err
		}
		def, err := s.DefaultTier(ctx, tx)
		if err != nil {
			return err
		}
		if def.ID == id {
			return conflictf("tier level %d is the default tier and cannot be deleted", id)
		}
		detached, err := s.accountRepo.ClearTier(ctx, tx, id)
		if err != nil {
			return err
		}
		if detached > 0 {
			log.WithFields(log.Fields{"tier_level_id": id, "accounts": detached}).
				Info("[TierService] accounts detached from deleted tier, awaiting reconcile")
		}
		return s.tierRepo.Delete(ctx, tx, id)
	})
	if err != nil {
		return err
	}
	invalidateLeaderboard(ctx, s.leaderboard)
	return nil
}
