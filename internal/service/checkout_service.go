package service

import (
	"context"
	"fmt"

	"kitarcycle/internal/config"
	"kitarcycle/internal/infrastructure/cache"
	"kitarcycle/internal/infrastructure/lock"
	"kitarcycle/internal/model"
	"kitarcycle/internal/repository"
	"kitarcycle/pkg/idgen"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ============================================================================
// Checkout
// ============================================================================
//
// Converts an account's cart into a redemption.
//
//   lock:   optional per-account Redis lock, then account row + reward rows
//           FOR UPDATE inside the transaction
//   check:  points cover the total, then every line's stock, before any write
//   write:  redemption + items, guarded stock decrements, guarded points
//           decrement, clear cart, outbox event
//
// A guarded update that matches no rows aborts the whole transaction and the
// attempt is retried, so two checkouts racing for the last unit can never
// both succeed. total_points_earned is never touched by spending.
// ============================================================================

type CheckoutService struct {
	db             *gorm.DB
	cfg            *config.Config
	tx             *txRunner
	locker         *lock.AccountLocker
	accountRepo    *repository.AccountRepository
	cartRepo       *repository.CartRepository
	rewardRepo     *repository.RewardRepository
	redemptionRepo *repository.RedemptionRepository
	outboxRepo     *repository.OutboxRepository
	notifier       Notifier
	leaderboard    *cache.LeaderboardCache
}

func NewCheckoutService(db *gorm.DB, rdb *redis.Client, cfg *config.Config, notifier Notifier) *CheckoutService {
	return &CheckoutService{
		db:             db,
		cfg:            cfg,
		tx:             newTxRunner(db, cfg.Business.TxMaxRetries, cfg.Business.TxRetryBackoff),
		locker:         lock.NewAccountLocker(rdb, cfg.Business.LockTTL, cfg.Business.LockRetryDelay, cfg.Business.LockMaxAttempts),
		accountRepo:    repository.NewAccountRepository(db),
		cartRepo:       repository.NewCartRepository(db),
		rewardRepo:     repository.NewRewardRepository(db),
		redemptionRepo: repository.NewRedemptionRepository(db),
		outboxRepo:     repository.NewOutboxRepository(db),
		notifier:       notifier,
		leaderboard:    cache.NewLeaderboardCache(rdb, cfg.Business.LeaderboardCacheTTL),
	}
}

type CheckoutResult struct {
	Redemption    *model.Redemption `json:"redemption"`
	CurrentPoints int64             `json:"current_points"`
}

func (s *CheckoutService) Checkout(ctx context.Context, accountID int64) (*CheckoutResult, error) {
	if accountID <= 0 {
		return nil, validationf("account_id is required")
	}

	release, err := s.locker.Lock(ctx, "checkout", accountID, idgen.GenerateMessageKey())
	if err != nil {
		return nil, &BizError{Kind: ErrTransientStore, Msg: "checkout already in progress for this account, try again", Err: err}
	}
	defer release()

	var result *CheckoutResult
	err = s.tx.run(ctx, "checkout", func(tx *gorm.DB) error {
		var err error
		result, err = s.checkout(ctx, tx, accountID)
		return err
	})
	if err != nil {
		log.WithFields(log.Fields{"account_id": accountID, "error": err}).Info("[Checkout] checkout rejected")
		return nil, err
	}

	invalidateLeaderboard(ctx, s.leaderboard)

	red := result.Redemption
	log.WithFields(log.Fields{
		"account_id":    accountID,
		"redemption_no": red.RedemptionNo,
		"points_spent":  red.TotalPointsSpent,
	}).Info("[Checkout] redemption created")

	s.notifier.Notify(ctx, Notice{
		Recipient: model.UserRecipient(accountID),
		Type:      model.NotificationTypeRedemption,
		Title:     "Redemption successful",
		Message:   fmt.Sprintf("You redeemed %d points. Remaining balance: %d.", red.TotalPointsSpent, red.BalanceAfter),
		Data: map[string]interface{}{
			"redemption_id": red.ID,
			"redemption_no": red.RedemptionNo,
			"points_spent":  red.TotalPointsSpent,
		},
	})
	return result, nil
}

func (s *CheckoutService) checkout(ctx context.Context, tx *gorm.DB, accountID int64) (*CheckoutResult, error) {
	account, err := s.accountRepo.GetByIDForUpdate(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}

	items, err := s.cartRepo.ListByAccountID(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.RewardID)
	}
	rewards, err := s.rewardRepo.GetByIDsForUpdate(ctx, tx, ids)
	if err != nil {
		return nil, err
	}

	for _, it := range items {
		if _, ok := rewards[it.RewardID]; !ok {
			return nil, &BizError{Kind: ErrNotFound, Msg: fmt.Sprintf("reward %d in cart no longer exists", it.RewardID)}
		}
	}
	total, err := cartTotal(items, func(it *model.CartItem) (int64, bool) {
		return rewards[it.RewardID].PointsRequired, true
	})
	if err != nil {
		return nil, err
	}

	if account.CurrentPoints < total {
		return nil, &InsufficientPointsError{Required: total, Available: account.CurrentPoints}
	}
	for _, it := range items {
		reward := rewards[it.RewardID]
		if reward.Stock < it.Quantity {
			return nil, &InsufficientStockError{
				RewardID:   reward.ID,
				RewardName: reward.Name,
				Available:  reward.Stock,
				Requested:  it.Quantity,
			}
		}
	}

	redemption := &model.Redemption{
		RedemptionNo:     idgen.GenerateRedemptionNo(),
		AccountID:        accountID,
		TotalPointsSpent: total,
		BalanceBefore:    account.CurrentPoints,
		BalanceAfter:     account.CurrentPoints - total,
		Items:            make([]model.RedemptionItem, 0, len(items)),
	}
	for _, it := range items {
		redemption.Items = append(redemption.Items, model.RedemptionItem{
			RewardID:   it.RewardID,
			Quantity:   it.Quantity,
			PointsEach: rewards[it.RewardID].PointsRequired,
		})
	}
	if err := s.redemptionRepo.Create(ctx, tx, redemption); err != nil {
		return nil, fmt.Errorf("create redemption: %w", err)
	}

	for _, it := range items {
		if err := s.rewardRepo.DecrementStock(ctx, tx, it.RewardID, it.Quantity); err != nil {
			return nil, err
		}
	}
	if err := s.accountRepo.Debit(ctx, tx, accountID, total, account.Version); err != nil {
		return nil, err
	}
	if err := s.cartRepo.DeleteByAccountID(ctx, tx, accountID); err != nil {
		return nil, err
	}

	lines := make([]map[string]interface{}, 0, len(redemption.Items))
	for _, item := range redemption.Items {
		lines = append(lines, map[string]interface{}{
			"reward_id":   item.RewardID,
			"quantity":    item.Quantity,
			"points_each": item.PointsEach,
		})
	}
	payload := map[string]interface{}{
		"redemption_no":  redemption.RedemptionNo,
		"account_id":     accountID,
		"points_spent":   total,
		"current_points": redemption.BalanceAfter,
		"items":          lines,
	}
	if err := writeEvent(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.RedemptionEvents, model.EventRewardRedeemed, payload); err != nil {
		return nil, err
	}

	for i := range redemption.Items {
		redemption.Items[i].Reward = rewards[redemption.Items[i].RewardID]
	}
	return &CheckoutResult{Redemption: redemption, CurrentPoints: redemption.BalanceAfter}, nil
}
