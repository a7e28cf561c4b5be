package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"kitarcycle/internal/config"
	"kitarcycle/internal/infrastructure/cache"
	"kitarcycle/internal/model"
	"kitarcycle/internal/repository"
	"kitarcycle/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const maxLeaderboardLimit = 100

// ============================================================================
// Points ledger
// ============================================================================
//
// The ledger is the only writer of point entries and the only code that
// credits an account. A credit is one transaction:
//
//   1. lock the account row
//   2. append the point entry with balance before/after
//   3. add the same amount to current_points and total_points_earned,
//      guarded by the account version
//   4. reconcile the tier against the new total
//   5. append points.earned (and tier.changed) to the outbox
//
// Any failure rolls back all five.
// ============================================================================

type LedgerService struct {
	db          *gorm.DB
	cfg         *config.Config
	tx          *txRunner
	accountRepo *repository.AccountRepository
	ledgerRepo  *repository.LedgerRepository
	outboxRepo  *repository.OutboxRepository
	redemptions *repository.RedemptionRepository
	tiers       *TierService
	leaderboard *cache.LeaderboardCache
}

func NewLedgerService(db *gorm.DB, rdb *redis.Client, cfg *config.Config, tiers *TierService) *LedgerService {
	return &LedgerService{
		db:          db,
		cfg:         cfg,
		tx:          newTxRunner(db, cfg.Business.TxMaxRetries, cfg.Business.TxRetryBackoff),
		accountRepo: repository.NewAccountRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		redemptions: repository.NewRedemptionRepository(db),
		tiers:       tiers,
		leaderboard: cache.NewLeaderboardCache(rdb, cfg.Business.LeaderboardCacheTTL),
	}
}

type AddPointsRequest struct {
	AccountID   int64
	PickupID    int64
	OrganizerID int64
	Weight      decimal.Decimal
	PointsPerKg decimal.Decimal
	Multiplier  decimal.Decimal
	Description string
}

type AddPointsResult struct {
	Entry   *model.PointEntry
	Account *model.Account
	Tier    *ReconcileResult
}

// AddPoints credits floor(floor(weight*rate)*multiplier) points. With a nil
// tx it runs in its own retried transaction; otherwise it joins tx and the
// caller owns commit and retry.
func (s *LedgerService) AddPoints(ctx context.Context, tx *gorm.DB, req AddPointsRequest) (*AddPointsResult, error) {
	points, err := CalculatePoints(req.Weight, req.PointsPerKg, req.Multiplier)
	if err != nil {
		return nil, err
	}

	if tx != nil {
		return s.addPoints(ctx, tx, req, points)
	}

	var result *AddPointsResult
	err = s.tx.run(ctx, "add points", func(tx *gorm.DB) error {
		var err error
		result, err = s.addPoints(ctx, tx, req, points)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.PointsChanged(ctx)
	return result, nil
}

func (s *LedgerService) addPoints(ctx context.Context, tx *gorm.DB, req AddPointsRequest, points int64) (*AddPointsResult, error) {
	account, err := s.accountRepo.GetByIDForUpdate(ctx, tx, req.AccountID)
	if err != nil {
		return nil, err
	}

	exists, err := s.ledgerRepo.ExistsForPickup(ctx, tx, req.PickupID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrPointsAlreadyEarned
	}

	entry := &model.PointEntry{
		EntryNo:       idgen.GenerateEntryNo(),
		AccountID:     account.ID,
		PickupID:      req.PickupID,
		OrganizerID:   req.OrganizerID,
		PointsEarned:  points,
		ActualWeight:  req.Weight,
		PointsPerKg:   req.PointsPerKg,
		Multiplier:    req.Multiplier,
		Type:          model.PointEntryTypeEarn,
		Description:   req.Description,
		BalanceBefore: account.CurrentPoints,
		BalanceAfter:  account.CurrentPoints + points,
	}
	if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("append point entry: %w", err)
	}

	if err := s.accountRepo.Credit(ctx, tx, account.ID, points, account.Version); err != nil {
		return nil, err
	}
	account.CurrentPoints += points
	account.TotalPointsEarned += points
	account.Version++

	tier, err := s.tiers.Reconcile(ctx, tx, account)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"entry_no":            entry.EntryNo,
		"account_id":          account.ID,
		"pickup_id":           req.PickupID,
		"points_earned":       points,
		"current_points":      account.CurrentPoints,
		"total_points_earned": account.TotalPointsEarned,
	}
	if err := writeEvent(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.PointsEvents, model.EventPointsEarned, payload); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"account_id": account.ID,
		"pickup_id":  req.PickupID,
		"points":     points,
		"balance":    account.CurrentPoints,
	}).Info("[Ledger] points credited")

	return &AddPointsResult{Entry: entry, Account: account, Tier: tier}, nil
}

// PointsChanged drops cached leaderboards. Call it after a commit that
// changed an account's points.
func (s *LedgerService) PointsChanged(ctx context.Context) {
	invalidateLeaderboard(ctx, s.leaderboard)
}

// invalidateLeaderboard drops cached leaderboards after a commit that changed
// balances, tier assignments or tier names.
func invalidateLeaderboard(ctx context.Context, c *cache.LeaderboardCache) {
	if err := c.Invalidate(ctx); err != nil {
		log.WithError(err).Warn("[Ledger] leaderboard cache invalidation failed")
	}
}

// ============================================================
// Queries
// ============================================================

type PointsSummary struct {
	AccountID         int64            `json:"account_id"`
	CurrentPoints     int64            `json:"current_points"`
	TotalPointsEarned int64            `json:"total_points_earned"`
	TierLevel         *model.TierLevel `json:"tier_level"`
}

func (s *LedgerService) Current(ctx context.Context, accountID int64) (*PointsSummary, error) {
	account, err := s.accountRepo.GetByID(ctx, nil, accountID)
	if err != nil {
		return nil, translate(err)
	}
	return &PointsSummary{
		AccountID:         account.ID,
		CurrentPoints:     account.CurrentPoints,
		TotalPointsEarned: account.TotalPointsEarned,
		TierLevel:         account.TierLevel,
	}, nil
}

// MonthlyEarned sums points earned during the UTC calendar month "YYYY-MM".
func (s *LedgerService) MonthlyEarned(ctx context.Context, accountID int64, month string) (int64, error) {
	start, err := time.ParseInLocation("2006-01", month, time.UTC)
	if err != nil {
		return 0, validationf("month must look like YYYY-MM, got %q", month)
	}
	if _, err := s.accountRepo.GetByID(ctx, nil, accountID); err != nil {
		return 0, translate(err)
	}
	return s.ledgerRepo.SumBetween(ctx, accountID, start, start.AddDate(0, 1, 0))
}

type LeaderboardEntry struct {
	Rank              int    `json:"rank"`
	AccountID         int64  `json:"account_id"`
	Name              string `json:"name"`
	TotalPointsEarned int64  `json:"total_points_earned"`
	CurrentPoints     int64  `json:"current_points"`
	TierName          string `json:"tier_name,omitempty"`
}

// TopAccounts ranks accounts by total_points_earned, ties by account id.
func (s *LedgerService) TopAccounts(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = s.cfg.Business.LeaderboardDefaultLimit
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	var cached []LeaderboardEntry
	hit, err := s.leaderboard.Get(ctx, limit, &cached)
	if err != nil {
		log.WithError(err).Warn("[Ledger] leaderboard cache read failed")
	}
	if hit {
		return cached, nil
	}

	accounts, err := s.accountRepo.TopByTotalEarned(ctx, limit)
	if err != nil {
		return nil, err
	}
	board := make([]LeaderboardEntry, 0, len(accounts))
	for i, a := range accounts {
		e := LeaderboardEntry{
			Rank:              i + 1,
			AccountID:         a.ID,
			Name:              a.Name,
			TotalPointsEarned: a.TotalPointsEarned,
			CurrentPoints:     a.CurrentPoints,
		}
		if a.TierLevel != nil {
			e.TierName = a.TierLevel.Name
		}
		board = append(board, e)
	}

	if err := s.leaderboard.Set(ctx, limit, board); err != nil {
		log.WithError(err).Warn("[Ledger] leaderboard cache write failed")
	}
	return board, nil
}

func (s *LedgerService) History(ctx context.Context, accountID int64, page, pageSize int) ([]*model.PointEntry, int64, error) {
	if _, err := s.accountRepo.GetByID(ctx, nil, accountID); err != nil {
		return nil, 0, translate(err)
	}
	page, pageSize = normalizePage(page, pageSize)
	return s.ledgerRepo.ListByAccountID(ctx, accountID, page, pageSize)
}

const (
	HistoryTypeEarn   = "earn"
	HistoryTypeRedeem = "redeem"
)

// HistoryItem is one line of the unified points statement. Points is
// positive for earnings and negative for redemptions.
type HistoryItem struct {
	Type        string    `json:"type"`
	Points      int64     `json:"points"`
	Reference   string    `json:"reference"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// UnifiedHistory merges earnings and redemptions, newest first.
func (s *LedgerService) UnifiedHistory(ctx context.Context, accountID int64) ([]HistoryItem, error) {
	if _, err := s.accountRepo.GetByID(ctx, nil, accountID); err != nil {
		return nil, translate(err)
	}
	entries, err := s.ledgerRepo.ListAllByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	redemptions, err := s.redemptions.ListByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	items := make([]HistoryItem, 0, len(entries)+len(redemptions))
	for _, e := range entries {
		items = append(items, HistoryItem{
			Type:        HistoryTypeEarn,
			Points:      e.PointsEarned,
			Reference:   e.EntryNo,
			Description: e.Description,
			CreatedAt:   e.CreatedAt,
		})
	}
	for _, r := range redemptions {
		items = append(items, HistoryItem{
			Type:        HistoryTypeRedeem,
			Points:      -r.TotalPointsSpent,
			Reference:   r.RedemptionNo,
			Description: fmt.Sprintf("Redeemed %d item(s)", len(r.Items)),
			CreatedAt:   r.CreatedAt,
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

