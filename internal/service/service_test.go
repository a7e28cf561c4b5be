package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"kitarcycle/internal/config"
	"kitarcycle/internal/infrastructure/database"
	"kitarcycle/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recordingNotifier) Notify(_ context.Context, n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recordingNotifier) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.notices))
	for _, n := range r.notices {
		out = append(out, n.Type)
	}
	return out
}

func (r *recordingNotifier) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = nil
}

type fixture struct {
	db       *gorm.DB
	cfg      *config.Config
	notifier *recordingNotifier

	tiers    *TierService
	ledger   *LedgerService
	accounts *AccountService
	pickups  *PickupService
	rewards  *RewardService
	cart     *CartService
	checkout *CheckoutService

	// Plastic earns 2 points per kg
	categoryID int64
}

func testConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{Topic: config.KafkaTopicConfig{
			PointsEvents:     "kitarcycle.points",
			RedemptionEvents: "kitarcycle.redemptions",
		}},
		Business: config.BusinessConfig{
			TxMaxRetries:            3,
			TxRetryBackoff:          time.Millisecond,
			LeaderboardDefaultLimit: 3,
		},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenMemory("service")
	require.NoError(t, err)
	require.NoError(t, database.Seed(db, &config.SeedConfig{
		Enabled: true,
		Tiers: []config.TierSeed{
			{Name: "Green Seed", PointFrom: 0, PointTo: 1000, Multiplier: 1},
			{Name: "Silver", PointFrom: 1001, PointTo: 5000, Multiplier: 1.25},
			{Name: "Gold", PointFrom: 5001, PointTo: 1000000000, Multiplier: 1.5},
		},
		Categories: []config.CategorySeed{{Name: "Plastic", PointsPerKg: 2}},
	}))

	f := &fixture{db: db, cfg: testConfig(), notifier: &recordingNotifier{}}
	f.tiers = NewTierService(db, nil, f.cfg, f.notifier)
	f.ledger = NewLedgerService(db, nil, f.cfg, f.tiers)
	f.accounts = NewAccountService(db, f.cfg, f.tiers)
	f.pickups = NewPickupService(db, f.cfg, f.ledger, f.tiers, f.notifier)
	f.rewards = NewRewardService(db)
	f.cart = NewCartService(db)
	f.checkout = NewCheckoutService(db, nil, f.cfg, f.notifier)

	var category model.Category
	require.NoError(t, db.Where("name = ?", "Plastic").First(&category).Error)
	f.categoryID = category.ID
	return f
}

func (f *fixture) register(t *testing.T, name string) *model.Account {
	t.Helper()
	account, err := f.accounts.Register(context.Background(), RegisterRequest{
		Name:  name,
		Email: fmt.Sprintf("%s-%d@example.com", name, time.Now().UnixNano()),
	})
	require.NoError(t, err)
	return account
}

// setPoints overwrites both balances and re-derives the tier.
func (f *fixture) setPoints(t *testing.T, accountID, current, total int64) {
	t.Helper()
	require.NoError(t, f.db.Model(&model.Account{}).Where("id = ?", accountID).Updates(map[string]interface{}{
		"current_points":      current,
		"total_points_earned": total,
	}).Error)
	_, err := f.tiers.Assign(context.Background(), accountID)
	require.NoError(t, err)
	f.notifier.reset()
}

func (f *fixture) account(t *testing.T, id int64) *model.Account {
	t.Helper()
	var a model.Account
	require.NoError(t, f.db.Preload("TierLevel").First(&a, id).Error)
	return &a
}

func (f *fixture) tierNamed(t *testing.T, name string) *model.TierLevel {
	t.Helper()
	var tier model.TierLevel
	require.NoError(t, f.db.Where("name = ?", name).First(&tier).Error)
	return &tier
}

// startedPickup creates a pickup for accountID and moves it to In Progress.
func (f *fixture) startedPickup(t *testing.T, accountID int64) *model.Pickup {
	t.Helper()
	ctx := context.Background()
	p, err := f.pickups.Create(ctx, CreatePickupRequest{
		AccountID:       accountID,
		OrganizerID:     77,
		CategoryID:      f.categoryID,
		Address:         "12 Jalan Hijau",
		EstimatedWeight: decimal.NewFromInt(5),
	})
	require.NoError(t, err)
	p, err = f.pickups.Start(ctx, p.ID)
	require.NoError(t, err)
	f.notifier.reset()
	return p
}

func (f *fixture) reward(t *testing.T, name string, cost, stock int64) *model.Reward {
	t.Helper()
	r, err := f.rewards.Create(context.Background(), RewardInput{Name: name, PointsRequired: cost, Stock: stock})
	require.NoError(t, err)
	return r
}

func (f *fixture) count(t *testing.T, m interface{}, where ...interface{}) int64 {
	t.Helper()
	var n int64
	q := f.db.Model(m)
	if len(where) > 0 {
		q = q.Where(where[0], where[1:]...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}
