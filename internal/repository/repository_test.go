package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"kitarcycle/internal/infrastructure/database"
	"kitarcycle/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenMemory("repository")
	require.NoError(t, err)
	return db
}

func seedAccount(t *testing.T, db *gorm.DB, points int64) *model.Account {
	t.Helper()
	a := &model.Account{
		Name:              "recycler",
		Email:             fmt.Sprintf("r%d@example.com", time.Now().UnixNano()),
		CurrentPoints:     points,
		TotalPointsEarned: points,
	}
	require.NoError(t, db.Create(a).Error)
	return a
}

func TestAccountCreateRejectsDuplicateEmail(t *testing.T) {
	db := openTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, nil, &model.Account{Name: "a", Email: "a@example.com"}))
	err := repo.Create(ctx, nil, &model.Account{Name: "b", Email: "a@example.com"})
	assert.ErrorIs(t, err, ErrEmailAlreadyUsed)
}

func TestAccountCreditAndDebit(t *testing.T) {
	db := openTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()
	a := seedAccount(t, db, 100)

	require.NoError(t, repo.Credit(ctx, db, a.ID, 30, a.Version))

	got, err := repo.GetByID(ctx, nil, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(130), got.CurrentPoints)
	assert.Equal(t, int64(130), got.TotalPointsEarned)
	assert.Equal(t, a.Version+1, got.Version)

	// stale version
	assert.ErrorIs(t, repo.Credit(ctx, db, a.ID, 30, a.Version), ErrOptimisticLock)
	assert.ErrorIs(t, repo.Debit(ctx, db, a.ID, 10, a.Version), ErrOptimisticLock)

	// more than the balance
	assert.ErrorIs(t, repo.Debit(ctx, db, a.ID, 131, got.Version), ErrPointsNotEnough)

	require.NoError(t, repo.Debit(ctx, db, a.ID, 130, got.Version))
	got, err = repo.GetByID(ctx, nil, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.CurrentPoints)
	assert.Equal(t, int64(130), got.TotalPointsEarned)

	assert.ErrorIs(t, repo.Debit(ctx, db, 9999, 1, 0), ErrAccountNotFound)
}

func TestAccountGetByIDForUpdateInTx(t *testing.T) {
	db := openTestDB(t)
	repo := NewAccountRepository(db)
	a := seedAccount(t, db, 5)

	err := db.Transaction(func(tx *gorm.DB) error {
		locked, err := repo.GetByIDForUpdate(context.Background(), tx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(5), locked.CurrentPoints)
		_, err = repo.GetByIDForUpdate(context.Background(), tx, a.ID+100)
		assert.ErrorIs(t, err, ErrAccountNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestTopByTotalEarnedBreaksTiesByID(t *testing.T) {
	db := openTestDB(t)
	repo := NewAccountRepository(db)
	a := seedAccount(t, db, 50)
	b := seedAccount(t, db, 80)
	c := seedAccount(t, db, 50)

	top, err := repo.TopByTotalEarned(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, []int64{b.ID, a.ID, c.ID}, []int64{top[0].ID, top[1].ID, top[2].ID})

	ids, err := repo.ListIDsAfter(context.Background(), a.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID, c.ID}, ids)
}

func TestTierFindForPointsBoundaries(t *testing.T) {
	db := openTestDB(t)
	repo := NewTierRepository(db)
	ctx := context.Background()

	seed := repo.Create(ctx, &model.TierLevel{Name: "Green Seed", PointFrom: 0, PointTo: 1000, Multiplier: decimal.NewFromInt(1)})
	require.NoError(t, seed)
	require.NoError(t, repo.Create(ctx, &model.TierLevel{Name: "Silver", PointFrom: 1001, PointTo: 5000, Multiplier: decimal.RequireFromString("1.5")}))

	for points, want := range map[int64]string{0: "Green Seed", 1000: "Green Seed", 1001: "Silver", 5000: "Silver"} {
		tier, err := repo.FindForPoints(ctx, nil, points)
		require.NoError(t, err)
		assert.Equal(t, want, tier.Name, "points=%d", points)
	}

	_, err := repo.FindForPoints(ctx, nil, 5001)
	assert.ErrorIs(t, err, ErrTierNotFound)

	lowest, err := repo.Lowest(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "Green Seed", lowest.Name)
	assert.True(t, lowest.Multiplier.Equal(decimal.NewFromInt(1)))
}

func TestTierDeleteAndClear(t *testing.T) {
	db := openTestDB(t)
	tiers := NewTierRepository(db)
	accounts := NewAccountRepository(db)
	ctx := context.Background()

	tier := &model.TierLevel{Name: "Gold", PointFrom: 0, PointTo: 10, Multiplier: decimal.NewFromInt(2)}
	require.NoError(t, tiers.Create(ctx, tier))
	a := seedAccount(t, db, 0)
	require.NoError(t, accounts.UpdateTier(ctx, nil, a.ID, tier.ID))

	n, err := accounts.ClearTier(ctx, nil, tier.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, tiers.Delete(ctx, nil, tier.ID))
	assert.ErrorIs(t, tiers.Delete(ctx, nil, tier.ID), ErrTierNotFound)

	got, err := accounts.GetByID(ctx, nil, a.ID)
	require.NoError(t, err)
	assert.Nil(t, got.TierLevelID)
}

func TestLedgerSumBetweenUsesHalfOpenMonth(t *testing.T) {
	db := openTestDB(t)
	repo := NewLedgerRepository(db)
	ctx := context.Background()
	a := seedAccount(t, db, 0)

	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := jan.AddDate(0, 1, 0)
	entries := []struct {
		at     time.Time
		points int64
	}{
		{jan, 10},
		{jan.Add(15 * 24 * time.Hour), 20},
		{feb.Add(-time.Second), 5},
		{feb, 100},
		{jan.Add(-time.Second), 1000},
	}
	for i, e := range entries {
		require.NoError(t, repo.Create(ctx, nil, &model.PointEntry{
			EntryNo:      fmt.Sprintf("E%d", i),
			AccountID:    a.ID,
			PickupID:     int64(i + 1),
			PointsEarned: e.points,
			ActualWeight: decimal.NewFromInt(1),
			PointsPerKg:  decimal.NewFromInt(1),
			Multiplier:   decimal.NewFromInt(1),
			Type:         model.PointEntryTypeEarn,
			CreatedAt:    e.at,
		}))
	}

	total, err := repo.SumBetween(ctx, a.ID, jan, feb)
	require.NoError(t, err)
	assert.Equal(t, int64(35), total)

	total, err = repo.SumBetween(ctx, a.ID+1, jan, feb)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	exists, err := repo.ExistsForPickup(ctx, nil, 4)
	require.NoError(t, err)
	assert.True(t, exists)

	page, count, err := repo.ListByAccountID(ctx, a.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
	require.Len(t, page, 2)
	assert.Equal(t, int64(100), page[0].PointsEarned)
}

func TestLedgerRejectsSecondEntryForPickup(t *testing.T) {
	db := openTestDB(t)
	repo := NewLedgerRepository(db)
	ctx := context.Background()

	entry := func(no string) *model.PointEntry {
		return &model.PointEntry{
			EntryNo: no, AccountID: 1, PickupID: 7, PointsEarned: 1, Type: model.PointEntryTypeEarn,
			ActualWeight: decimal.Zero, PointsPerKg: decimal.Zero, Multiplier: decimal.NewFromInt(1),
		}
	}
	require.NoError(t, repo.Create(ctx, nil, entry("A")))
	assert.Error(t, repo.Create(ctx, nil, entry("B")))
}

func TestPickupUpdateStatusIsGuarded(t *testing.T) {
	db := openTestDB(t)
	repo := NewPickupRepository(db)
	ctx := context.Background()

	p := &model.Pickup{AccountID: 1, OrganizerID: 2, CategoryID: 3, Address: "x", EstimatedWeight: decimal.NewFromInt(4), Status: model.PickupStatusPending}
	require.NoError(t, repo.Create(ctx, nil, p))

	assert.ErrorIs(t, repo.UpdateStatus(ctx, nil, p.ID, model.PickupStatusPending, model.PickupStatusCompleted, nil), ErrPickupStatusInvalid)
	require.NoError(t, repo.UpdateStatus(ctx, nil, p.ID, model.PickupStatusPending, model.PickupStatusInProgress, nil))
	// second caller still believes it is Pending
	assert.ErrorIs(t, repo.UpdateStatus(ctx, nil, p.ID, model.PickupStatusPending, model.PickupStatusInProgress, nil), ErrPickupStatusInvalid)

	require.NoError(t, repo.UpdateActualWeight(ctx, nil, p.ID, decimal.RequireFromString("10.25")))
	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PickupStatusInProgress, got.Status)
	require.True(t, got.ActualWeight.Valid)
	assert.True(t, got.ActualWeight.Decimal.Equal(decimal.RequireFromString("10.25")))

	_, err = repo.GetByID(ctx, p.ID+1)
	assert.ErrorIs(t, err, ErrPickupNotFound)
}

func TestRewardDecrementStockGuard(t *testing.T) {
	db := openTestDB(t)
	repo := NewRewardRepository(db)
	ctx := context.Background()

	r := &model.Reward{Name: "Tumbler", PointsRequired: 50, Stock: 2}
	require.NoError(t, repo.Create(ctx, r))

	assert.ErrorIs(t, repo.DecrementStock(ctx, db, r.ID, 3), ErrStockNotEnough)
	require.NoError(t, repo.DecrementStock(ctx, db, r.ID, 2))
	assert.ErrorIs(t, repo.DecrementStock(ctx, db, r.ID, 1), ErrStockNotEnough)

	require.NoError(t, repo.Restock(ctx, r.ID, 5, 10))
	got, err := repo.GetByID(ctx, nil, r.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Stock)

	assert.ErrorIs(t, repo.Restock(ctx, r.ID, 6, 10), ErrStockLimit)
	require.NoError(t, repo.Restock(ctx, r.ID, 5, 10))
	assert.ErrorIs(t, repo.Restock(ctx, r.ID+1, 5, 10), ErrRewardNotFound)
}

func TestCartAddQuantityMergesLines(t *testing.T) {
	db := openTestDB(t)
	rewards := NewRewardRepository(db)
	cart := NewCartRepository(db)
	ctx := context.Background()

	r := &model.Reward{Name: "Bag", PointsRequired: 10, Stock: 10}
	require.NoError(t, rewards.Create(ctx, r))

	first, err := cart.AddQuantity(ctx, 1, r.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.Quantity)

	second, err := cart.AddQuantity(ctx, 1, r.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(5), second.Quantity)
	require.NotNil(t, second.Reward)
	assert.Equal(t, "Bag", second.Reward.Name)

	items, err := cart.ListByAccountID(ctx, nil, 1)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	require.NoError(t, cart.DeleteByAccountID(ctx, nil, 1))
	items, err = cart.ListByAccountID(ctx, nil, 1)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.ErrorIs(t, cart.Delete(ctx, first.ID), ErrCartItemNotFound)
}

func TestRedemptionCreateWithItems(t *testing.T) {
	db := openTestDB(t)
	repo := NewRedemptionRepository(db)
	ctx := context.Background()

	red := &model.Redemption{
		RedemptionNo:     "RDM1",
		AccountID:        1,
		TotalPointsSpent: 30,
		BalanceBefore:    100,
		BalanceAfter:     70,
		Items: []model.RedemptionItem{
			{RewardID: 1, Quantity: 1, PointsEach: 10},
			{RewardID: 2, Quantity: 2, PointsEach: 10},
		},
	}
	require.NoError(t, repo.Create(ctx, nil, red))

	got, err := repo.GetByID(ctx, red.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 2)

	list, err := repo.ListByAccountID(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestNotificationInbox(t *testing.T) {
	db := openTestDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()
	user := model.UserRecipient(1)
	other := model.OrganizerRecipient(1)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &model.Notification{RecipientKind: user.Kind, RecipientID: user.ID, Type: model.NotificationTypeGeneral, Title: "t", Message: "m"}))
	}
	require.NoError(t, repo.Create(ctx, &model.Notification{RecipientKind: other.Kind, RecipientID: other.ID, Type: model.NotificationTypeGeneral, Title: "t", Message: "m"}))

	unread, err := repo.CountUnread(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(3), unread)

	list, total, err := repo.ListByRecipient(ctx, user, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	// organizer 1 is not user 1
	assert.ErrorIs(t, repo.MarkRead(ctx, list[0].ID, other), ErrNotificationNotFound)
	require.NoError(t, repo.MarkRead(ctx, list[0].ID, user))

	n, err := repo.MarkAllRead(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	unsent, err := repo.ListUnsent(ctx, 5, 10)
	require.NoError(t, err)
	assert.Len(t, unsent, 4)

	require.NoError(t, repo.MarkSent(ctx, unsent[0].ID, "msg-1"))
	require.NoError(t, repo.IncrementRetryCount(ctx, unsent[1].ID))
	unsent, err = repo.ListUnsent(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, unsent, 2)
}

func TestFcmTokenUpsertMovesToken(t *testing.T) {
	db := openTestDB(t)
	repo := NewFcmTokenRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, model.UserRecipient(1), "tok", "android"))
	require.NoError(t, repo.Deactivate(ctx, []string{"tok"}))

	active, err := repo.ListActive(ctx, model.UserRecipient(1))
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, repo.Upsert(ctx, model.UserRecipient(2), "tok", "ios"))
	active, err = repo.ListActive(ctx, model.UserRecipient(2))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "ios", active[0].DeviceType)

	require.NoError(t, repo.Touch(ctx, []string{"tok"}))
	require.NoError(t, repo.Delete(ctx, model.UserRecipient(2), "tok"))
	active, err = repo.ListActive(ctx, model.UserRecipient(2))
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestOutboxLifecycle(t *testing.T) {
	db := openTestDB(t)
	repo := NewOutboxRepository(db)
	ctx := context.Background()

	msg := &model.OutboxMessage{MessageKey: "k", EventType: model.EventPointsEarned, Topic: "t", Payload: "{}", Status: model.OutboxStatusPending}
	require.NoError(t, repo.Create(ctx, nil, msg))

	pending, err := repo.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, repo.IncrementRetryCount(ctx, msg.ID))
	require.NoError(t, repo.MarkAsFailed(ctx, msg.ID))

	failed, err := repo.CountByStatus(ctx, model.OutboxStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, int64(1), failed)

	byType, err := repo.ListByEventType(ctx, model.EventPointsEarned)
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, 2, byType[0].RetryCount)
}
