package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"kitarcycle/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckoutInsufficientPointsChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "yani")
	f.setPoints(t, a.ID, 100, 100)
	r := f.reward(t, "Compost bin", 110, 4)
	_, err := f.cart.Add(ctx, a.ID, r.ID, 1)
	require.NoError(t, err)

	_, err = f.checkout.Checkout(ctx, a.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientResource)
	var short *InsufficientPointsError
	require.True(t, errors.As(err, &short))
	assert.Equal(t, int64(110), short.Required)
	assert.Equal(t, int64(100), short.Available)

	assert.Equal(t, int64(100), f.account(t, a.ID).CurrentPoints)
	reward, err := f.rewards.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), reward.Stock)
	assert.Equal(t, int64(1), f.count(t, &model.CartItem{}, "account_id = ?", a.ID))
	assert.Zero(t, f.count(t, &model.Redemption{}))
	assert.Empty(t, f.notifier.types())
}

func TestCheckoutInsufficientPointsAcrossLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "yusuf")
	f.setPoints(t, a.ID, 100, 100)
	first := f.reward(t, "Tote bag", 60, 3)
	second := f.reward(t, "Bamboo straw", 50, 3)
	_, err := f.cart.Add(ctx, a.ID, first.ID, 1)
	require.NoError(t, err)
	_, err = f.cart.Add(ctx, a.ID, second.ID, 1)
	require.NoError(t, err)

	_, err = f.checkout.Checkout(ctx, a.ID)
	var short *InsufficientPointsError
	require.True(t, errors.As(err, &short))
	assert.Equal(t, int64(110), short.Required)
	assert.Equal(t, int64(100), short.Available)

	assert.Equal(t, int64(100), f.account(t, a.ID).CurrentPoints)
	for _, id := range []int64{first.ID, second.ID} {
		reward, err := f.rewards.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(3), reward.Stock)
	}
	assert.Zero(t, f.count(t, &model.Redemption{}))
}

func TestCheckoutRejectsOverflowingTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "zulaikha")
	f.setPoints(t, a.ID, 10, 10)

	// rows written directly, past the service bounds
	r := &model.Reward{Name: "Crate", PointsRequired: 4, Stock: math.MaxInt64}
	require.NoError(t, f.db.Create(r).Error)
	require.NoError(t, f.db.Create(&model.CartItem{AccountID: a.ID, RewardID: r.ID, Quantity: 1 << 62}).Error)

	_, err := f.checkout.Checkout(ctx, a.ID)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.cart.List(ctx, a.ID)
	assert.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, int64(10), f.account(t, a.ID).CurrentPoints)
	assert.Zero(t, f.count(t, &model.Redemption{}))
	assert.Equal(t, int64(1), f.count(t, &model.CartItem{}, "account_id = ?", a.ID))
}

func TestCheckoutInsufficientStockIsAtomic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "zaki")
	f.setPoints(t, a.ID, 1000, 1000)
	plenty := f.reward(t, "Tumbler", 50, 5)
	gone := f.reward(t, "Solar lamp", 50, 0)
	_, err := f.cart.Add(ctx, a.ID, plenty.ID, 1)
	require.NoError(t, err)
	_, err = f.cart.Add(ctx, a.ID, gone.ID, 1)
	require.NoError(t, err)

	_, err = f.checkout.Checkout(ctx, a.ID)
	var short *InsufficientStockError
	require.True(t, errors.As(err, &short))
	assert.Equal(t, gone.ID, short.RewardID)
	assert.Equal(t, "Solar lamp", short.RewardName)
	assert.Equal(t, int64(0), short.Available)

	reward, err := f.rewards.Get(ctx, plenty.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), reward.Stock)
	assert.Equal(t, int64(1000), f.account(t, a.ID).CurrentPoints)
	assert.Equal(t, int64(2), f.count(t, &model.CartItem{}, "account_id = ?", a.ID))
	assert.Zero(t, f.count(t, &model.RedemptionItem{}))
}

func TestCheckoutSpendsCurrentPointsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "ayu")
	f.setPoints(t, a.ID, 500, 500)
	r := f.reward(t, "Seed kit", 100, 3)
	_, err := f.cart.Add(ctx, a.ID, r.ID, 1)
	require.NoError(t, err)
	_, err = f.cart.Add(ctx, a.ID, r.ID, 1)
	require.NoError(t, err)

	view, err := f.cart.List(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, int64(2), view.Items[0].Quantity)
	assert.Equal(t, int64(200), view.TotalPoints)

	result, err := f.checkout.Checkout(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), result.CurrentPoints)
	assert.Equal(t, int64(200), result.Redemption.TotalPointsSpent)
	assert.Equal(t, int64(500), result.Redemption.BalanceBefore)
	assert.Equal(t, int64(300), result.Redemption.BalanceAfter)

	got := f.account(t, a.ID)
	assert.Equal(t, int64(300), got.CurrentPoints)
	assert.Equal(t, int64(500), got.TotalPointsEarned)

	reward, err := f.rewards.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reward.Stock)
	assert.Zero(t, f.count(t, &model.CartItem{}, "account_id = ?", a.ID))
	assert.Equal(t, int64(1), f.count(t, &model.OutboxMessage{}, "event_type = ?", model.EventRewardRedeemed))
	assert.Equal(t, []string{model.NotificationTypeRedemption}, f.notifier.types())

	stored, err := f.rewards.GetRedemption(ctx, result.Redemption.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, int64(2), stored.Items[0].Quantity)
	assert.Equal(t, int64(100), stored.Items[0].PointsEach)

	list, err := f.rewards.ListRedemptions(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "bayu")

	_, err := f.checkout.Checkout(context.Background(), a.ID)
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.ErrorIs(t, err, ErrStateConflict)

	_, err = f.checkout.Checkout(context.Background(), 0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCheckoutUnknownAccount(t *testing.T) {
	f := newFixture(t)
	_, err := f.checkout.Checkout(context.Background(), 31337)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentCheckoutsForLastUnit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.reward(t, "Last bicycle", 100, 1)

	var accounts []int64
	for _, name := range []string{"cici", "dodi", "edo"} {
		a := f.register(t, name)
		f.setPoints(t, a.ID, 500, 500)
		_, err := f.cart.Add(ctx, a.ID, r.ID, 1)
		require.NoError(t, err)
		accounts = append(accounts, a.ID)
	}

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		succeeded  int
		outOfStock int
	)
	for _, id := range accounts {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := f.checkout.Checkout(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			var short *InsufficientStockError
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &short):
				outOfStock++
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 2, outOfStock)
	reward, err := f.rewards.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Zero(t, reward.Stock)
	assert.Equal(t, int64(1), f.count(t, &model.Redemption{}))
}
