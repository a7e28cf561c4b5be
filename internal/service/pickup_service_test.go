package service

import (
	"context"
	"testing"

	"kitarcycle/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteAwardsPointsWithTierMultiplier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "putri")
	f.setPoints(t, a.ID, 100, 6000) // Gold, x1.5
	p := f.startedPickup(t, a.ID)

	result, err := f.pickups.Complete(ctx, p.ID, d("10"))
	require.NoError(t, err)
	assert.Equal(t, int64(30), result.PointsAwarded)
	assert.False(t, result.TierChanged)
	assert.Equal(t, model.PickupStatusCompleted, result.Pickup.Status)

	got := f.account(t, a.ID)
	assert.Equal(t, int64(130), got.CurrentPoints)
	assert.Equal(t, int64(6030), got.TotalPointsEarned)

	var entry model.PointEntry
	require.NoError(t, f.db.Where("pickup_id = ?", p.ID).First(&entry).Error)
	assert.Equal(t, int64(30), entry.PointsEarned)
	assert.True(t, entry.Multiplier.Equal(d("1.5")))

	stored, err := f.pickups.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PickupStatusCompleted, stored.Status)
	assert.True(t, stored.ActualWeight.Valid)
	assert.NotNil(t, stored.CompletedAt)

	assert.Equal(t, []string{model.NotificationTypePointsEarned}, f.notifier.types())
}

func TestCompleteTwiceIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "rudi")
	p := f.startedPickup(t, a.ID)

	_, err := f.pickups.Complete(ctx, p.ID, d("10"))
	require.NoError(t, err)
	f.notifier.reset()

	_, err = f.pickups.Complete(ctx, p.ID, d("10"))
	assert.ErrorIs(t, err, ErrStateConflict)
	assert.Equal(t, int64(1), f.count(t, &model.PointEntry{}, "pickup_id = ?", p.ID))
	assert.Equal(t, int64(20), f.account(t, a.ID).CurrentPoints)
	assert.Empty(t, f.notifier.types())
}

func TestCompleteRequiresInProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "sari")
	p, err := f.pickups.Create(ctx, CreatePickupRequest{
		AccountID:       a.ID,
		OrganizerID:     3,
		CategoryID:      f.categoryID,
		Address:         "5 Lorong Biru",
		EstimatedWeight: decimal.NewFromInt(2),
	})
	require.NoError(t, err)

	_, err = f.pickups.Complete(ctx, p.ID, d("2"))
	assert.ErrorIs(t, err, ErrStateConflict)

	_, err = f.pickups.Complete(ctx, 9999, d("2"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.pickups.Complete(ctx, p.ID, d("-1"))
	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, f.count(t, &model.PointEntry{}))
}

func TestCompletionPromotesTierAfterCrediting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "tono")
	f.setPoints(t, a.ID, 990, 990)
	p := f.startedPickup(t, a.ID)

	// multiplier is the Green Seed one held at completion time
	result, err := f.pickups.Complete(ctx, p.ID, d("10"))
	require.NoError(t, err)
	assert.Equal(t, int64(20), result.PointsAwarded)
	assert.True(t, result.TierChanged)
	assert.Equal(t, "Silver", f.account(t, a.ID).TierLevel.Name)
	assert.ElementsMatch(t, []string{model.NotificationTypePointsEarned, model.NotificationTypeTierChanged}, f.notifier.types())
	assert.Equal(t, int64(1), f.count(t, &model.OutboxMessage{}, "event_type = ?", model.EventTierChanged))
}

func TestCompleteWithZeroWeight(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "umar")
	p := f.startedPickup(t, a.ID)

	result, err := f.pickups.Complete(context.Background(), p.ID, decimal.Zero)
	require.NoError(t, err)
	assert.Zero(t, result.PointsAwarded)
	assert.Equal(t, int64(1), f.count(t, &model.PointEntry{}))
}

func TestCompleteRejectsWeightFinerThanStored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "wira")
	p := f.startedPickup(t, a.ID)

	_, err := f.pickups.Complete(ctx, p.ID, d("2.995"))
	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, f.count(t, &model.PointEntry{}))

	got, err := f.pickups.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PickupStatusInProgress, got.Status)

	result, err := f.pickups.Complete(ctx, p.ID, d("2.99"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.PointsAwarded) // floor(2.99*2)=5 on Green Seed
}

func TestPickupTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "vina")
	create := func() *model.Pickup {
		p, err := f.pickups.Create(ctx, CreatePickupRequest{
			AccountID:       a.ID,
			OrganizerID:     8,
			CategoryID:      f.categoryID,
			Address:         "9 Jalan Merah",
			EstimatedWeight: decimal.NewFromInt(1),
		})
		require.NoError(t, err)
		return p
	}

	p := create()
	_, err := f.pickups.Reject(ctx, p.ID, "  ")
	assert.ErrorIs(t, err, ErrValidation)
	rejected, err := f.pickups.Reject(ctx, p.ID, "outside service area")
	require.NoError(t, err)
	assert.Equal(t, model.PickupStatusRejected, rejected.Status)
	_, err = f.pickups.Start(ctx, p.ID)
	assert.ErrorIs(t, err, ErrStateConflict)

	p = create()
	_, err = f.pickups.Start(ctx, p.ID)
	require.NoError(t, err)
	_, err = f.pickups.Reject(ctx, p.ID, "too late")
	assert.ErrorIs(t, err, ErrStateConflict)
	cancelled, err := f.pickups.Cancel(ctx, p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.PickupStatusCancelled, cancelled.Status)

	_, err = f.pickups.Create(ctx, CreatePickupRequest{AccountID: a.ID, OrganizerID: 8, CategoryID: 999, Address: "x", EstimatedWeight: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.pickups.Create(ctx, CreatePickupRequest{AccountID: a.ID, OrganizerID: 8, CategoryID: f.categoryID, Address: "x"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPreviewPoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "wati")
	f.setPoints(t, a.ID, 0, 2000) // Silver, x1.25
	p := f.startedPickup(t, a.ID)

	preview, err := f.pickups.PreviewPoints(ctx, p.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(12), preview.Points) // 5kg estimate: floor(10*1.25)

	w := d("8")
	preview, err = f.pickups.PreviewPoints(ctx, p.ID, &w)
	require.NoError(t, err)
	assert.Equal(t, int64(20), preview.Points)
	assert.Zero(t, f.count(t, &model.PointEntry{}))
}
