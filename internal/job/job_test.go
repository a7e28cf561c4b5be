package job

import (
	"context"
	"errors"
	"sync"
	"testing"

	"kitarcycle/internal/config"
	"kitarcycle/internal/infrastructure/database"
	"kitarcycle/internal/infrastructure/mq"
	"kitarcycle/internal/model"
	"kitarcycle/internal/repository"

	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenMemory("job")
	require.NoError(t, err)
	return db
}

func testConfig() *config.Config {
	return &config.Config{Business: config.BusinessConfig{
		MaxRetryCount:          2,
		NotificationMaxRetries: 3,
	}}
}

func addOutbox(t *testing.T, db *gorm.DB, key string) *model.OutboxMessage {
	t.Helper()
	msg := &model.OutboxMessage{
		MessageKey: key,
		EventType:  model.EventPointsEarned,
		Topic:      "kitarcycle.points",
		Payload:    `{"event_type":"points.earned"}`,
		Status:     model.OutboxStatusPending,
	}
	require.NoError(t, repository.NewOutboxRepository(db).Create(context.Background(), nil, msg))
	return msg
}

type failingPublisher struct{}

func (failingPublisher) Publish(string, string, string) error {
	return errors.New("broker unavailable")
}

func TestOutboxSenderPublishesPending(t *testing.T) {
	db := openTestDB(t)
	addOutbox(t, db, "k1")
	addOutbox(t, db, "k2")

	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndSucceed()
	mock.ExpectSendMessageAndSucceed()
	producer := mq.NewProducer(mock)
	defer producer.Close()

	sender := NewOutboxSender(db, producer, testConfig())
	assert.Equal(t, 2, sender.processPendingMessages(context.Background()))

	repo := repository.NewOutboxRepository(db)
	sent, err := repo.CountByStatus(context.Background(), model.OutboxStatusSent)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sent)
	assert.Zero(t, sender.processPendingMessages(context.Background()))
}

func TestOutboxSenderMarksFailedAfterMaxRetries(t *testing.T) {
	db := openTestDB(t)
	msg := addOutbox(t, db, "k1")
	sender := NewOutboxSender(db, failingPublisher{}, testConfig())
	repo := repository.NewOutboxRepository(db)
	ctx := context.Background()

	sender.processPendingMessages(ctx)
	pending, err := repo.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].RetryCount)

	sender.processPendingMessages(ctx)
	failed, err := repo.CountByStatus(ctx, model.OutboxStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, int64(1), failed)

	rows, err := repo.ListByEventType(ctx, model.EventPointsEarned)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, msg.ID, rows[0].ID)
	assert.Equal(t, 2, rows[0].RetryCount)
}

type recordingDeliverer struct {
	mu   sync.Mutex
	seen []int64
	fail map[int64]bool
}

func (d *recordingDeliverer) Deliver(_ context.Context, row *model.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = append(d.seen, row.ID)
	if d.fail[row.ID] {
		return errors.New("push failed")
	}
	return nil
}

func TestNotificationRetryJobSkipsExhaustedRows(t *testing.T) {
	db := openTestDB(t)
	repo := repository.NewNotificationRepository(db)
	ctx := context.Background()

	var rows []*model.Notification
	for i, retries := range []int{0, 1, 3} {
		n := &model.Notification{
			RecipientKind: model.RecipientUser,
			RecipientID:   int64(i + 1),
			Type:          model.NotificationTypeGeneral,
			Title:         "hello",
			Message:       "world",
			RetryCount:    retries,
		}
		require.NoError(t, repo.Create(ctx, n))
		rows = append(rows, n)
	}
	sent := &model.Notification{
		RecipientKind: model.RecipientUser,
		RecipientID:   9,
		Type:          model.NotificationTypeGeneral,
		Title:         "done",
		Message:       "already pushed",
	}
	require.NoError(t, repo.Create(ctx, sent))
	require.NoError(t, repo.MarkSent(ctx, sent.ID, "m-1"))

	deliverer := &recordingDeliverer{fail: map[int64]bool{rows[1].ID: true}}
	j := NewNotificationRetryJob(db, deliverer, testConfig())

	assert.Equal(t, 1, j.retryUnsent(ctx))
	assert.ElementsMatch(t, []int64{rows[0].ID, rows[1].ID}, deliverer.seen)
}

type countingReconciler struct {
	calls   int
	changed int
	err     error
}

func (r *countingReconciler) ReconcileAll(_ context.Context, batch int) (int, error) {
	r.calls++
	return r.changed, r.err
}

func TestTierReconcileJobRunOnce(t *testing.T) {
	r := &countingReconciler{changed: 2}
	j := NewTierReconcileJob(r, testConfig())
	j.runOnce(context.Background())
	r.err = errors.New("tier table missing")
	j.runOnce(context.Background())
	assert.Equal(t, 2, r.calls)
}

func TestJobsStopOnContextCancel(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		NewOutboxSender(db, failingPublisher{}, testConfig()).Start(ctx)
		NewNotificationRetryJob(db, &recordingDeliverer{}, testConfig()).Start(ctx)
		NewTierReconcileJob(&countingReconciler{}, testConfig()).Start(ctx)
		close(done)
	}()
	<-done
}

func TestJobStop(t *testing.T) {
	j := NewTierReconcileJob(&countingReconciler{}, testConfig())
	done := make(chan struct{})
	go func() {
		j.Start(context.Background())
		close(done)
	}()
	j.Stop()
	<-done
}
