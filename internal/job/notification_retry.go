package job

import (
	"context"
	"time"

	"kitarcycle/internal/config"
	"kitarcycle/internal/model"
	"kitarcycle/internal/repository"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Deliverer pushes a stored notification. *notify.Dispatcher implements it.
type Deliverer interface {
	Deliver(ctx context.Context, row *model.Notification) error
}

// NotificationRetryJob re-pushes notifications whose first delivery failed,
// until they reach NotificationMaxRetries.
type NotificationRetryJob struct {
	notificationRepo *repository.NotificationRepository
	deliverer        Deliverer
	maxRetries       int
	stopCh           chan struct{}
	interval         time.Duration
	batchSize        int
}

func NewNotificationRetryJob(db *gorm.DB, deliverer Deliverer, cfg *config.Config) *NotificationRetryJob {
	interval := cfg.Business.NotificationRetryInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &NotificationRetryJob{
		notificationRepo: repository.NewNotificationRepository(db),
		deliverer:        deliverer,
		maxRetries:       cfg.Business.NotificationMaxRetries,
		stopCh:           make(chan struct{}),
		interval:         interval,
		batchSize:        100,
	}
}

func (j *NotificationRetryJob) Start(ctx context.Context) {
	log.WithField("interval", j.interval).Info("[NotificationRetryJob] started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("[NotificationRetryJob] context done, exiting")
			return
		case <-j.stopCh:
			log.Info("[NotificationRetryJob] stopped")
			return
		case <-ticker.C:
			j.retryUnsent(ctx)
		}
	}
}

func (j *NotificationRetryJob) Stop() {
	close(j.stopCh)
}

func (j *NotificationRetryJob) retryUnsent(ctx context.Context) int {
	rows, err := j.notificationRepo.ListUnsent(ctx, j.maxRetries, j.batchSize)
	if err != nil {
		log.WithError(err).Error("[NotificationRetryJob] load unsent notifications")
		return 0
	}
	if len(rows) == 0 {
		return 0
	}

	delivered := 0
	for _, row := range rows {
		if err := j.deliverer.Deliver(ctx, row); err != nil {
			log.WithFields(log.Fields{
				"notification_id": row.ID,
				"retry_count":     row.RetryCount + 1,
			}).WithError(err).Warn("[NotificationRetryJob] retry failed")
			continue
		}
		delivered++
	}
	log.WithFields(log.Fields{"pending": len(rows), "delivered": delivered}).Info("[NotificationRetryJob] retry pass done")
	return delivered
}
