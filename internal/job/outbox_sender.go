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

// Publisher is the broker side of the outbox. *mq.Producer implements it.
type Publisher interface {
	Publish(topic, key, value string) error
}

// OutboxSender drains pending outbox rows to the broker. A row is marked
// FAILED once it has been retried MaxRetryCount times.
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	publisher  Publisher
	cfg        *config.Config
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewOutboxSender(db *gorm.DB, publisher Publisher, cfg *config.Config) *OutboxSender {
	interval := cfg.Business.OutboxInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		publisher:  publisher,
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		interval:   interval,
		batchSize:  100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	log.WithField("interval", s.interval).Info("[OutboxSender] started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("[OutboxSender] context done, exiting")
			return
		case <-s.stopCh:
			log.Info("[OutboxSender] stopped")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

func (s *OutboxSender) processPendingMessages(ctx context.Context) int {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		log.WithError(err).Error("[OutboxSender] load pending messages")
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.sendMessage(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	fields := log.Fields{"id": msg.ID, "topic": msg.Topic, "key": msg.MessageKey, "event": msg.EventType}

	err := s.publisher.Publish(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if updateErr := s.outboxRepo.UpdateStatus(ctx, msg.ID, model.OutboxStatusSent); updateErr != nil {
			log.WithFields(fields).WithError(updateErr).Error("[OutboxSender] mark sent")
			return false
		}
		log.WithFields(fields).Debug("[OutboxSender] message sent")
		return true
	}

	log.WithFields(fields).WithError(err).Warn("[OutboxSender] publish failed")

	if msg.RetryCount+1 >= s.cfg.Business.MaxRetryCount {
		if err := s.outboxRepo.MarkAsFailed(ctx, msg.ID); err != nil {
			log.WithFields(fields).WithError(err).Error("[OutboxSender] mark failed")
		} else {
			log.WithFields(fields).Error("[OutboxSender] retries exhausted, message marked FAILED")
		}
		return false
	}
	if err := s.outboxRepo.IncrementRetryCount(ctx, msg.ID); err != nil {
		log.WithFields(fields).WithError(err).Error("[OutboxSender] increment retry count")
	}
	return false
}
