package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"kitarcycle/internal/config"
	"kitarcycle/internal/model"
	"kitarcycle/internal/repository"
	"kitarcycle/internal/service"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Message is one push to every device of a recipient.
type Message struct {
	Recipient model.Recipient
	Title     string
	Body      string
	Data      map[string]string
}

// Delivery reports whether at least one device accepted the push.
type Delivery struct {
	Delivered bool
	MessageID string
}

// Gateway is a push provider.
type Gateway interface {
	Send(ctx context.Context, msg Message) (Delivery, error)
}

const defaultDeliveryTimeout = 10 * time.Second

// ============================================================================
// Dispatcher
// ============================================================================
//
// Notify never blocks and never fails the caller:
//
//   caller ──Notify──▶ queue ──worker──▶ notifications row ──▶ Gateway
//
// A full queue drops the notice with a warning. A failed push leaves the
// row unsent for NotificationRetryJob. Panics in delivery are recovered.
// ============================================================================

type Dispatcher struct {
	repo    *repository.NotificationRepository
	gateway Gateway
	workers int
	timeout time.Duration

	mu     sync.RWMutex
	queue  chan service.Notice
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher builds a dispatcher. A nil gateway records in-app
// notifications only.
func NewDispatcher(db *gorm.DB, gateway Gateway, cfg *config.Config) *Dispatcher {
	timeout := cfg.FCM.Timeout
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}
	return &Dispatcher{
		repo:    repository.NewNotificationRepository(db),
		gateway: gateway,
		workers: cfg.Business.NotificationWorkers,
		timeout: timeout,
		queue:   make(chan service.Notice, cfg.Business.NotificationQueueSize),
	}
}

func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	log.WithField("workers", d.workers).Info("[Dispatcher] started")
}

// Notify enqueues n. The caller's ctx is not used for delivery, which
// outlives the request.
func (d *Dispatcher) Notify(_ context.Context, n service.Notice) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		log.WithField("recipient", n.Recipient.String()).Warn("[Dispatcher] stopped, notice dropped")
		return
	}
	select {
	case d.queue <- n:
	default:
		log.WithFields(log.Fields{
			"recipient": n.Recipient.String(),
			"type":      n.Type,
		}).Warn("[Dispatcher] queue full, notice dropped")
	}
}

// Stop closes the queue and waits for queued notices to drain or for ctx
// to expire.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info("[Dispatcher] stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for n := range d.queue {
		d.handle(id, n)
	}
}

func (d *Dispatcher) handle(workerID int, n service.Notice) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{
				"worker":    workerID,
				"recipient": n.Recipient.String(),
				"panic":     r,
			}).Error("[Dispatcher] panic while delivering")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	row, err := d.Record(ctx, n)
	if err != nil {
		log.WithFields(log.Fields{"recipient": n.Recipient.String(), "error": err}).
			Warn("[Dispatcher] could not record notification")
		return
	}
	if err := d.Deliver(ctx, row); err != nil {
		log.WithFields(log.Fields{"notification_id": row.ID, "error": err}).
			Warn("[Dispatcher] push failed, left for retry")
	}
}

// Record stores the in-app copy of n.
func (d *Dispatcher) Record(ctx context.Context, n service.Notice) (*model.Notification, error) {
	if !n.Recipient.Kind.Valid() || n.Recipient.ID <= 0 {
		return nil, fmt.Errorf("%w: invalid recipient %s", service.ErrNotificationDelivery, n.Recipient)
	}
	var data datatypes.JSON
	if len(n.Data) > 0 {
		raw, err := json.Marshal(n.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: encode data: %v", service.ErrNotificationDelivery, err)
		}
		data = raw
	}
	typ := n.Type
	if typ == "" {
		typ = model.NotificationTypeGeneral
	}
	row := &model.Notification{
		RecipientKind: n.Recipient.Kind,
		RecipientID:   n.Recipient.ID,
		Type:          typ,
		Title:         n.Title,
		Message:       n.Message,
		Data:          data,
	}
	if err := d.repo.Create(ctx, row); err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrNotificationDelivery, err)
	}
	return row, nil
}

// Deliver pushes a stored notification. Without a gateway it is a no-op.
// An undelivered push bumps retry_count so the retry job gives up
// eventually.
func (d *Dispatcher) Deliver(ctx context.Context, row *model.Notification) error {
	if d.gateway == nil {
		return nil
	}

	delivery, err := d.gateway.Send(ctx, Message{
		Recipient: row.Recipient(),
		Title:     row.Title,
		Body:      row.Message,
		Data:      stringData(row),
	})
	if err != nil || !delivery.Delivered {
		if incErr := d.repo.IncrementRetryCount(ctx, row.ID); incErr != nil {
			log.WithFields(log.Fields{"notification_id": row.ID, "error": incErr}).Warn("[Dispatcher] retry count update failed")
		}
		if err != nil {
			return fmt.Errorf("%w: %v", service.ErrNotificationDelivery, err)
		}
		return nil
	}

	if err := d.repo.MarkSent(ctx, row.ID, delivery.MessageID); err != nil {
		return fmt.Errorf("mark notification %d sent: %w", row.ID, err)
	}
	return nil
}

// stringData flattens the JSON payload into the string map push providers
// expect, adding the notification id and type.
func stringData(row *model.Notification) map[string]string {
	out := map[string]string{
		"notification_id": fmt.Sprint(row.ID),
		"type":            row.Type,
	}
	if len(row.Data) == 0 {
		return out
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(row.Data, &fields); err != nil {
		return out
	}
	for k, v := range fields {
		switch val := v.(type) {
		case string:
			out[k] = val
		default:
			raw, _ := json.Marshal(val)
			out[k] = string(raw)
		}
	}
	return out
}
