package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"kitarcycle/internal/model"
	"kitarcycle/internal/repository"
	"kitarcycle/pkg/idgen"

	"gorm.io/gorm"
)

// writeEvent appends a domain event to the outbox in tx, so the event is
// published if and only if the change it describes commits.
func writeEvent(ctx context.Context, tx *gorm.DB, repo *repository.OutboxRepository, topic, eventType string, payload map[string]interface{}) error {
	payload["event_type"] = eventType
	payload["occurred_at"] = time.Now().UTC().Format(time.RFC3339)

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}

	msg := &model.OutboxMessage{
		MessageKey: idgen.GenerateMessageKey(),
		EventType:  eventType,
		Topic:      topic,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	}
	if err := repo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("write %s event: %w", eventType, err)
	}
	return nil
}
