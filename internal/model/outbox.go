package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// Domain event types carried in outbox payloads.
const (
	EventPointsEarned   = "points.earned"
	EventRewardRedeemed = "reward.redeemed"
	EventTierChanged    = "tier.changed"
)

// OutboxMessage is a domain event written in the same transaction as the
// state change it describes and published to Kafka afterwards.
type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"`
	EventType  string    `gorm:"type:varchar(64);not null" json:"event_type"`
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}

// AllModels returns every persisted model, in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&TierLevel{},
		&Account{},
		&Category{},
		&Pickup{},
		&PointEntry{},
		&Reward{},
		&CartItem{},
		&Redemption{},
		&RedemptionItem{},
		&Notification{},
		&FcmToken{},
		&OutboxMessage{},
	}
}
