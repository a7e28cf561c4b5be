package model

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// RecipientKind tags who a notification is addressed to.
type RecipientKind string

const (
	RecipientUser      RecipientKind = "user"
	RecipientOrganizer RecipientKind = "organizer"
)

func (k RecipientKind) Valid() bool {
	return k == RecipientUser || k == RecipientOrganizer
}

// Recipient identifies a recycler account or an organizer.
type Recipient struct {
	Kind RecipientKind `json:"kind"`
	ID   int64         `json:"id"`
}

func UserRecipient(id int64) Recipient {
	return Recipient{Kind: RecipientUser, ID: id}
}

func OrganizerRecipient(id int64) Recipient {
	return Recipient{Kind: RecipientOrganizer, ID: id}
}

func (r Recipient) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

const (
	NotificationTypeGeneral         = "general"
	NotificationTypePickupRequested = "pickup_requested"
	NotificationTypePickupUpdated   = "pickup_updated"
	NotificationTypePickupCancelled = "pickup_cancelled"
	NotificationTypePointsEarned    = "points_earned"
	NotificationTypeTierChanged     = "tier_changed"
	NotificationTypeRedemption      = "reward_redemption"
)

type Notification struct {
	ID                int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	RecipientKind     RecipientKind  `gorm:"type:varchar(20);index:idx_notification_recipient,priority:1;not null" json:"recipient_kind"`
	RecipientID       int64          `gorm:"index:idx_notification_recipient,priority:2;not null" json:"recipient_id"`
	Type              string         `gorm:"type:varchar(32);not null" json:"type"`
	Title             string         `gorm:"type:varchar(255);not null" json:"title"`
	Message           string         `gorm:"type:text;not null" json:"message"`
	Data              datatypes.JSON `json:"data"`
	IsRead            bool           `gorm:"not null;default:false" json:"is_read"`
	ReadAt            *time.Time     `json:"read_at"`
	IsSent            bool           `gorm:"not null;default:false;index" json:"is_sent"`
	SentAt            *time.Time     `json:"sent_at"`
	RetryCount        int            `gorm:"not null;default:0" json:"-"`
	ProviderMessageID string         `gorm:"type:varchar(128)" json:"-"`
	CreatedAt         time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Notification) TableName() string {
	return "notifications"
}

func (n *Notification) Recipient() Recipient {
	return Recipient{Kind: n.RecipientKind, ID: n.RecipientID}
}

// FcmToken is a device registration for push delivery.
type FcmToken struct {
	ID            int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	RecipientKind RecipientKind `gorm:"type:varchar(20);index:idx_fcm_recipient,priority:1;not null" json:"recipient_kind"`
	RecipientID   int64         `gorm:"index:idx_fcm_recipient,priority:2;not null" json:"recipient_id"`
	Token         string        `gorm:"type:varchar(255);uniqueIndex;not null" json:"token"`
	DeviceType    string        `gorm:"type:varchar(20)" json:"device_type"`
	IsActive      bool          `gorm:"not null;default:true" json:"is_active"`
	LastUsedAt    *time.Time    `json:"last_used_at"`
	CreatedAt     time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

func (FcmToken) TableName() string {
	return "fcm_tokens"
}
