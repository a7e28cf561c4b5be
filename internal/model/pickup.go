package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PickupStatusPending    = "Pending"
	PickupStatusInProgress = "In Progress"
	PickupStatusCompleted  = "Completed"
	PickupStatusRejected   = "Rejected"
	PickupStatusCancelled  = "Cancelled"
)

// ValidStatusTransitions lists the statuses each pickup status may move to.
// Completed, Rejected and Cancelled are terminal.
var ValidStatusTransitions = map[string][]string{
	PickupStatusPending:    {PickupStatusInProgress, PickupStatusRejected, PickupStatusCancelled},
	PickupStatusInProgress: {PickupStatusCompleted, PickupStatusCancelled},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

func IsTerminalStatus(status string) bool {
	_, hasNext := ValidStatusTransitions[status]
	return !hasNext
}

type Pickup struct {
	ID                 int64               `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID          int64               `gorm:"index;not null" json:"account_id"`
	OrganizerID        int64               `gorm:"index;not null" json:"organizer_id"`
	CategoryID         int64               `gorm:"not null" json:"category_id"`
	Address            string              `gorm:"type:text;not null" json:"address"`
	EstimatedWeight    decimal.Decimal     `gorm:"type:decimal(10,2);not null" json:"estimated_weight"`
	ActualWeight       decimal.NullDecimal `gorm:"type:decimal(10,2)" json:"actual_weight"`
	Status             string              `gorm:"type:varchar(20);index;not null" json:"status"`
	RejectionReason    string              `gorm:"type:varchar(255)" json:"rejection_reason,omitempty"`
	CancellationReason string              `gorm:"type:varchar(255)" json:"cancellation_reason,omitempty"`
	CompletedAt        *time.Time          `json:"completed_at"`
	CreatedAt          time.Time           `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt          time.Time           `gorm:"autoUpdateTime" json:"updated_at"`

	Category *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
}

func (Pickup) TableName() string {
	return "pickups"
}

// Category is a waste category with its earning rate.
type Category struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string          `gorm:"type:varchar(64);not null" json:"name"`
	PointsPerKg decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"points_per_kg"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Category) TableName() string {
	return "categories"
}
