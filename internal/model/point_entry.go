package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PointEntryTypeEarn = "EARN"
)

// ============================================================================
// Points ledger
// ============================================================================

// PointEntry is one row of the points ledger.
//
// Rows are append-only: never updated, never deleted. Each row keeps the
// inputs of the calculation (weight, rate, multiplier) as they were when the
// points were earned, plus the balance before and after, so every account
// balance can be replayed from its entries.
type PointEntry struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryNo       string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"entry_no"`
	AccountID     int64           `gorm:"index:idx_point_entry_account_created,priority:1;not null" json:"account_id"`
	PickupID      int64           `gorm:"uniqueIndex;not null" json:"pickup_id"` // source transaction
	OrganizerID   int64           `gorm:"index" json:"organizer_id"`
	PointsEarned  int64           `gorm:"not null" json:"points_earned"`
	ActualWeight  decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"actual_weight"`
	PointsPerKg   decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"points_per_kg"`
	Multiplier    decimal.Decimal `gorm:"type:decimal(6,2);not null" json:"multiplier"`
	Type          string          `gorm:"type:varchar(20);not null" json:"type"`
	Description   string          `gorm:"type:varchar(255)" json:"description"`
	BalanceBefore int64           `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64           `gorm:"not null" json:"balance_after"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index:idx_point_entry_account_created,priority:2" json:"created_at"`
}

func (PointEntry) TableName() string {
	return "point_entries"
}
