package model

import (
	"time"
)

// Account is a recycler's loyalty record: spendable balance, lifetime earned total and tier.
//
// current_points rises with pickups and falls with redemptions.
// total_points_earned only ever rises; tier placement is derived from it.
type Account struct {
	ID                int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name              string    `gorm:"type:varchar(128);not null" json:"name"`
	Email             string    `gorm:"type:varchar(191);uniqueIndex;not null" json:"email"`
	CurrentPoints     int64     `gorm:"not null;default:0" json:"current_points"`
	TotalPointsEarned int64     `gorm:"not null;default:0;index" json:"total_points_earned"`
	TierLevelID       *int64    `gorm:"index" json:"tier_level_id"`
	Version           int       `gorm:"not null;default:0" json:"-"` // optimistic lock
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	TierLevel *TierLevel `gorm:"foreignKey:TierLevelID" json:"tier_level,omitempty"`
}

func (Account) TableName() string {
	return "accounts"
}

// HasTier reports whether the account is currently assigned to tierID.
func (a *Account) HasTier(tierID int64) bool {
	return a.TierLevelID != nil && *a.TierLevelID == tierID
}
