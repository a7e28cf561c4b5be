package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TierLevel is a closed range [PointFrom, PointTo] of lifetime earned points with an earning multiplier.
type TierLevel struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string          `gorm:"type:varchar(20);not null" json:"name"`
	PointFrom   int64           `gorm:"not null;index" json:"point_from"`
	PointTo     int64           `gorm:"not null" json:"point_to"`
	Multiplier  decimal.Decimal `gorm:"type:decimal(6,2);not null" json:"multiplier"`
	Image       string          `gorm:"type:varchar(255)" json:"image"`
	Description string          `gorm:"type:text" json:"description"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (TierLevel) TableName() string {
	return "tier_levels"
}

// Contains reports whether points falls inside the tier's range, both ends inclusive.
func (t *TierLevel) Contains(points int64) bool {
	return points >= t.PointFrom && points <= t.PointTo
}
