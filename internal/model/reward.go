package model

import (
	"time"
)

type Reward struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string    `gorm:"type:varchar(255);not null" json:"name"`
	Description    string    `gorm:"type:text" json:"description"`
	PointsRequired int64     `gorm:"not null" json:"points_required"`
	Stock          int64     `gorm:"not null;default:0" json:"stock"`
	Image          string    `gorm:"type:varchar(255)" json:"image"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Reward) TableName() string {
	return "rewards"
}

// CartItem stages a reward for checkout. One row per (account, reward).
type CartItem struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID int64     `gorm:"uniqueIndex:uk_cart_account_reward,priority:1;not null" json:"account_id"`
	RewardID  int64     `gorm:"uniqueIndex:uk_cart_account_reward,priority:2;not null" json:"reward_id"`
	Quantity  int64     `gorm:"not null" json:"quantity"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Reward *Reward `gorm:"foreignKey:RewardID" json:"reward,omitempty"`
}

func (CartItem) TableName() string {
	return "reward_cart_items"
}

// Redemption is the spend-side mirror of PointEntry: written once by checkout
// together with its items and never modified afterwards.
type Redemption struct {
	ID               int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	RedemptionNo     string           `gorm:"type:varchar(64);uniqueIndex;not null" json:"redemption_no"`
	AccountID        int64            `gorm:"index;not null" json:"account_id"`
	TotalPointsSpent int64            `gorm:"not null" json:"total_points_spent"`
	BalanceBefore    int64            `gorm:"not null" json:"balance_before"`
	BalanceAfter     int64            `gorm:"not null" json:"balance_after"`
	CreatedAt        time.Time        `gorm:"autoCreateTime;index" json:"created_at"`
	Items            []RedemptionItem `gorm:"foreignKey:RedemptionID" json:"items"`
}

func (Redemption) TableName() string {
	return "reward_redemptions"
}

type RedemptionItem struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RedemptionID int64     `gorm:"index;not null" json:"redemption_id"`
	RewardID     int64     `gorm:"index;not null" json:"reward_id"`
	Quantity     int64     `gorm:"not null" json:"quantity"`
	PointsEach   int64     `gorm:"not null" json:"points_each"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`

	Reward *Reward `gorm:"foreignKey:RewardID" json:"reward,omitempty"`
}

func (RedemptionItem) TableName() string {
	return "reward_redemption_items"
}
