package models

import (
	"time"
)

// KarmaLog is the audit trail of applied karma deltas. It is written in the
// same transaction as the atomic increment on users.karma.
type KarmaLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	User      User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Amount    int       `gorm:"not null" json:"amount"`          // 正数为增加，负数为扣除
	Reason    string    `gorm:"size:100;not null" json:"reason"` // 动作描述
	CreatedAt time.Time `json:"created_at"`
}
