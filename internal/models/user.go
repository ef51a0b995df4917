package models

import (
	"time"
)

type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"uniqueIndex;size:50;not null" json:"username"`
	Karma     int       `gorm:"default:0;not null" json:"karma"`             // 只通过投票副作用变动
	Role      string    `gorm:"size:20;default:'user';not null" json:"role"` // user, guest
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// No DeletedAt for hard delete
}
