package models

import (
	"time"
)

type Comment struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	PostID          uint      `gorm:"not null;index" json:"post_id"`
	Post            Post      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	UserID          uint      `gorm:"not null;index" json:"user_id"`
	User            User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	ParentCommentID *uint     `gorm:"index" json:"parent_comment_id"` // Nullable for top-level comments
	Parent          *Comment  `gorm:"foreignKey:ParentCommentID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Depth           int       `gorm:"not null;default:0" json:"depth"` // parent.Depth + 1, 0 for roots
	Content         string    `gorm:"type:text;not null" json:"content"`
	CreatedAt       time.Time `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
