package models

import (
	"time"
)

type PostType string

const (
	PostTypeGeneral PostType = "GENERAL"
	PostTypeAsk     PostType = "ASK"
	PostTypeShow    PostType = "SHOW"
)

type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	User      User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Title     string    `gorm:"size:300;not null" json:"title"`
	URL       *string   `gorm:"size:2048" json:"url"`      // URL 与 Content 二选一
	Content   *string   `gorm:"type:text" json:"content"` // text post body
	Type      PostType  `gorm:"size:10;not null;default:'GENERAL';index" json:"type"`
	Velocity  float64   `gorm:"default:0;index" json:"-"` // 由 RerankWorker 维护的全局排序键
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsText reports whether the post carries a text body instead of a link.
func (p *Post) IsText() bool {
	return p.Content != nil && *p.Content != ""
}
