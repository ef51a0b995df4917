package models

import (
	"time"
)

type TargetKind string

const (
	TargetPost    TargetKind = "post"
	TargetComment TargetKind = "comment"
)

func (k TargetKind) Valid() bool {
	return k == TargetPost || k == TargetComment
}

type VoteType string

const (
	VoteUp   VoteType = "upvote"
	VoteDown VoteType = "downvote"
)

func (t VoteType) Valid() bool {
	return t == VoteUp || t == VoteDown
}

// Vote is the single tri-state row per (user, target). An absent row means
// "no vote"; switching sides updates Type in place under the unique index,
// so a user can never hold an upvote and a downvote on the same target.
type Vote struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	UserID     uint       `gorm:"not null;uniqueIndex:idx_vote_user_target" json:"user_id"`
	TargetType TargetKind `gorm:"size:10;not null;uniqueIndex:idx_vote_user_target;index:idx_vote_target" json:"target_type"`
	TargetID   uint       `gorm:"not null;uniqueIndex:idx_vote_user_target;index:idx_vote_target" json:"target_id"`
	Type       VoteType   `gorm:"size:10;not null" json:"type"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// VoteCount is the aggregate displayed next to a post or comment.
type VoteCount struct {
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
}
