package repository

import (
	"context"
	"errors"
	"time"

	"devnewz/internal/models"
)

// ErrNotFound is returned by every repository when the requested row is absent.
var ErrNotFound = errors.New("record not found")

// Store groups the repositories. Transaction runs fn against a Store bound to
// a single database transaction; returning an error rolls everything back.
type Store interface {
	Users() UserRepo
	Posts() PostRepo
	Comments() CommentRepo
	Votes() VoteRepo
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

type UserRepo interface {
	Create(ctx context.Context, user *models.User) error
	Get(ctx context.Context, id uint) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	// AddKarma increments users.karma in place and records a KarmaLog row.
	AddKarma(ctx context.Context, userID uint, delta int, reason string) error
	KarmaLogs(ctx context.Context, userID uint, limit int) ([]models.KarmaLog, error)
}

type PostOrder int

const (
	OrderRecency PostOrder = iota
	OrderVelocity
)

// PostQuery filters PostRepo.List. Zero values disable a filter; a non-nil
// empty IDs slice matches nothing. Page or PageSize <= 0 returns every match.
type PostQuery struct {
	UserID      uint
	Type        models.PostType
	CreatedFrom time.Time
	CreatedTo   time.Time
	IDs         []uint
	OrderBy     PostOrder
	Page        int
	PageSize    int
}

type PostRepo interface {
	Create(ctx context.Context, post *models.Post) error
	Get(ctx context.Context, id uint) (*models.Post, error)
	Update(ctx context.Context, post *models.Post) error
	// Delete removes the post, its comments and every vote on either.
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, q PostQuery) ([]models.Post, int64, error)
	UpdateVelocity(ctx context.Context, id uint, velocity float64) error
	RecentIDs(ctx context.Context, since time.Time) ([]uint, error)
}

type CommentRepo interface {
	Create(ctx context.Context, comment *models.Comment) error
	Get(ctx context.Context, id uint) (*models.Comment, error)
	UpdateContent(ctx context.Context, id uint, content string) error
	ListByPost(ctx context.Context, postID uint) ([]models.Comment, error)
	ListByUser(ctx context.Context, userID uint) ([]models.Comment, error)
	ListNewest(ctx context.Context, limit int) ([]models.Comment, error)
	ListByIDs(ctx context.Context, ids []uint) ([]models.Comment, error)
	ChildIDs(ctx context.Context, parentIDs []uint) ([]uint, error)
	// DeleteMany removes the comments and the votes cast on them.
	DeleteMany(ctx context.Context, ids []uint) (int64, error)
	CountByPosts(ctx context.Context, postIDs []uint) (map[uint]int64, error)
}

type VoteRepo interface {
	// Get returns the current vote type, or "" when the user has not voted.
	Get(ctx context.Context, userID uint, kind models.TargetKind, targetID uint) (models.VoteType, error)
	// CompareAndSet moves the (user, target) row from one state to another, ""
	// meaning no row. It reports false without writing when the stored state
	// is no longer from, so two racing requests cannot both apply a transition.
	CompareAndSet(ctx context.Context, userID uint, kind models.TargetKind, targetID uint, from, to models.VoteType) (bool, error)
	Counts(ctx context.Context, kind models.TargetKind, ids []uint) (map[uint]models.VoteCount, error)
	States(ctx context.Context, userID uint, kind models.TargetKind, ids []uint) (map[uint]models.VoteType, error)
	TargetIDs(ctx context.Context, userID uint, kind models.TargetKind, vt models.VoteType) ([]uint, error)
}
