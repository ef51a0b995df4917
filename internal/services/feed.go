package services

import (
	"context"
	"time"

	"devnewz/internal/models"
	"devnewz/internal/repository"
	"devnewz/internal/utils"
)

// FeedItem is one post in a list view.
type FeedItem struct {
	ID           uint            `json:"id"`
	Title        string          `json:"title"`
	URL          *string         `json:"url"`
	Domain       string          `json:"domain,omitempty"`
	Type         models.PostType `json:"type"`
	CreatedAt    time.Time       `json:"createdAt"`
	Upvotes      int             `json:"upvotes"`
	Downvotes    int             `json:"downvotes"`
	Velocity     float64         `json:"velocity"`
	UserID       uint            `json:"userId"`
	Username     string          `json:"username"`
	UserKarma    int             `json:"userKarma"`
	CommentCount int64           `json:"commentCount"`
	UserVote     VoteState       `json:"userVote"`
}

type Pagination struct {
	CurrentPage int   `json:"currentPage"`
	TotalPages  int   `json:"totalPages"`
	TotalNews   int64 `json:"totalNews"`
	PageSize    int   `json:"pageSize"`
}

type FeedPage struct {
	Items      []FeedItem `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// summarize attaches vote and comment counts. The result does not depend on
// the viewer and may be cached.
func summarize(ctx context.Context, store repository.Store, posts []models.Post, now time.Time) ([]FeedItem, error) {
	ids := make([]uint, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	counts, err := store.Votes().Counts(ctx, models.TargetPost, ids)
	if err != nil {
		return nil, err
	}
	comments, err := store.Comments().CountByPosts(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]FeedItem, len(posts))
	for i, p := range posts {
		c := counts[p.ID]
		item := FeedItem{
			ID:           p.ID,
			Title:        p.Title,
			URL:          p.URL,
			Type:         p.Type,
			CreatedAt:    p.CreatedAt,
			Upvotes:      c.Upvotes,
			Downvotes:    c.Downvotes,
			Velocity:     utils.Velocity(c.Upvotes, c.Downvotes, p.CreatedAt, now),
			UserID:       p.UserID,
			Username:     p.User.Username,
			UserKarma:    p.User.Karma,
			CommentCount: comments[p.ID],
		}
		if p.URL != nil {
			item.Domain = utils.Domain(*p.URL)
		}
		items[i] = item
	}
	return items, nil
}

// annotate injects the viewer's vote state in place.
func annotate(ctx context.Context, ledger *VoteLedger, items []FeedItem, viewerID uint) error {
	if viewerID == 0 || len(items) == 0 {
		return nil
	}
	ids := make([]uint, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	states, err := ledger.AnnotateStates(ctx, viewerID, models.TargetPost, ids)
	if err != nil {
		return err
	}
	for i := range items {
		items[i].UserVote = states[items[i].ID]
	}
	return nil
}

func sortByVelocity(items []FeedItem) {
	utils.SortByVelocity(items, func(it FeedItem) float64 { return it.Velocity })
}
