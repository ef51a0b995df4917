package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"devnewz/internal/logger"
	"devnewz/internal/models"
	"devnewz/internal/repository"
	"devnewz/internal/utils"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const (
	DefaultNewestLimit = 50
	maxPastPageSize    = 100
	pastDateLayout     = "02/01/2006"
)

// SubmitInput is a new or edited submission. Exactly one of URL and Text is set.
type SubmitInput struct {
	Title string `json:"title" validate:"required,min=10,max=50"`
	URL   string `json:"url" validate:"omitempty,max=2048,http_url"`
	Text  string `json:"text" validate:"omitempty,min=30,max=150"`
}

var submitMessages = map[string]string{
	"title.required": "Title is required",
	"title.min":      "Title too short (10+ chars)",
	"title.max":      "Title too long (max 50 chars)",
	"url.max":        "URL too long",
	"url.http_url":   "Invalid URL format",
	"text.min":       "News too short (30+ chars)",
	"text.max":       "News too long (max 150 chars)",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (in *SubmitInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.URL = strings.TrimSpace(in.URL)
	in.Text = strings.TrimSpace(in.Text)

	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			msg, ok := submitMessages[fe.Field()+"."+fe.Tag()]
			if !ok {
				msg = fe.Error()
			}
			return invalid(fe.Field(), msg)
		}
		return err
	}
	if in.URL != "" && in.Text != "" {
		return invalid("text", "Cannot submit both URL and text. Choose one.")
	}
	if in.URL == "" && in.Text == "" {
		return invalid("url", "Either URL or text must be provided.")
	}
	return nil
}

// ClassifyTitle derives the post type from the "Ask:" / "Show:" prefix
// convention. The site-qualified form ("Ask DevNewz:") is accepted too.
func ClassifyTitle(title, siteName string) models.PostType {
	title = strings.TrimSpace(title)
	hasPrefix := func(word string) bool {
		if strings.HasPrefix(title, word+":") {
			return true
		}
		return siteName != "" && strings.HasPrefix(title, word+" "+siteName+":")
	}
	switch {
	case hasPrefix("Ask"):
		return models.PostTypeAsk
	case hasPrefix("Show"):
		return models.PostTypeShow
	default:
		return models.PostTypeGeneral
	}
}

// PostDetail is the single-post view.
type PostDetail struct {
	FeedItem
	Content     *string `json:"content"`
	ContentHTML string  `json:"contentHtml,omitempty"`
}

type PostOptions struct {
	SiteName    string
	NewestLimit int
}

type PostService struct {
	store       repository.Store
	ledger      *VoteLedger
	ranking     *RankingEngine
	siteName    string
	newestLimit int
	now         func() time.Time
	log         zerolog.Logger
}

func NewPostService(store repository.Store, ledger *VoteLedger, ranking *RankingEngine, opts PostOptions) *PostService {
	if opts.NewestLimit <= 0 {
		opts.NewestLimit = DefaultNewestLimit
	}
	return &PostService{
		store:       store,
		ledger:      ledger,
		ranking:     ranking,
		siteName:    opts.SiteName,
		newestLimit: opts.NewestLimit,
		now:         time.Now,
		log:         logger.WithComponent("posts"),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *PostService) Submit(ctx context.Context, actorID uint, in SubmitInput) (*models.Post, error) {
	if actorID == 0 {
		return nil, ErrUnauthenticated
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	post := &models.Post{
		UserID:  actorID,
		Title:   in.Title,
		URL:     optional(in.URL),
		Content: optional(in.Text),
		Type:    ClassifyTitle(in.Title, s.siteName),
	}
	if err := s.store.Posts().Create(ctx, post); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	s.ranking.PostsChanged(ctx)
	s.log.Info().Uint("post_id", post.ID).Uint("user_id", actorID).Str("type", string(post.Type)).Msg("post submitted")
	return post, nil
}

func (s *PostService) Get(ctx context.Context, id, viewerID uint) (*PostDetail, error) {
	post, err := s.store.Posts().Get(ctx, id)
	if err != nil {
		return nil, notFound(err, fmt.Errorf("post %d: %w", id, ErrNotFound))
	}
	items, err := s.hydrate(ctx, []models.Post{*post}, viewerID)
	if err != nil {
		return nil, err
	}
	detail := &PostDetail{FeedItem: items[0], Content: post.Content}
	if post.Content != nil {
		detail.ContentHTML = utils.RenderMarkdown(*post.Content)
	}
	return detail, nil
}

func (s *PostService) owned(ctx context.Context, actorID, id uint) (*models.Post, error) {
	if actorID == 0 {
		return nil, ErrUnauthenticated
	}
	post, err := s.store.Posts().Get(ctx, id)
	if err != nil {
		return nil, notFound(err, fmt.Errorf("post %d: %w", id, ErrNotFound))
	}
	if post.UserID != actorID {
		return nil, ErrUnauthorized
	}
	return post, nil
}

func (s *PostService) Edit(ctx context.Context, actorID, id uint, in SubmitInput) (*models.Post, error) {
	post, err := s.owned(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	post.Title = in.Title
	post.URL = optional(in.URL)
	post.Content = optional(in.Text)
	post.Type = ClassifyTitle(in.Title, s.siteName)

	if err := s.store.Posts().Update(ctx, post); err != nil {
		return nil, fmt.Errorf("update post: %w", notFound(err, ErrNotFound))
	}
	s.ranking.PostsChanged(ctx)
	return post, nil
}

// Delete removes the post with its comments and votes.
func (s *PostService) Delete(ctx context.Context, actorID, id uint) error {
	if _, err := s.owned(ctx, actorID, id); err != nil {
		return err
	}
	if err := s.store.Posts().Delete(ctx, id); err != nil {
		return fmt.Errorf("delete post: %w", notFound(err, ErrNotFound))
	}
	s.ranking.PostsChanged(ctx)
	return nil
}

// Newest lists the latest submissions without ranking.
func (s *PostService) Newest(ctx context.Context, viewerID uint) ([]FeedItem, error) {
	posts, _, err := s.store.Posts().List(ctx, repository.PostQuery{Page: 1, PageSize: s.newestLimit})
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, posts, viewerID)
}

// Past lists posts from one calendar day (UTC), given as dd/MM/yyyy.
func (s *PostService) Past(ctx context.Context, date string, page, pageSize int, viewerID uint) (*FeedPage, error) {
	if date == "" {
		return nil, invalid("date", "Date parameter is required")
	}
	day, err := time.ParseInLocation(pastDateLayout, date, time.UTC)
	if err != nil {
		return nil, invalid("date", "Date must be formatted as dd/MM/yyyy")
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = s.ranking.PageSize()
	}
	if pageSize > maxPastPageSize {
		pageSize = maxPastPageSize
	}
	return s.list(ctx, repository.PostQuery{
		CreatedFrom: day,
		CreatedTo:   day.Add(24 * time.Hour),
		Page:        page,
		PageSize:    pageSize,
	}, viewerID, false)
}

// ByType serves the Ask and Show pages, ranked like the front page.
func (s *PostService) ByType(ctx context.Context, t models.PostType, page int, viewerID uint) (*FeedPage, error) {
	if t != models.PostTypeAsk && t != models.PostTypeShow {
		return nil, invalid("type", "must be ASK or SHOW")
	}
	if page < 1 {
		page = 1
	}
	return s.list(ctx, repository.PostQuery{Type: t, Page: page, PageSize: s.ranking.PageSize()}, viewerID, true)
}

func (s *PostService) Submissions(ctx context.Context, userID, viewerID uint) ([]FeedItem, error) {
	posts, _, err := s.store.Posts().List(ctx, repository.PostQuery{UserID: userID})
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, posts, viewerID)
}

// VotedByUser lists posts the user currently up- or downvotes.
func (s *PostService) VotedByUser(ctx context.Context, userID uint, vt models.VoteType) ([]FeedItem, error) {
	ids, err := s.store.Votes().TargetIDs(ctx, userID, models.TargetPost, vt)
	if err != nil {
		return nil, err
	}
	posts, _, err := s.store.Posts().List(ctx, repository.PostQuery{IDs: ids})
	if err != nil {
		return nil, err
	}
	posts = orderByIDs(posts, ids, func(p models.Post) uint { return p.ID })
	return s.hydrate(ctx, posts, userID)
}

// orderByIDs sorts rows into the order their IDs appear in ids.
func orderByIDs[T any](rows []T, ids []uint, id func(T) uint) []T {
	pos := make(map[uint]int, len(ids))
	for i, v := range ids {
		pos[v] = i
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return pos[id(rows[i])] < pos[id(rows[j])]
	})
	return rows
}

func (s *PostService) list(ctx context.Context, q repository.PostQuery, viewerID uint, rank bool) (*FeedPage, error) {
	posts, total, err := s.store.Posts().List(ctx, q)
	if err != nil {
		return nil, err
	}
	items, err := s.hydrate(ctx, posts, viewerID)
	if err != nil {
		return nil, err
	}
	if rank {
		sortByVelocity(items)
	}
	return &FeedPage{
		Items: items,
		Pagination: Pagination{
			CurrentPage: q.Page,
			TotalPages:  utils.TotalPages(total, q.PageSize),
			TotalNews:   total,
			PageSize:    q.PageSize,
		},
	}, nil
}

func (s *PostService) hydrate(ctx context.Context, posts []models.Post, viewerID uint) ([]FeedItem, error) {
	items, err := summarize(ctx, s.store, posts, s.now())
	if err != nil {
		return nil, err
	}
	if err := annotate(ctx, s.ledger, items, viewerID); err != nil {
		return nil, err
	}
	return items, nil
}
