package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"devnewz/internal/logger"
	"devnewz/internal/metrics"
	"devnewz/internal/models"
	"devnewz/internal/repository"
	"devnewz/internal/utils"

	"github.com/rs/zerolog"
)

const (
	DefaultMaxCommentDepth = 5
	maxCommentLength       = 10000
)

// CommentNode is a comment as shown to a viewer, with its replies nested.
type CommentNode struct {
	ID              uint           `json:"id"`
	PostID          uint           `json:"postId"`
	PostTitle       string         `json:"postTitle,omitempty"`
	ParentCommentID *uint          `json:"parentCommentId"`
	Depth           int            `json:"depth"`
	Content         string         `json:"content"`
	ContentHTML     string         `json:"contentHtml"`
	UserID          uint           `json:"userId"`
	Username        string         `json:"username"`
	CreatedAt       time.Time      `json:"createdAt"`
	Upvotes         int            `json:"upvotes"`
	Downvotes       int            `json:"downvotes"`
	UserVote        VoteState      `json:"userVote"`
	Children        []*CommentNode `json:"children"`
}

// BuildTree groups a flat comment list into a forest. A comment is a root
// when it has no parent or its parent is not in the input. Children keep the
// input order. With limit > 0, nesting stops after limit levels: nodes on the
// last level get an empty children list.
func BuildTree(flat []CommentNode, limit int) []*CommentNode {
	nodes := make([]*CommentNode, len(flat))
	present := make(map[uint]bool, len(flat))
	for i := range flat {
		n := flat[i]
		n.Children = nil
		nodes[i] = &n
		present[n.ID] = true
	}

	children := make(map[uint][]*CommentNode)
	var roots []*CommentNode
	for _, n := range nodes {
		if n.ParentCommentID == nil || !present[*n.ParentCommentID] {
			roots = append(roots, n)
			continue
		}
		children[*n.ParentCommentID] = append(children[*n.ParentCommentID], n)
	}

	var attach func(n *CommentNode, level int)
	attach = func(n *CommentNode, level int) {
		n.Children = []*CommentNode{}
		if limit > 0 && level+1 >= limit {
			return
		}
		for _, c := range children[n.ID] {
			attach(c, level+1)
			n.Children = append(n.Children, c)
		}
	}

	if roots == nil {
		roots = []*CommentNode{}
	}
	for _, r := range roots {
		attach(r, 0)
	}
	return roots
}

// CommentTree enforces the structure of nested comments.
type CommentTree struct {
	store    repository.Store
	ledger   *VoteLedger
	maxDepth int
	log      zerolog.Logger
}

func NewCommentTree(store repository.Store, ledger *VoteLedger, maxDepth int) *CommentTree {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxCommentDepth
	}
	return &CommentTree{
		store:    store,
		ledger:   ledger,
		maxDepth: maxDepth,
		log:      logger.WithComponent("comments"),
	}
}

func cleanContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", invalid("content", "cannot be empty")
	}
	if utf8.RuneCountInString(content) > maxCommentLength {
		return "", invalid("content", fmt.Sprintf("must be at most %d characters", maxCommentLength))
	}
	return content, nil
}

// Create adds a comment to a post, optionally as a reply.
func (t *CommentTree) Create(ctx context.Context, actorID, postID uint, content string, parentID *uint) (*models.Comment, error) {
	if actorID == 0 {
		return nil, ErrUnauthenticated
	}
	content, err := cleanContent(content)
	if err != nil {
		return nil, err
	}
	if _, err := t.store.Posts().Get(ctx, postID); err != nil {
		return nil, notFound(err, fmt.Errorf("post %d: %w", postID, ErrNotFound))
	}

	depth := 0
	if parentID != nil && *parentID == 0 {
		parentID = nil
	}
	if parentID != nil {
		parent, err := t.store.Comments().Get(ctx, *parentID)
		if err != nil {
			return nil, notFound(err, ErrParentNotFound)
		}
		if parent.PostID != postID {
			return nil, invalid("parentCommentId", "belongs to a different post")
		}
		depth = parent.Depth + 1
		if depth >= t.maxDepth {
			return nil, ErrMaxDepthExceeded
		}
	}

	c := &models.Comment{
		PostID:          postID,
		UserID:          actorID,
		ParentCommentID: parentID,
		Depth:           depth,
		Content:         content,
	}
	if err := t.store.Comments().Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	return c, nil
}

func (t *CommentTree) owned(ctx context.Context, actorID, commentID uint) (*models.Comment, error) {
	if actorID == 0 {
		return nil, ErrUnauthenticated
	}
	c, err := t.store.Comments().Get(ctx, commentID)
	if err != nil {
		return nil, notFound(err, fmt.Errorf("comment %d: %w", commentID, ErrNotFound))
	}
	if c.UserID != actorID {
		return nil, ErrUnauthorized
	}
	return c, nil
}

func (t *CommentTree) Edit(ctx context.Context, actorID, commentID uint, content string) (*models.Comment, error) {
	c, err := t.owned(ctx, actorID, commentID)
	if err != nil {
		return nil, err
	}
	content, err = cleanContent(content)
	if err != nil {
		return nil, err
	}
	if err := t.store.Comments().UpdateContent(ctx, commentID, content); err != nil {
		return nil, fmt.Errorf("update comment: %w", notFound(err, ErrNotFound))
	}
	c.Content = content
	c.UpdatedAt = time.Now().UTC()
	return c, nil
}

// Delete removes the comment and every descendant in one transaction and
// returns how many rows went away. Karma earned by the removed comments stays.
func (t *CommentTree) Delete(ctx context.Context, actorID, commentID uint) (int64, error) {
	if _, err := t.owned(ctx, actorID, commentID); err != nil {
		return 0, err
	}

	var deleted int64
	err := t.store.Transaction(ctx, func(tx repository.Store) error {
		ids, err := collectSubtree(ctx, tx.Comments(), commentID)
		if err != nil {
			return err
		}
		deleted, err = tx.Comments().DeleteMany(ctx, ids)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete comment %d: %w", commentID, err)
	}

	metrics.CommentsDeleted.Add(float64(deleted))
	t.log.Debug().Uint("comment_id", commentID).Int64("deleted", deleted).Msg("comment subtree deleted")
	return deleted, nil
}

// collectSubtree walks the replies breadth first, root included.
func collectSubtree(ctx context.Context, repo repository.CommentRepo, rootID uint) ([]uint, error) {
	ids := []uint{rootID}
	frontier := []uint{rootID}
	seen := map[uint]bool{rootID: true}
	for len(frontier) > 0 {
		next, err := repo.ChildIDs(ctx, frontier)
		if err != nil {
			return nil, err
		}
		frontier = frontier[:0]
		for _, id := range next {
			if seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
			frontier = append(frontier, id)
		}
	}
	return ids, nil
}

// ForPost returns the post's comment forest annotated for the viewer.
func (t *CommentTree) ForPost(ctx context.Context, postID, viewerID uint) ([]*CommentNode, error) {
	if _, err := t.store.Posts().Get(ctx, postID); err != nil {
		return nil, notFound(err, fmt.Errorf("post %d: %w", postID, ErrNotFound))
	}
	comments, err := t.store.Comments().ListByPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	nodes, err := t.toNodes(ctx, comments, viewerID, false)
	if err != nil {
		return nil, err
	}
	return BuildTree(nodes, t.maxDepth), nil
}

// ListForUser is the "threads" view: the user's own comments grouped among
// themselves, newest first, without a depth cap.
func (t *CommentTree) ListForUser(ctx context.Context, userID, viewerID uint) ([]*CommentNode, error) {
	comments, err := t.store.Comments().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	nodes, err := t.toNodes(ctx, comments, viewerID, true)
	if err != nil {
		return nil, err
	}
	return BuildTree(nodes, 0), nil
}

func (t *CommentTree) Newest(ctx context.Context, limit int, viewerID uint) ([]CommentNode, error) {
	if limit <= 0 {
		limit = 50
	}
	comments, err := t.store.Comments().ListNewest(ctx, limit)
	if err != nil {
		return nil, err
	}
	return t.toNodes(ctx, comments, viewerID, true)
}

// VotedByUser lists comments the user currently up- or downvotes.
func (t *CommentTree) VotedByUser(ctx context.Context, userID uint, vt models.VoteType) ([]CommentNode, error) {
	ids, err := t.store.Votes().TargetIDs(ctx, userID, models.TargetComment, vt)
	if err != nil {
		return nil, err
	}
	comments, err := t.store.Comments().ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	comments = orderByIDs(comments, ids, func(c models.Comment) uint { return c.ID })
	return t.toNodes(ctx, comments, userID, true)
}

func (t *CommentTree) toNodes(ctx context.Context, comments []models.Comment, viewerID uint, withTitles bool) ([]CommentNode, error) {
	ids := make([]uint, len(comments))
	for i, c := range comments {
		ids[i] = c.ID
	}
	counts, err := t.store.Votes().Counts(ctx, models.TargetComment, ids)
	if err != nil {
		return nil, err
	}
	states, err := t.ledger.AnnotateStates(ctx, viewerID, models.TargetComment, ids)
	if err != nil {
		return nil, err
	}

	titles := map[uint]string{}
	if withTitles && len(comments) > 0 {
		postIDs := make([]uint, 0, len(comments))
		for _, c := range comments {
			postIDs = append(postIDs, c.PostID)
		}
		posts, _, err := t.store.Posts().List(ctx, repository.PostQuery{IDs: postIDs})
		if err != nil {
			return nil, err
		}
		for _, p := range posts {
			titles[p.ID] = p.Title
		}
	}

	nodes := make([]CommentNode, len(comments))
	for i, c := range comments {
		nodes[i] = CommentNode{
			ID:              c.ID,
			PostID:          c.PostID,
			PostTitle:       titles[c.PostID],
			ParentCommentID: c.ParentCommentID,
			Depth:           c.Depth,
			Content:         c.Content,
			ContentHTML:     utils.RenderMarkdown(c.Content),
			UserID:          c.UserID,
			Username:        c.User.Username,
			CreatedAt:       c.CreatedAt,
			Upvotes:         counts[c.ID].Upvotes,
			Downvotes:       counts[c.ID].Downvotes,
			UserVote:        states[c.ID],
		}
	}
	return nodes, nil
}
