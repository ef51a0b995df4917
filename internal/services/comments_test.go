package services

import (
	"context"
	"testing"

	"devnewz/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uintPtr(v uint) *uint { return &v }

func ids(nodes []*CommentNode) []uint {
	out := make([]uint, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

func TestBuildTreeOrphansBecomeRoots(t *testing.T) {
	flat := []CommentNode{
		{ID: 1},
		{ID: 2, ParentCommentID: uintPtr(1)},
		{ID: 3, ParentCommentID: uintPtr(99)},
	}

	roots := BuildTree(flat, DefaultMaxCommentDepth)

	require.Len(t, roots, 2)
	assert.Equal(t, []uint{1, 3}, ids(roots))
	assert.Equal(t, []uint{2}, ids(roots[0].Children))
	assert.Empty(t, roots[1].Children)
}

func TestBuildTreeKeepsInputOrder(t *testing.T) {
	flat := []CommentNode{
		{ID: 10},
		{ID: 12, ParentCommentID: uintPtr(10)},
		{ID: 11, ParentCommentID: uintPtr(10)},
		{ID: 13, ParentCommentID: uintPtr(10)},
	}

	roots := BuildTree(flat, 0)

	assert.Equal(t, []uint{12, 11, 13}, ids(roots[0].Children))
}

func TestBuildTreeTruncatesDisplayDepth(t *testing.T) {
	var flat []CommentNode
	for i := uint(1); i <= 7; i++ {
		n := CommentNode{ID: i}
		if i > 1 {
			n.ParentCommentID = uintPtr(i - 1)
		}
		flat = append(flat, n)
	}

	levels := func(roots []*CommentNode) int {
		depth := 0
		for cur := roots; len(cur) > 0; cur = cur[0].Children {
			depth++
		}
		return depth
	}

	assert.Equal(t, 5, levels(BuildTree(flat, 5)))
	assert.Equal(t, 7, levels(BuildTree(flat, 0)))
}

func newTree(t *testing.T) (*fixture, *CommentTree) {
	f := newFixture(t)
	ledger := NewVoteLedger(f.store, f.karma, LedgerOptions{})
	return f, NewCommentTree(f.store, ledger, DefaultMaxCommentDepth)
}

// chain creates a reply chain below parent until the newest comment has depth.
func chain(t *testing.T, tree *CommentTree, f *fixture, parent *models.Comment, depth int) *models.Comment {
	t.Helper()
	cur := parent
	for cur.Depth < depth {
		next, err := tree.Create(context.Background(), f.voter.ID, f.post.ID, "reply", &cur.ID)
		require.NoError(t, err)
		cur = next
	}
	return cur
}

func TestCreateDepthLimit(t *testing.T) {
	ctx := context.Background()
	f, tree := newTree(t)

	atThree := chain(t, tree, f, f.comment, 3)
	require.Equal(t, 3, atThree.Depth)

	atFour, err := tree.Create(ctx, f.voter.ID, f.post.ID, "deepest allowed", &atThree.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, atFour.Depth)

	_, err = tree.Create(ctx, f.voter.ID, f.post.ID, "too deep", &atFour.ID)
	assert.ErrorIs(t, err, ErrMaxDepthExceeded)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	f, tree := newTree(t)

	_, err := tree.Create(ctx, f.voter.ID, f.post.ID, "   ", nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = tree.Create(ctx, f.voter.ID, f.post.ID, "hello", uintPtr(404))
	assert.ErrorIs(t, err, ErrParentNotFound)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = tree.Create(ctx, f.voter.ID, 404, "hello", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = tree.Create(ctx, 0, f.post.ID, "hello", nil)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	link := "https://example.com/other"
	other := &models.Post{UserID: f.owner.ID, Title: "Some other story", URL: &link}
	require.NoError(t, f.store.Posts().Create(ctx, other))
	_, err = tree.Create(ctx, f.voter.ID, other.ID, "cross post reply", &f.comment.ID)
	assert.ErrorIs(t, err, ErrValidation)

	root, err := tree.Create(ctx, f.voter.ID, f.post.ID, "  trimmed  ", nil)
	require.NoError(t, err)
	assert.Equal(t, "trimmed", root.Content)
	assert.Equal(t, 0, root.Depth)
}

func TestEditOwnership(t *testing.T) {
	ctx := context.Background()
	f, tree := newTree(t)

	_, err := tree.Edit(ctx, f.voter.ID, f.comment.ID, "hijack")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = tree.Edit(ctx, f.owner.ID, 404, "nothing")
	assert.ErrorIs(t, err, ErrNotFound)

	edited, err := tree.Edit(ctx, f.owner.ID, f.comment.ID, "edited")
	require.NoError(t, err)
	assert.Equal(t, "edited", edited.Content)

	stored, err := f.store.Comments().Get(ctx, f.comment.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited", stored.Content)
}

func TestDeleteCascades(t *testing.T) {
	ctx := context.Background()
	f, tree := newTree(t)

	child, err := tree.Create(ctx, f.owner.ID, f.post.ID, "child", &f.comment.ID)
	require.NoError(t, err)
	grandchild, err := tree.Create(ctx, f.voter.ID, f.post.ID, "grandchild", &child.ID)
	require.NoError(t, err)
	sibling, err := tree.Create(ctx, f.voter.ID, f.post.ID, "unrelated root", nil)
	require.NoError(t, err)

	_, err = tree.Delete(ctx, f.voter.ID, f.comment.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	n, err := tree.Delete(ctx, f.owner.ID, f.comment.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	forest, err := tree.ForPost(ctx, f.post.ID, 0)
	require.NoError(t, err)
	remaining := ids(forest)
	assert.Equal(t, []uint{sibling.ID}, remaining)
	for _, gone := range []uint{f.comment.ID, child.ID, grandchild.ID} {
		assert.NotContains(t, remaining, gone)
	}

	_, err = tree.Delete(ctx, f.owner.ID, f.comment.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestForPostAnnotatesViewer(t *testing.T) {
	ctx := context.Background()
	f, tree := newTree(t)

	reply, err := tree.Create(ctx, f.voter.ID, f.post.ID, "a **reply**", &f.comment.ID)
	require.NoError(t, err)
	_, err = tree.ledger.CastVote(ctx, f.voter.ID, Target{Kind: models.TargetComment, ID: f.comment.ID}, models.VoteUp)
	require.NoError(t, err)

	forest, err := tree.ForPost(ctx, f.post.ID, f.voter.ID)
	require.NoError(t, err)
	require.Len(t, forest, 1)

	root := forest[0]
	assert.Equal(t, StateUpvoted, root.UserVote)
	assert.Equal(t, 1, root.Upvotes)
	assert.Equal(t, "owner", root.Username)
	require.Len(t, root.Children, 1)
	assert.Equal(t, reply.ID, root.Children[0].ID)
	assert.Contains(t, root.Children[0].ContentHTML, "<strong>reply</strong>")
	assert.Equal(t, StateNone, root.Children[0].UserVote)

	_, err = tree.ForPost(ctx, 404, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListForUserGroupsOwnComments(t *testing.T) {
	ctx := context.Background()
	f, tree := newTree(t)

	mine, err := tree.Create(ctx, f.voter.ID, f.post.ID, "reply to owner", &f.comment.ID)
	require.NoError(t, err)
	nested, err := tree.Create(ctx, f.voter.ID, f.post.ID, "reply to myself", &mine.ID)
	require.NoError(t, err)

	forest, err := tree.ListForUser(ctx, f.voter.ID, f.voter.ID)
	require.NoError(t, err)

	require.Len(t, forest, 1, "the parent comment is not the user's, so the reply becomes a root")
	assert.Equal(t, mine.ID, forest[0].ID)
	assert.Equal(t, []uint{nested.ID}, ids(forest[0].Children))
	assert.Equal(t, f.post.Title, forest[0].PostTitle)
}

func TestVotedByUser(t *testing.T) {
	ctx := context.Background()
	f, tree := newTree(t)

	_, err := tree.ledger.CastVote(ctx, f.voter.ID, Target{Kind: models.TargetComment, ID: f.comment.ID}, models.VoteUp)
	require.NoError(t, err)

	up, err := tree.VotedByUser(ctx, f.voter.ID, models.VoteUp)
	require.NoError(t, err)
	require.Len(t, up, 1)
	assert.Equal(t, f.comment.ID, up[0].ID)
	assert.Equal(t, StateUpvoted, up[0].UserVote)

	down, err := tree.VotedByUser(ctx, f.voter.ID, models.VoteDown)
	require.NoError(t, err)
	assert.Empty(t, down)
}

func TestVotedByUserCommentsNewestVoteFirst(t *testing.T) {
	ctx := context.Background()
	f, tree := newTree(t)

	comments := []*models.Comment{f.comment}
	for _, body := range []string{"second", "third"} {
		c := &models.Comment{PostID: f.post.ID, UserID: f.owner.ID, Content: body}
		require.NoError(t, f.store.Comments().Create(ctx, c))
		comments = append(comments, c)
	}

	for _, i := range []int{1, 2, 0} {
		_, err := tree.ledger.CastVote(ctx, f.voter.ID, Target{Kind: models.TargetComment, ID: comments[i].ID}, models.VoteUp)
		require.NoError(t, err)
	}

	up, err := tree.VotedByUser(ctx, f.voter.ID, models.VoteUp)
	require.NoError(t, err)
	got := make([]uint, 0, len(up))
	for _, n := range up {
		got = append(got, n.ID)
	}
	assert.Equal(t, []uint{comments[0].ID, comments[2].ID, comments[1].ID}, got)
}
