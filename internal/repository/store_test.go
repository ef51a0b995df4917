package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"devnewz/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises the behaviour every Store implementation must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	seed := func(t *testing.T, s Store) (*models.User, *models.Post) {
		u := &models.User{Username: "alice"}
		require.NoError(t, s.Users().Create(ctx, u))
		text := "a long enough body for a text post, really"
		p := &models.Post{UserID: u.ID, Title: "Ask: what is going on", Content: &text, Type: models.PostTypeAsk}
		require.NoError(t, s.Posts().Create(ctx, p))
		return u, p
	}

	t.Run("AddKarmaIsIncrementalAndLogged", func(t *testing.T) {
		s := newStore(t)
		u, _ := seed(t, s)

		require.NoError(t, s.Users().AddKarma(ctx, u.ID, 2, "post upvoted"))
		require.NoError(t, s.Users().AddKarma(ctx, u.ID, -1, "comment downvoted"))

		got, err := s.Users().Get(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Karma)

		logs, err := s.Users().KarmaLogs(ctx, u.ID, 10)
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, -1, logs[0].Amount, "newest first")

		assert.ErrorIs(t, s.Users().AddKarma(ctx, 9999, 1, "x"), ErrNotFound)

		byName, err := s.Users().GetByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, u.ID, byName.ID)
		_, err = s.Users().GetByUsername(ctx, "nobody")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("VoteCompareAndSet", func(t *testing.T) {
		s := newStore(t)
		u, p := seed(t, s)
		votes := s.Votes()

		ok, err := votes.CompareAndSet(ctx, u.ID, models.TargetPost, p.ID, "", models.VoteUp)
		require.NoError(t, err)
		assert.True(t, ok)

		// a second insert loses the race instead of creating a duplicate row
		ok, err = votes.CompareAndSet(ctx, u.ID, models.TargetPost, p.ID, "", models.VoteUp)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = votes.CompareAndSet(ctx, u.ID, models.TargetPost, p.ID, models.VoteUp, models.VoteDown)
		require.NoError(t, err)
		assert.True(t, ok)

		state, err := votes.Get(ctx, u.ID, models.TargetPost, p.ID)
		require.NoError(t, err)
		assert.Equal(t, models.VoteDown, state)

		counts, err := votes.Counts(ctx, models.TargetPost, []uint{p.ID})
		require.NoError(t, err)
		assert.Equal(t, models.VoteCount{Upvotes: 0, Downvotes: 1}, counts[p.ID])

		ok, err = votes.CompareAndSet(ctx, u.ID, models.TargetPost, p.ID, models.VoteUp, "")
		require.NoError(t, err)
		assert.False(t, ok, "stale from state")

		ok, err = votes.CompareAndSet(ctx, u.ID, models.TargetPost, p.ID, models.VoteDown, "")
		require.NoError(t, err)
		assert.True(t, ok)

		state, err = votes.Get(ctx, u.ID, models.TargetPost, p.ID)
		require.NoError(t, err)
		assert.Equal(t, models.VoteType(""), state)

		ids, err := votes.TargetIDs(ctx, u.ID, models.TargetPost, models.VoteDown)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("DeleteManyRemovesVotes", func(t *testing.T) {
		s := newStore(t)
		u, p := seed(t, s)

		root := &models.Comment{PostID: p.ID, UserID: u.ID, Content: "root"}
		require.NoError(t, s.Comments().Create(ctx, root))
		child := &models.Comment{PostID: p.ID, UserID: u.ID, Content: "child", ParentCommentID: &root.ID, Depth: 1}
		require.NoError(t, s.Comments().Create(ctx, child))
		ok, err := s.Votes().CompareAndSet(ctx, u.ID, models.TargetComment, child.ID, "", models.VoteUp)
		require.NoError(t, err)
		require.True(t, ok)

		ids, err := s.Comments().ChildIDs(ctx, []uint{root.ID})
		require.NoError(t, err)
		assert.Equal(t, []uint{child.ID}, ids)

		n, err := s.Comments().DeleteMany(ctx, []uint{child.ID, root.ID})
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		left, err := s.Comments().ListByPost(ctx, p.ID)
		require.NoError(t, err)
		assert.Empty(t, left)

		counts, err := s.Votes().Counts(ctx, models.TargetComment, []uint{child.ID})
		require.NoError(t, err)
		assert.Empty(t, counts)
	})

	t.Run("ListPaginatesByRecency", func(t *testing.T) {
		s := newStore(t)
		u, first := seed(t, s)
		link := "https://example.com/a"
		second := &models.Post{UserID: u.ID, Title: "A second post title", URL: &link, CreatedAt: first.CreatedAt.Add(time.Minute)}
		require.NoError(t, s.Posts().Create(ctx, second))

		page, total, err := s.Posts().List(ctx, PostQuery{Page: 1, PageSize: 1})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		require.Len(t, page, 1)
		assert.Equal(t, second.ID, page[0].ID)
		assert.Equal(t, "alice", page[0].User.Username)

		asks, total, err := s.Posts().List(ctx, PostQuery{Type: models.PostTypeAsk})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		assert.Equal(t, first.ID, asks[0].ID)

		none, total, err := s.Posts().List(ctx, PostQuery{IDs: []uint{}})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, none)
	})

	t.Run("TransactionRollsBack", func(t *testing.T) {
		s := newStore(t)
		u, _ := seed(t, s)
		boom := errors.New("boom")

		err := s.Transaction(ctx, func(tx Store) error {
			if err := tx.Users().AddKarma(ctx, u.ID, 10, "test"); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := s.Users().Get(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.Karma)
	})

	t.Run("PostDeleteCascades", func(t *testing.T) {
		s := newStore(t)
		u, p := seed(t, s)
		c := &models.Comment{PostID: p.ID, UserID: u.ID, Content: "hi"}
		require.NoError(t, s.Comments().Create(ctx, c))
		_, err := s.Votes().CompareAndSet(ctx, u.ID, models.TargetPost, p.ID, "", models.VoteUp)
		require.NoError(t, err)

		require.NoError(t, s.Posts().Delete(ctx, p.ID))

		_, err = s.Posts().Get(ctx, p.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.Comments().Get(ctx, c.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.Posts().Delete(ctx, p.ID), ErrNotFound)
	})

	t.Run("StoredRowsAreDetachedFromCaller", func(t *testing.T) {
		s := newStore(t)
		u, p := seed(t, s)

		root := &models.Comment{PostID: p.ID, UserID: u.ID, Content: "root"}
		require.NoError(t, s.Comments().Create(ctx, root))

		// one parent variable reused for a whole reply chain
		parent := root.ID
		var chain []uint
		for i := 0; i < 3; i++ {
			reply := &models.Comment{PostID: p.ID, UserID: u.ID, Content: "reply", ParentCommentID: &parent, Depth: i + 1}
			require.NoError(t, s.Comments().Create(ctx, reply))
			chain = append(chain, reply.ID)
			parent = reply.ID
		}
		parent = 777

		want := root.ID
		for _, id := range chain {
			c, err := s.Comments().Get(ctx, id)
			require.NoError(t, err)
			require.NotNil(t, c.ParentCommentID)
			assert.Equal(t, want, *c.ParentCommentID)
			want = id
		}

		got, err := s.Comments().Get(ctx, chain[0])
		require.NoError(t, err)
		*got.ParentCommentID = 999
		again, err := s.Comments().Get(ctx, chain[0])
		require.NoError(t, err)
		assert.Equal(t, root.ID, *again.ParentCommentID)

		*p.Content = "changed by the caller after create"
		stored, err := s.Posts().Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "a long enough body for a text post, really", *stored.Content)

		edited := "edited body that is long enough for a post"
		stored.Content = &edited
		require.NoError(t, s.Posts().Update(ctx, stored))
		edited = "mutated after update"
		stored, err = s.Posts().Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "edited body that is long enough for a post", *stored.Content)

		page, _, err := s.Posts().List(ctx, PostQuery{})
		require.NoError(t, err)
		require.Len(t, page, 1)
		*page[0].Content = "mutated through a list row"
		stored, err = s.Posts().Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "edited body that is long enough for a post", *stored.Content)
	})

	t.Run("ConcurrentInsertHasOneWinner", func(t *testing.T) {
		s := newStore(t)
		u, p := seed(t, s)

		const racers = 8
		var (
			wg   sync.WaitGroup
			wins atomic.Int32
		)
		errs := make(chan error, racers)
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.Votes().CompareAndSet(ctx, u.ID, models.TargetPost, p.ID, "", models.VoteUp)
				if err != nil {
					errs <- err
					return
				}
				if ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		assert.EqualValues(t, 1, wins.Load())
		counts, err := s.Votes().Counts(ctx, models.TargetPost, []uint{p.ID})
		require.NoError(t, err)
		assert.Equal(t, models.VoteCount{Upvotes: 1}, counts[p.ID])
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}
