package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"devnewz/internal/models"
	"devnewz/internal/repository"
	"devnewz/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rankNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type rankingFixture struct {
	store  *repository.MemoryStore
	ledger *VoteLedger
	author *models.User
	voters []*models.User
}

func newRankingFixture(t *testing.T, voters int) *rankingFixture {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()
	f := &rankingFixture{store: store}

	f.author = &models.User{Username: "author"}
	require.NoError(t, store.Users().Create(ctx, f.author))
	for i := 0; i < voters; i++ {
		u := &models.User{Username: fmt.Sprintf("voter%d", i)}
		require.NoError(t, store.Users().Create(ctx, u))
		f.voters = append(f.voters, u)
	}
	f.ledger = NewVoteLedger(store, NewKarmaAccount(store, DefaultDownvoteKarma), LedgerOptions{})
	return f
}

func (f *rankingFixture) post(t *testing.T, title string, age time.Duration, up, down int) *models.Post {
	t.Helper()
	ctx := context.Background()
	link := "https://example.com/" + title
	p := &models.Post{UserID: f.author.ID, Title: title, URL: &link, CreatedAt: rankNow.Add(-age)}
	require.NoError(t, f.store.Posts().Create(ctx, p))

	for i := 0; i < up+down; i++ {
		vt := models.VoteUp
		if i >= up {
			vt = models.VoteDown
		}
		ok, err := f.store.Votes().CompareAndSet(ctx, f.voters[i].ID, models.TargetPost, p.ID, "", vt)
		require.NoError(t, err)
		require.True(t, ok)
	}
	return p
}

func titles(items []FeedItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Title)
	}
	return out
}

func newEngine(f *rankingFixture, cache utils.FeedCache, pageSize int) *RankingEngine {
	e := NewRankingEngine(f.store, f.ledger, cache, RankingOptions{PageSize: pageSize, CacheTTL: time.Minute})
	e.now = func() time.Time { return rankNow }
	return e
}

func TestFeedSortsPageByVelocity(t *testing.T) {
	ctx := context.Background()
	f := newRankingFixture(t, 5)
	f.post(t, "Q", 10*time.Hour, 5, 0)
	f.post(t, "P", time.Hour, 3, 1)
	f.post(t, "fresh", 30*time.Minute, 0, 0)

	engine := newEngine(f, nil, 30)
	page, err := engine.Feed(ctx, 1, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"P", "Q", "fresh"}, titles(page.Items))
	assert.InDelta(t, 0.667, page.Items[0].Velocity, 0.001)
	assert.InDelta(t, 0.417, page.Items[1].Velocity, 0.001)
	assert.Equal(t, "author", page.Items[0].Username)
	assert.Equal(t, "example.com", page.Items[0].Domain)

	again, err := engine.Feed(ctx, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, titles(page.Items), titles(again.Items))
}

func TestFeedRanksOnlyWithinPage(t *testing.T) {
	ctx := context.Background()
	f := newRankingFixture(t, 5)
	f.post(t, "old-hot", 5*time.Hour, 5, 0)
	f.post(t, "mid", 2*time.Hour, 0, 0)
	f.post(t, "new", time.Hour, 1, 0)

	engine := newEngine(f, nil, 2)

	first, err := engine.Feed(ctx, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "mid"}, titles(first.Items))
	assert.Equal(t, Pagination{CurrentPage: 1, TotalPages: 2, TotalNews: 3, PageSize: 2}, first.Pagination)

	second, err := engine.Feed(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"old-hot"}, titles(second.Items))
}

func TestFeedCacheKeepsViewerStateOut(t *testing.T) {
	ctx := context.Background()
	f := newRankingFixture(t, 1)
	p := f.post(t, "story", time.Hour, 0, 0)

	cache, err := utils.NewLRUCache(16)
	require.NoError(t, err)
	engine := newEngine(f, cache, 30)

	_, err = f.ledger.CastVote(ctx, f.voters[0].ID, Target{Kind: models.TargetPost, ID: p.ID}, models.VoteUp)
	require.NoError(t, err)

	mine, err := engine.Feed(ctx, 1, f.voters[0].ID)
	require.NoError(t, err)
	assert.Equal(t, StateUpvoted, mine.Items[0].UserVote)

	anon, err := engine.Feed(ctx, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, StateNone, anon.Items[0].UserVote)
	assert.Equal(t, 1, anon.Items[0].Upvotes)
}

func TestPostVotedInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	f := newRankingFixture(t, 1)
	p := f.post(t, "story", time.Hour, 0, 0)

	cache, err := utils.NewLRUCache(16)
	require.NoError(t, err)
	engine := newEngine(f, cache, 30)
	f.ledger.SetPostVoteListener(engine)

	before, err := engine.Feed(ctx, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, before.Items[0].Upvotes)

	_, err = f.ledger.CastVote(ctx, f.voters[0].ID, Target{Kind: models.TargetPost, ID: p.ID}, models.VoteUp)
	require.NoError(t, err)

	after, err := engine.Feed(ctx, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, after.Items[0].Upvotes)
}

func TestTopUsesStoredVelocity(t *testing.T) {
	ctx := context.Background()
	f := newRankingFixture(t, 5)
	f.post(t, "old-hot", 5*time.Hour, 5, 0)
	f.post(t, "mid", 2*time.Hour, 0, 0)
	f.post(t, "new", time.Hour, 1, 0)

	engine := newEngine(f, nil, 2)
	worker := NewRerankWorker(f.store, 0)
	worker.now = func() time.Time { return rankNow }
	engine.SetWorker(worker)

	n, err := worker.RefreshAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	top, err := engine.Top(ctx, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"old-hot", "new"}, titles(top.Items))
}

func TestRerankWorkerProcessesQueue(t *testing.T) {
	f := newRankingFixture(t, 1)
	p := f.post(t, "story", time.Hour, 1, 0)

	worker := NewRerankWorker(f.store, 0)
	worker.flushEvery = 10 * time.Millisecond
	flushed := make(chan struct{}, 8)
	worker.afterBatch = func(context.Context) { flushed <- struct{}{} }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	worker.Schedule(p.ID)
	worker.Schedule(p.ID)

	select {
	case <-flushed:
	case <-time.After(2 * time.Second):
		t.Fatal("rerank batch never flushed")
	}

	stored, err := f.store.Posts().Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Greater(t, stored.Velocity, 0.0)
}
