package services

import (
	"context"
	"errors"
	"testing"

	"devnewz/internal/models"
	"devnewz/internal/repository"

	"github.com/stretchr/testify/require"
)

type fixture struct {
	store   *repository.MemoryStore
	karma   *KarmaAccount
	owner   *models.User
	voter   *models.User
	post    *models.Post
	comment *models.Comment
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()

	owner := &models.User{Username: "owner"}
	voter := &models.User{Username: "voter"}
	require.NoError(t, store.Users().Create(ctx, owner))
	require.NoError(t, store.Users().Create(ctx, voter))

	link := "https://example.com/story"
	post := &models.Post{UserID: owner.ID, Title: "An interesting story", URL: &link}
	require.NoError(t, store.Posts().Create(ctx, post))

	comment := &models.Comment{PostID: post.ID, UserID: owner.ID, Content: "first"}
	require.NoError(t, store.Comments().Create(ctx, comment))

	return &fixture{
		store:   store,
		karma:   NewKarmaAccount(store, DefaultDownvoteKarma),
		owner:   owner,
		voter:   voter,
		post:    post,
		comment: comment,
	}
}

func (f *fixture) karmaOf(t *testing.T, id uint) int {
	t.Helper()
	k, err := f.karma.Karma(context.Background(), id)
	require.NoError(t, err)
	return k
}

func (f *fixture) grant(t *testing.T, id uint, amount int) {
	t.Helper()
	require.NoError(t, f.store.Users().AddKarma(context.Background(), id, amount, "seed"))
}

// brokenKarmaStore fails every karma increment, inside or outside a transaction.
type brokenKarmaStore struct {
	repository.Store
}

var errKarmaDown = errors.New("karma table unavailable")

type brokenUsers struct {
	repository.UserRepo
}

func (brokenUsers) AddKarma(context.Context, uint, int, string) error { return errKarmaDown }

func (s brokenKarmaStore) Users() repository.UserRepo {
	return brokenUsers{s.Store.Users()}
}

func (s brokenKarmaStore) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.Store.Transaction(ctx, func(tx repository.Store) error {
		return fn(brokenKarmaStore{tx})
	})
}
