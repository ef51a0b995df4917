package utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedPage struct {
	IDs   []uint `json:"ids"`
	Total int64  `json:"total"`
}

func TestLRUCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewLRUCache(16)
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "feed:velocity:1", cachedPage{IDs: []uint{3, 1}, Total: 2}, time.Minute))
	require.NoError(t, c.Set(ctx, "detail:7", cachedPage{IDs: []uint{7}}, time.Minute))

	var got cachedPage
	hit, err := c.Get(ctx, "feed:velocity:1", &got)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, []uint{3, 1}, got.IDs)

	// a decoded value is a private copy
	got.IDs[0] = 99
	var again cachedPage
	_, err = c.Get(ctx, "feed:velocity:1", &again)
	require.NoError(t, err)
	assert.Equal(t, uint(3), again.IDs[0])

	require.NoError(t, c.Invalidate(ctx, "feed:"))
	hit, err = c.Get(ctx, "feed:velocity:1", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	hit, err = c.Get(ctx, "detail:7", &got)
	require.NoError(t, err)
	assert.True(t, hit, "other prefixes survive")
}

func TestLRUCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c, err := NewLRUCache(4)
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "k", cachedPage{Total: 1}, -time.Second))

	var got cachedPage
	hit, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}
