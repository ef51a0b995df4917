package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.FeedPageSize)
	assert.Equal(t, 500, cfg.DownvoteKarma)
	assert.Equal(t, 5, cfg.MaxCommentDepth)
	assert.Equal(t, KarmaPolicyBestEffort, cfg.KarmaPolicy)
	assert.False(t, cfg.ChargeVoter)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "devnewz.yaml")
	require.NoError(t, os.WriteFile(path, []byte("feed_page_size: 10\nkarma_policy: atomic\nfeed_cache_ttl: 30s\n"), 0o600))

	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("FEED_PAGE_SIZE", "20")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.FeedPageSize, "env overrides file")
	assert.Equal(t, KarmaPolicyAtomic, cfg.KarmaPolicy)
	assert.Equal(t, 30*time.Second, cfg.FeedCacheTTL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"unknown driver", func(c *Config) { c.StoreDriver = "sqlite" }, true},
		{"unknown policy", func(c *Config) { c.KarmaPolicy = "eventually" }, true},
		{"zero page size", func(c *Config) { c.FeedPageSize = 0 }, true},
		{"zero depth", func(c *Config) { c.MaxCommentDepth = 0 }, true},
		{"production needs secret", func(c *Config) { c.Environment = "production" }, true},
		{"production with secret", func(c *Config) { c.Environment = "production"; c.JWTSecret = "s" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
