package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	KarmaPolicyBestEffort = "best_effort"
	KarmaPolicyAtomic     = "atomic"
)

type Config struct {
	Port          string `yaml:"port"`
	DatabaseURL   string `yaml:"database_url"`
	StoreDriver   string `yaml:"store_driver"`
	RedisURL      string `yaml:"redis_url"`
	JWTSecret     string `yaml:"jwt_secret"`
	SessionSecret string `yaml:"session_secret"`
	LogLevel      string `yaml:"log_level"`
	LogJSON       bool   `yaml:"log_json"`
	Environment   string `yaml:"environment"`
	CORSOrigins   string `yaml:"cors_origins"`
	SiteName      string `yaml:"site_name"`
	SiteURL       string `yaml:"site_url"`

	FeedPageSize   int           `yaml:"feed_page_size"`
	FeedCacheTTL   time.Duration `yaml:"feed_cache_ttl"`
	NewestLimit    int           `yaml:"newest_limit"`
	RerankInterval time.Duration `yaml:"rerank_interval"`

	DownvoteKarma   int    `yaml:"downvote_karma"`
	MaxCommentDepth int    `yaml:"max_comment_depth"`
	KarmaPolicy     string `yaml:"karma_policy"`
	ChargeVoter     bool   `yaml:"charge_voter"`

	VoteRatePerSecond float64 `yaml:"vote_rate_per_second"`
	VoteBurst         int     `yaml:"vote_burst"`
}

// Defaults mirrors the behaviour of the reference deployment.
func Defaults() *Config {
	return &Config{
		Port:              "8080",
		DatabaseURL:       "host=localhost user=postgres password=postgres dbname=devnewz port=5432 sslmode=disable TimeZone=UTC",
		StoreDriver:       StoreDriverPostgres,
		LogLevel:          "info",
		Environment:       "development",
		CORSOrigins:       "*",
		SiteName:          "DevNewz",
		SiteURL:           "http://localhost:8080",
		FeedPageSize:      30,
		FeedCacheTTL:      time.Minute,
		NewestLimit:       50,
		RerankInterval:    10 * time.Minute,
		DownvoteKarma:     500,
		MaxCommentDepth:   5,
		KarmaPolicy:       KarmaPolicyBestEffort,
		VoteRatePerSecond: 5,
		VoteBurst:         10,
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order. A missing .env file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()

	if path == "" {
		path = os.Getenv("DEVNEWZ_CONFIG")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.StoreDriver = getEnv("STORE_DRIVER", c.StoreDriver)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.SessionSecret = getEnv("SESSION_SECRET", c.SessionSecret)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogJSON = getEnvBool("LOG_JSON", c.LogJSON)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.CORSOrigins = getEnv("CORS_ORIGINS", c.CORSOrigins)
	c.SiteName = getEnv("SITE_NAME", c.SiteName)
	c.SiteURL = strings.TrimRight(getEnv("SITE_URL", c.SiteURL), "/")

	c.FeedPageSize = getEnvInt("FEED_PAGE_SIZE", c.FeedPageSize)
	c.FeedCacheTTL = getEnvDuration("FEED_CACHE_TTL", c.FeedCacheTTL)
	c.NewestLimit = getEnvInt("NEWEST_LIMIT", c.NewestLimit)
	c.RerankInterval = getEnvDuration("RERANK_INTERVAL", c.RerankInterval)

	c.DownvoteKarma = getEnvInt("DOWNVOTE_KARMA", c.DownvoteKarma)
	c.MaxCommentDepth = getEnvInt("MAX_COMMENT_DEPTH", c.MaxCommentDepth)
	c.KarmaPolicy = getEnv("KARMA_POLICY", c.KarmaPolicy)
	c.ChargeVoter = getEnvBool("CHARGE_VOTER", c.ChargeVoter)

	c.VoteRatePerSecond = getEnvFloat("VOTE_RATE_PER_SECOND", c.VoteRatePerSecond)
	c.VoteBurst = getEnvInt("VOTE_BURST", c.VoteBurst)
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	switch c.KarmaPolicy {
	case KarmaPolicyBestEffort, KarmaPolicyAtomic:
	default:
		return fmt.Errorf("unknown karma policy %q", c.KarmaPolicy)
	}
	if c.FeedPageSize <= 0 {
		return fmt.Errorf("feed page size must be positive, got %d", c.FeedPageSize)
	}
	if c.MaxCommentDepth <= 0 {
		return fmt.Errorf("max comment depth must be positive, got %d", c.MaxCommentDepth)
	}
	if c.JWTSecret == "" && !c.IsDevelopment() {
		return fmt.Errorf("JWT_SECRET is required outside development")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
