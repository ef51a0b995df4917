package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// FeedCache stores the viewer-independent part of feed pages. Values are kept
// JSON-encoded so callers always decode a private copy they can annotate.
type FeedCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Invalidate drops every key starting with prefix.
	Invalidate(ctx context.Context, prefix string) error
}

// CacheItem 包装缓存数据和过期时间
type CacheItem struct {
	Data      []byte
	ExpiresAt time.Time
}

// LRUCache is the in-process FeedCache.
type LRUCache struct {
	lruCache *lru.Cache[string, CacheItem]
}

func NewLRUCache(size int) (*LRUCache, error) {
	l, err := lru.New[string, CacheItem](size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &LRUCache{lruCache: l}, nil
}

func (c *LRUCache) Get(_ context.Context, key string, dest any) (bool, error) {
	val, ok := c.lruCache.Get(key)
	if !ok {
		return false, nil
	}

	// 检查过期
	if time.Now().After(val.ExpiresAt) {
		c.lruCache.Remove(key)
		return false, nil
	}
	return true, json.Unmarshal(val.Data, dest)
}

func (c *LRUCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.lruCache.Add(key, CacheItem{
		Data:      b,
		ExpiresAt: time.Now().Add(ttl),
	})
	return nil
}

func (c *LRUCache) Invalidate(_ context.Context, prefix string) error {
	for _, key := range c.lruCache.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lruCache.Remove(key)
		}
	}
	return nil
}

// RedisCache shares feed pages between replicas.
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache connects to redisURL and fails if the server is unreachable.
func NewRedisCache(ctx context.Context, redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: connection failed: %w", err)
	}
	return &RedisCache{rdb: rdb}, nil
}

func NewRedisCacheFromClient(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(data, dest)
}

func (c *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, b, ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, prefix string) error {
	iter := c.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
