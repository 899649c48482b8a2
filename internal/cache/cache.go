// Package cache implements the read-path cache: JSON query results in
// redis, grouped under invalidation tags so mutations can bust every
// partition that could contain a stale copy.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// PublicTTL bounds staleness for public reads; admins need to see
	// unpublished drafts sooner, so their partition turns over faster.
	PublicTTL = 60 * time.Second
	AdminTTL  = 30 * time.Second

	// StaleWhileRevalidate extends the public Cache-Control header.
	StaleWhileRevalidate = 120 * time.Second

	// Tag sets outlive their member keys so invalidation still finds
	// them; they are refreshed on every write.
	tagTTL = 24 * time.Hour
)

const (
	TagPosts      = "posts"
	TagPostsAdmin = "posts-admin"
)

func TagPost(id string) string {
	return TagPosts + "-" + id
}

func TagMonth(month int) string {
	return fmt.Sprintf("%s-month-%d", TagPosts, month)
}

func TagAdminMonth(month int) string {
	return fmt.Sprintf("%s-month-%d", TagPostsAdmin, month)
}

func KeyPublishedMonth(month int) string {
	return fmt.Sprintf("posts:published:month:%d", month)
}

func KeyPost(id string) string {
	return "posts:id:" + id
}

func KeyAdminMonth(month int) string {
	return fmt.Sprintf("posts:admin:month:%d", month)
}

const KeyAdminAll = "posts:admin:all"

// NewRedisClient connects to redis, accepting either a URL or a bare
// address. A nil return means "run without the read-path cache": every
// TagCache operation degrades to a transparent miss.
func NewRedisClient(addr string) *redis.Client {
	if addr == "" {
		return nil
	}

	var opts *redis.Options
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			slog.Warn("invalid redis URL, continuing without cache", "error", err)
			return nil
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unreachable, continuing without cache", "error", err)
		return nil
	}
	return client
}

type TagCache struct {
	client *redis.Client
}

func New(client *redis.Client) *TagCache {
	return &TagCache{client: client}
}

// GetJSON reads key into dest. (false, nil) means miss, including when
// the cache is disabled or unreachable; misses always fall through to the
// backend.
func (c *TagCache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if c.client == nil {
		return false, nil
	}
	raw, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		slog.Warn("cache read failed", "key", key, "error", err)
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON stores v under key with ttl and registers key in every tag set.
// Best-effort: a failed store is a future miss, not an error.
func (c *TagCache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration, tags ...string) {
	if c.client == nil {
		return
	}
	body, err := json.Marshal(v)
	if err != nil {
		slog.Warn("cache serialize failed", "key", key, "error", err)
		return
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, key, body, ttl)
	for _, tag := range tags {
		pipe.SAdd(ctx, tagKey(tag), key)
		pipe.Expire(ctx, tagKey(tag), tagTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("cache write failed", "key", key, "error", err)
	}
}

// InvalidateTags deletes every key registered under each tag, then the
// tag sets themselves. Mutating callers invoke this synchronously before
// acknowledging the write.
func (c *TagCache) InvalidateTags(ctx context.Context, tags ...string) {
	if c.client == nil {
		return
	}
	for _, tag := range tags {
		keys, err := c.client.SMembers(ctx, tagKey(tag)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			slog.Warn("cache invalidation read failed", "tag", tag, "error", err)
			continue
		}
		keys = append(keys, tagKey(tag))
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			slog.Warn("cache invalidation failed", "tag", tag, "error", err)
		}
	}
}

func tagKey(tag string) string {
	return "tag:" + tag
}
