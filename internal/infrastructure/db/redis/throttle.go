package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Throttle is a fixed-window request counter shared by every instance of the service.
// Key format: <prefix>:<key>
type Throttle struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

// NewThrottle allows limit requests per key within each window.
func NewThrottle(client *redis.Client, prefix string, limit int, window time.Duration) *Throttle {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &Throttle{client: client, prefix: prefix, limit: int64(limit), window: window}
}

// Allow counts one request against key. When Redis is unavailable the request
// is allowed and the error is returned so the caller can log it.
func (t *Throttle) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	redisKey := t.key(key)

	pipe := t.client.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, 0, fmt.Errorf("throttle: %w", err)
	}

	remaining := ttl.Val()
	// A key without expiry was just created by INCR; open its window.
	if remaining < 0 {
		if err := t.client.Expire(ctx, redisKey, t.window).Err(); err != nil {
			return true, 0, fmt.Errorf("throttle expire: %w", err)
		}
		remaining = t.window
	}

	if incr.Val() > t.limit {
		return false, remaining, nil
	}
	return true, 0, nil
}

// Reset clears the counter for key.
func (t *Throttle) Reset(ctx context.Context, key string) error {
	return t.client.Del(ctx, t.key(key)).Err()
}

func (t *Throttle) key(key string) string {
	return fmt.Sprintf("%s:%s", t.prefix, key)
}
