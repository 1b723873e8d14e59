package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter enforces one allowed call per key per window using SET NX with
// an expiry. Phase handlers use it to keep retrying callers from firing
// duplicate enrichment requests for the same flow.
type RateLimiter struct {
	client *redis.Client
	window time.Duration
}

func NewRateLimiter(client *redis.Client, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, window: window}
}

// Allow reports whether the key may fire. The first caller in a window wins;
// everyone else is refused until the key expires.
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	ok, err := l.client.SetNX(ctx, "flow:ratelimit:"+key, 1, l.window).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}
