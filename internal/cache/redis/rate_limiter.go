package redis

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/livebid/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

// RateLimiter implements domain.RateLimiter using a sliding window backed by
// Redis sorted sets and an atomic Lua script. It throttles bid submissions
// made through the presentation API.
type RateLimiter struct {
	c             *Client
	clock         clockwork.Clock
	slidingWindow *redis.Script
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client, clock clockwork.Clock) *RateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RateLimiter{
		c:             c,
		clock:         clock,
		slidingWindow: redis.NewScript(slidingWindowLua),
	}
}

// Allow reports whether a request for key is permitted under the limit. An
// allowed request is counted against the window.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	now := rl.clock.Now().UnixMilli()
	windowMs := max(window.Milliseconds(), 1)

	result, err := rl.slidingWindow.Run(
		ctx,
		rl.c.rdb,
		[]string{rl.c.key("ratelimit", key)},
		strconv.FormatInt(now, 10),
		strconv.FormatInt(now-windowMs, 10),
		limit,
		uuid.NewString(),
		windowMs,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}

	if len(result) < 2 {
		return false, fmt.Errorf("redis: rate limit allow %s: unexpected result length %d", key, len(result))
	}

	return result[0] == 1, nil
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)
