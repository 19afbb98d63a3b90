package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/livebid/internal/cache/redis"
	"github.com/alanyoungcy/livebid/internal/domain"
)

func setup(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c, err := redis.New(context.Background(), redis.ClientConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func snapshot(id string) domain.AuctionSnapshot {
	return domain.AuctionSnapshot{
		ID:                id,
		Title:             "Lot " + id,
		BasePrice:         decimal.NewFromInt(100000),
		MinIncrement:      decimal.NewFromInt(5000),
		CurrentHighestBid: decimal.NewFromInt(100000),
		Status:            domain.AuctionStatusActive,
		EndTime:           time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}
}

func TestSnapshotCacheRoundTripAndTTL(t *testing.T) {
	mr, c := setup(t)
	ctx := context.Background()
	sc := redis.NewSnapshotCache(c, time.Minute)

	_, err := sc.Get(ctx, "a1")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)

	require.NoError(t, sc.Set(ctx, snapshot("a1")))
	assert.True(t, mr.Exists("livebid:snapshot:a1"))

	got, err := sc.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "Lot a1", got.Title)
	assert.True(t, got.MinIncrement.Equal(decimal.NewFromInt(5000)))
	assert.True(t, got.EndTime.Equal(snapshot("a1").EndTime))

	mr.FastForward(2 * time.Minute)
	_, err = sc.Get(ctx, "a1")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestSnapshotCacheInvalidate(t *testing.T) {
	mr, c := setup(t)
	ctx := context.Background()
	sc := redis.NewSnapshotCache(c, time.Minute)

	for _, id := range []string{"a1", "a2", "a3"} {
		require.NoError(t, sc.Set(ctx, snapshot(id)))
	}
	require.NoError(t, mr.Set("unrelated", "keep"))

	require.NoError(t, sc.Invalidate(ctx, "a1"))
	_, err := sc.Get(ctx, "a1")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
	_, err = sc.Get(ctx, "a2")
	assert.NoError(t, err)

	require.NoError(t, sc.InvalidateAll(ctx))
	assert.False(t, mr.Exists("livebid:snapshot:a2"))
	assert.False(t, mr.Exists("livebid:snapshot:a3"))
	assert.True(t, mr.Exists("unrelated"))
}

func TestSnapshotCacheCorruptValue(t *testing.T) {
	mr, c := setup(t)
	require.NoError(t, mr.Set("livebid:snapshot:a1", "{not json"))

	_, err := redis.NewSnapshotCache(c, 0).Get(context.Background(), "a1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrCacheMiss)
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	_, c := setup(t)
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	rl := redis.NewRateLimiter(c, clock)

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "bids:u1", 3, time.Second)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
		clock.Advance(100 * time.Millisecond)
	}

	ok, err := rl.Allow(ctx, "bids:u1", 3, time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "fourth request within the window is refused")

	ok, err = rl.Allow(ctx, "bids:u2", 3, time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")

	// The first request leaves the window after one second.
	clock.Advance(800 * time.Millisecond)
	ok, err = rl.Allow(ctx, "bids:u1", 3, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiterZeroLimit(t *testing.T) {
	_, c := setup(t)
	ok, err := redis.NewRateLimiter(c, nil).Allow(context.Background(), "k", 0, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWrapUsesCustomPrefix(t *testing.T) {
	mr, _ := setup(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	c := redis.Wrap(rdb, "test:")
	defer c.Close()

	require.NoError(t, redis.NewSnapshotCache(c, time.Minute).Set(context.Background(), snapshot("a9")))
	assert.True(t, mr.Exists("test:snapshot:a9"))
}
