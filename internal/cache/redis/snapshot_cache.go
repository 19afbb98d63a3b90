package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/livebid/internal/domain"
)

// DefaultSnapshotTTL applies when NewSnapshotCache is given a non-positive TTL.
const DefaultSnapshotTTL = 30 * time.Second

// scanBatch is the COUNT hint used while walking keys in InvalidateAll.
const scanBatch = 200

// SnapshotCache implements domain.SnapshotCache with JSON values.
//
// Key schema:
//
//	{prefix}snapshot:{auctionID} - string containing the JSON snapshot
type SnapshotCache struct {
	c   *Client
	ttl time.Duration
}

// NewSnapshotCache creates a SnapshotCache whose entries expire after ttl.
func NewSnapshotCache(c *Client, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &SnapshotCache{c: c, ttl: ttl}
}

func (sc *SnapshotCache) snapshotKey(id string) string { return sc.c.key("snapshot", id) }

// Get returns the cached snapshot or domain.ErrCacheMiss.
func (sc *SnapshotCache) Get(ctx context.Context, auctionID string) (domain.AuctionSnapshot, error) {
	data, err := sc.c.rdb.Get(ctx, sc.snapshotKey(auctionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.AuctionSnapshot{}, domain.ErrCacheMiss
		}
		return domain.AuctionSnapshot{}, fmt.Errorf("redis: get snapshot %s: %w", auctionID, err)
	}

	var snap domain.AuctionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.AuctionSnapshot{}, fmt.Errorf("redis: unmarshal snapshot %s: %w", auctionID, err)
	}
	return snap, nil
}

// Set stores snap under its auction id with the cache TTL.
func (sc *SnapshotCache) Set(ctx context.Context, snap domain.AuctionSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", snap.ID, err)
	}
	if err := sc.c.rdb.Set(ctx, sc.snapshotKey(snap.ID), data, sc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", snap.ID, err)
	}
	return nil
}

// Invalidate removes one auction's snapshot.
func (sc *SnapshotCache) Invalidate(ctx context.Context, auctionID string) error {
	if err := sc.c.rdb.Del(ctx, sc.snapshotKey(auctionID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate snapshot %s: %w", auctionID, err)
	}
	return nil
}

// InvalidateAll removes every snapshot under the client's prefix. It walks the
// keyspace with SCAN rather than KEYS.
func (sc *SnapshotCache) InvalidateAll(ctx context.Context) error {
	pattern := sc.snapshotKey("*")
	var cursor uint64
	for {
		keys, next, err := sc.c.rdb.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("redis: scan snapshots: %w", err)
		}
		if len(keys) > 0 {
			if err := sc.c.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis: invalidate snapshots: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
