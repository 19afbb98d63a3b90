package domain

import (
	"context"
	"time"
)

// SnapshotFetcher retrieves the authoritative auction record.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, auctionID string) (AuctionSnapshot, error)
}

// SnapshotCache stores recently fetched snapshots. Entries expire after the
// TTL chosen by the implementation's constructor.
type SnapshotCache interface {
	Get(ctx context.Context, auctionID string) (AuctionSnapshot, error)
	Set(ctx context.Context, snap AuctionSnapshot) error
	Invalidate(ctx context.Context, auctionID string) error
	InvalidateAll(ctx context.Context) error
}

// RateLimiter provides sliding-window rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
