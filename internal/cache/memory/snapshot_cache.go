// Package memory provides an in-process snapshot cache for single-instance
// deployments and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/alanyoungcy/livebid/internal/domain"
)

type entry struct {
	snap      domain.AuctionSnapshot
	expiresAt time.Time
}

// SnapshotCache implements domain.SnapshotCache with a map and a TTL.
type SnapshotCache struct {
	clock clockwork.Clock
	ttl   time.Duration

	mu      sync.Mutex
	entries map[string]entry
}

// NewSnapshotCache creates a cache whose entries expire ttl after Set.
func NewSnapshotCache(ttl time.Duration, clock clockwork.Clock) *SnapshotCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SnapshotCache{
		clock:   clock,
		ttl:     ttl,
		entries: make(map[string]entry),
	}
}

// Get returns the snapshot for auctionID or domain.ErrCacheMiss when absent
// or expired.
func (c *SnapshotCache) Get(_ context.Context, auctionID string) (domain.AuctionSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[auctionID]
	if !ok {
		return domain.AuctionSnapshot{}, domain.ErrCacheMiss
	}
	if !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, auctionID)
		return domain.AuctionSnapshot{}, domain.ErrCacheMiss
	}
	return e.snap, nil
}

// Set stores snap under its ID, restarting the TTL.
func (c *SnapshotCache) Set(_ context.Context, snap domain.AuctionSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[snap.ID] = entry{snap: snap, expiresAt: c.clock.Now().Add(c.ttl)}
	return nil
}

// Invalidate drops the entry for auctionID.
func (c *SnapshotCache) Invalidate(_ context.Context, auctionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, auctionID)
	return nil
}

// InvalidateAll drops every entry.
func (c *SnapshotCache) InvalidateAll(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *SnapshotCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

var _ domain.SnapshotCache = (*SnapshotCache)(nil)
