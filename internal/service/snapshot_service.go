package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/livebid/internal/domain"
)

// SnapshotService fronts the snapshot fetcher with an optional cache and
// collapses concurrent fetches for the same auction into one request.
// A Refetch always starts a new backend request; loads it supersedes still
// answer their callers but no longer write to the cache.
type SnapshotService struct {
	fetcher domain.SnapshotFetcher
	cache   domain.SnapshotCache
	group   singleflight.Group
	logger  *slog.Logger

	mu   sync.Mutex
	gens map[string]uint64
}

// NewSnapshotService creates a SnapshotService. cache may be nil, in which
// case every call goes to the fetcher.
func NewSnapshotService(
	fetcher domain.SnapshotFetcher,
	cache domain.SnapshotCache,
	logger *slog.Logger,
) *SnapshotService {
	return &SnapshotService{
		fetcher: fetcher,
		cache:   cache,
		logger:  logger.With(slog.String("component", "snapshot_service")),
		gens:    make(map[string]uint64),
	}
}

// Fetch returns the snapshot for auctionID, serving it from the cache when a
// fresh entry exists.
func (s *SnapshotService) Fetch(ctx context.Context, auctionID string) (domain.AuctionSnapshot, error) {
	if s.cache != nil {
		snap, err := s.cache.Get(ctx, auctionID)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, domain.ErrCacheMiss) {
			// Cache trouble is not fatal; fall through to the backend.
			s.logger.WarnContext(ctx, "snapshot cache get failed",
				slog.String("auction_id", auctionID),
				slog.String("error", err.Error()),
			)
		}
	}
	return s.load(ctx, auctionID)
}

// Refetch drops any cached entry and loads the snapshot from the backend
// with a request issued after this call, never one already in flight.
func (s *SnapshotService) Refetch(ctx context.Context, auctionID string) (domain.AuctionSnapshot, error) {
	s.mu.Lock()
	s.gens[auctionID]++
	s.mu.Unlock()
	s.group.Forget(auctionID)

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, auctionID); err != nil {
			s.logger.WarnContext(ctx, "snapshot cache invalidate failed",
				slog.String("auction_id", auctionID),
				slog.String("error", err.Error()),
			)
		}
	}
	return s.load(ctx, auctionID)
}

func (s *SnapshotService) load(ctx context.Context, auctionID string) (domain.AuctionSnapshot, error) {
	gen := s.generation(auctionID)
	v, err, shared := s.group.Do(auctionID, func() (any, error) {
		snap, err := s.fetcher.FetchSnapshot(ctx, auctionID)
		if err != nil {
			return domain.AuctionSnapshot{}, err
		}
		s.store(ctx, auctionID, gen, snap)
		return snap, nil
	})
	if err != nil {
		return domain.AuctionSnapshot{}, fmt.Errorf("snapshot_service: fetch %s: %w", auctionID, err)
	}

	snap := v.(domain.AuctionSnapshot)
	s.logger.DebugContext(ctx, "snapshot loaded",
		slog.String("auction_id", auctionID),
		slog.Int("bids", len(snap.Bids)),
		slog.Bool("shared", shared),
	)
	return snap, nil
}

func (s *SnapshotService) generation(auctionID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[auctionID]
}

// store caches snap unless a Refetch started after the load that produced it.
func (s *SnapshotService) store(ctx context.Context, auctionID string, gen uint64, snap domain.AuctionSnapshot) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens[auctionID] != gen {
		s.logger.DebugContext(ctx, "discarding superseded snapshot",
			slog.String("auction_id", auctionID),
		)
		return
	}
	if err := s.cache.Set(ctx, snap); err != nil {
		s.logger.WarnContext(ctx, "snapshot cache set failed",
			slog.String("auction_id", auctionID),
			slog.String("error", err.Error()),
		)
	}
}
