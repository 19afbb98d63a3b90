package reconcile

import (
	"slices"

	"github.com/alanyoungcy/livebid/internal/domain"
)

// Rank merges live bids in front of historical bids, removes duplicate ids
// (the historical copy wins) and sorts by amount descending, then by creation
// time ascending. The sort is stable and always recomputed from scratch.
func Rank(historical, live []domain.Bid) []domain.Bid {
	seen := make(map[string]struct{}, len(historical)+len(live))
	for _, b := range historical {
		seen[b.ID] = struct{}{}
	}

	out := make([]domain.Bid, 0, len(historical)+len(live))
	// newest live bid first
	for i := len(live) - 1; i >= 0; i-- {
		b := live[i]
		if _, dup := seen[b.ID]; dup {
			continue
		}
		seen[b.ID] = struct{}{}
		out = append(out, b)
	}

	added := make(map[string]struct{}, len(historical))
	for _, b := range historical {
		if _, dup := added[b.ID]; dup {
			continue
		}
		added[b.ID] = struct{}{}
		out = append(out, b)
	}

	slices.SortStableFunc(out, compareBids)
	return out
}

func compareBids(a, b domain.Bid) int {
	if c := b.Amount.Cmp(a.Amount); c != 0 {
		return c
	}
	return a.CreatedAt.Compare(b.CreatedAt)
}
