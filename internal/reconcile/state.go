// Package reconcile merges an auction snapshot with the live event stream into
// one ordered, deduplicated view. Every operation is a pure function of the
// current State: it returns a new State and never mutates the receiver, so
// consumers can compare versions cheaply.
package reconcile

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/livebid/internal/domain"
)

const (
	// MaxLiveBids bounds the live bid list; the oldest entries are dropped first.
	MaxLiveBids = 50

	// MaxActivity bounds the activity log; the oldest entries are dropped first.
	MaxActivity = 50
)

// State is the reconciler's persistent state for one auction.
type State struct {
	auctionID   string
	localUserID string

	snapshot    *domain.AuctionSnapshot
	snapshotErr string

	liveBids    []domain.Bid
	submissions []domain.Submission
	activity    []domain.Activity

	online        int
	conn          domain.ConnectionStatus
	everConnected bool

	ended      bool
	winnerID   string
	winningBid *decimal.Decimal
	lastError  string

	version uint64
}

// Effects are side effects requested by a state transition. The reconciler
// only decides; the caller performs them.
type Effects struct {
	// Notify is set when someone other than the local participant bid.
	Notify *domain.BidPlaced
	// Join asks the caller to emit auction:join for the current auction.
	Join bool
	// Refetch asks the caller to bypass caches and replace the snapshot.
	Refetch bool
	// Ended is set once, on the fold that ends the auction.
	Ended bool
	// ConnectionLost is set when the connection leaves the connected state.
	ConnectionLost bool
}

// New returns the empty state for auctionID as seen by localUserID.
func New(auctionID, localUserID string) State {
	return State{
		auctionID:   auctionID,
		localUserID: localUserID,
		conn:        domain.ConnectionDisconnected,
	}
}

// AuctionID is the auction this state tracks.
func (s State) AuctionID() string { return s.auctionID }

// Version increases on every change that alters the view.
func (s State) Version() uint64 { return s.version }

// Connection is the last folded channel status.
func (s State) Connection() domain.ConnectionStatus { return s.conn }

// Ended reports whether an AuctionEnded has been folded.
func (s State) Ended() bool { return s.ended }

// HasSnapshot reports whether a snapshot has ever been applied.
func (s State) HasSnapshot() bool { return s.snapshot != nil }

// Snapshot returns the current baseline, if any.
func (s State) Snapshot() (domain.AuctionSnapshot, bool) {
	if s.snapshot == nil {
		return domain.AuctionSnapshot{}, false
	}
	return *s.snapshot, true
}

// LiveBids returns a copy of the live bid list in arrival order.
func (s State) LiveBids() []domain.Bid {
	return slices.Clone(s.liveBids)
}

// WithSnapshot replaces the baseline. Live bids already present in the new
// snapshot's history are dropped; the snapshot copy is authoritative.
func (s State) WithSnapshot(snap domain.AuctionSnapshot) State {
	historical := make(map[string]struct{}, len(snap.Bids))
	for _, b := range snap.Bids {
		historical[b.ID] = struct{}{}
	}

	live := make([]domain.Bid, 0, len(s.liveBids))
	for _, b := range s.liveBids {
		if _, dup := historical[b.ID]; !dup {
			live = append(live, b)
		}
	}

	snap.Bids = slices.Clone(snap.Bids)
	s.snapshot = &snap
	s.snapshotErr = ""
	s.liveBids = live
	if snap.Ended() {
		s.ended = true
	}
	return s.bump()
}

// WithFetchError records a failed fetch. The previous snapshot is kept so
// stale data can still be shown.
func (s State) WithFetchError(err error) State {
	if err == nil {
		return s
	}
	s.snapshotErr = err.Error()
	return s.bump()
}

// WithSubmission records a bid intent that was handed to the channel.
func (s State) WithSubmission(sub domain.Submission, now time.Time) State {
	sub.Status = domain.BidStatusPending
	s.submissions = append(slices.Clone(s.submissions), sub)
	s = s.log(now, "bid_submitted", "submitted bid of "+sub.Amount.String())
	return s.bump()
}

// WithConnection applies a connection lifecycle transition. Transitions that
// skip a step are routed through the intermediate state so the status never
// jumps straight from disconnected to connected.
func (s State) WithConnection(next domain.ConnectionStatus, now time.Time) (State, Effects) {
	var fx Effects
	if next == s.conn {
		return s, fx
	}

	for _, step := range transitionPath(s.conn, next) {
		prev := s.conn
		s.conn = step
		switch {
		case step == domain.ConnectionConnected:
			fx.Join = true
			fx.Refetch = s.everConnected
			if s.everConnected {
				s = s.log(now, "connection", "reconnected, resyncing")
			} else {
				s = s.log(now, "connection", "connected")
			}
			s.everConnected = true
		case prev == domain.ConnectionConnected:
			fx.ConnectionLost = true
			s = s.log(now, "connection", "connection lost")
		}
	}
	return s.bump(), fx
}

func transitionPath(from, to domain.ConnectionStatus) []domain.ConnectionStatus {
	if from.CanTransition(to) {
		return []domain.ConnectionStatus{to}
	}
	switch to {
	case domain.ConnectionConnected:
		// disconnected -> connecting -> connected
		return []domain.ConnectionStatus{domain.ConnectionConnecting, to}
	case domain.ConnectionConnecting:
		// connected -> disconnected -> connecting
		return []domain.ConnectionStatus{domain.ConnectionDisconnected, to}
	default:
		return []domain.ConnectionStatus{to}
	}
}

func (s State) log(now time.Time, kind, msg string) State {
	entry := domain.Activity{At: now, Kind: kind, Message: msg}
	s.activity = appendBounded(s.activity, entry, MaxActivity)
	return s
}

func (s State) bump() State {
	s.version++
	return s
}

// appendBounded appends v to a copy of list and truncates from the head so
// that at most limit entries remain.
func appendBounded[T any](list []T, v T, limit int) []T {
	out := make([]T, 0, min(len(list)+1, limit))
	start := 0
	if len(list)+1 > limit {
		start = len(list) + 1 - limit
	}
	out = append(out, list[start:]...)
	return append(out, v)
}
