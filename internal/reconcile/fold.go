package reconcile

import (
	"fmt"
	"slices"
	"time"

	"github.com/alanyoungcy/livebid/internal/domain"
)

// Fold applies one live event. It cannot fail: events for other auctions,
// duplicates, events after the auction ended and unknown event types all
// return the state unchanged.
func (s State) Fold(ev domain.LiveEvent, now time.Time) (State, Effects) {
	switch e := ev.(type) {
	case domain.BidPlaced:
		return s.foldBidPlaced(e, now)
	case domain.BidConfirmed:
		return s.foldBidConfirmed(e, now), Effects{}
	case domain.UserJoined:
		s.online++
		return s.log(now, "user_joined", fmt.Sprintf("%s joined", e.UserID)).bump(), Effects{}
	case domain.UserLeft:
		if s.online > 0 {
			s.online--
		}
		return s.log(now, "user_left", fmt.Sprintf("%s left", e.UserID)).bump(), Effects{}
	case domain.AuctionEnded:
		return s.foldAuctionEnded(e, now)
	case domain.ErrorEvent:
		s.lastError = e.Message
		return s.log(now, "error", e.Message).bump(), Effects{}
	case domain.AuctionJoined:
		if !s.owns(e.AuctionID) {
			return s, Effects{}
		}
		return s.log(now, "auction_joined", fmt.Sprintf("joined auction %s as %s", e.AuctionID, e.UserID)).bump(), Effects{}
	case domain.ConnectionEstablished:
		msg := e.Message
		if msg == "" {
			msg = "connection established"
		}
		return s.log(now, "connection_established", msg).bump(), Effects{}
	default:
		return s, Effects{}
	}
}

func (s State) owns(auctionID string) bool {
	return auctionID == "" || auctionID == s.auctionID
}

func (s State) foldBidPlaced(e domain.BidPlaced, now time.Time) (State, Effects) {
	if !s.owns(e.AuctionID) || s.ended || e.BidID == "" {
		return s, Effects{}
	}
	if slices.ContainsFunc(s.liveBids, func(b domain.Bid) bool { return b.ID == e.BidID }) {
		return s, Effects{}
	}

	own := e.UserID == s.localUserID
	if s.snapshot != nil && slices.ContainsFunc(s.snapshot.Bids, func(b domain.Bid) bool { return b.ID == e.BidID }) {
		// Already in history: not ranked twice, but an own bid still links
		// to its submission.
		if own {
			if next, ok := s.linkSubmission(e); ok {
				return next.bump(), Effects{}
			}
		}
		return s, Effects{}
	}

	status := domain.BidStatusConfirmed
	if own {
		status = domain.BidStatusPending
		if sub, ok := s.submissionFor(e.BidID); ok && sub.Status == domain.BidStatusConfirmed {
			status = domain.BidStatusConfirmed
		}
		if next, ok := s.linkSubmission(e); ok {
			s = next
		}
	}

	ts := e.Timestamp
	if ts.IsZero() {
		ts = now
	}
	bid := domain.Bid{
		ID:        e.BidID,
		AuctionID: s.auctionID,
		BidderID:  e.UserID,
		Amount:    e.Amount,
		CreatedAt: ts,
		Status:    status,
	}
	s.liveBids = appendBounded(s.liveBids, bid, MaxLiveBids)
	s = s.log(now, "bid_placed", fmt.Sprintf("%s bid %s", e.UserID, e.Amount.String()))

	var fx Effects
	if !own {
		placed := e
		fx.Notify = &placed
	}
	return s.bump(), fx
}

func (s State) foldBidConfirmed(e domain.BidConfirmed, now time.Time) State {
	if !s.owns(e.AuctionID) {
		return s
	}

	matched := false
	subs := slices.Clone(s.submissions)
	idx := slices.IndexFunc(subs, func(sub domain.Submission) bool { return sub.BidID != "" && sub.BidID == e.BidID })
	if idx < 0 {
		idx = slices.IndexFunc(subs, func(sub domain.Submission) bool {
			return sub.Status == domain.BidStatusPending && sub.BidID == "" && sub.Amount.Equal(e.Amount)
		})
	}
	if idx >= 0 && subs[idx].Status != domain.BidStatusConfirmed {
		subs[idx].Status = domain.BidStatusConfirmed
		subs[idx].BidID = e.BidID
		matched = true
	}

	live := slices.Clone(s.liveBids)
	if i := slices.IndexFunc(live, func(b domain.Bid) bool { return b.ID == e.BidID }); i >= 0 && live[i].Status != domain.BidStatusConfirmed {
		live[i].Status = domain.BidStatusConfirmed
		matched = true
	}

	if !matched {
		return s
	}
	s.submissions = subs
	s.liveBids = live
	return s.log(now, "bid_confirmed", fmt.Sprintf("bid %s of %s confirmed", e.BidID, e.Amount.String())).bump()
}

func (s State) foldAuctionEnded(e domain.AuctionEnded, now time.Time) (State, Effects) {
	if !s.owns(e.AuctionID) || s.ended {
		return s, Effects{}
	}
	s.ended = true
	s.winnerID = e.WinnerID
	if e.WinningBid != nil {
		w := *e.WinningBid
		s.winningBid = &w
	}

	msg := "auction ended"
	if e.WinnerID != "" {
		msg = fmt.Sprintf("auction ended, won by %s", e.WinnerID)
		if e.WinningBid != nil {
			msg += " at " + e.WinningBid.String()
		}
	}
	return s.log(now, "auction_ended", msg).bump(), Effects{Refetch: true, Ended: true}
}

// submissionFor finds the submission already linked to bidID.
func (s State) submissionFor(bidID string) (domain.Submission, bool) {
	for _, sub := range s.submissions {
		if sub.BidID == bidID {
			return sub, true
		}
	}
	return domain.Submission{}, false
}

// linkSubmission attaches a server bid id to the oldest unlinked pending
// submission with the same amount.
func (s State) linkSubmission(e domain.BidPlaced) (State, bool) {
	if _, ok := s.submissionFor(e.BidID); ok {
		return s, false
	}
	idx := slices.IndexFunc(s.submissions, func(sub domain.Submission) bool {
		return sub.BidID == "" && sub.Status == domain.BidStatusPending && sub.Amount.Equal(e.Amount)
	})
	if idx < 0 {
		return s, false
	}
	subs := slices.Clone(s.submissions)
	subs[idx].BidID = e.BidID
	s.submissions = subs
	return s, true
}
