package reconcile

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/livebid/internal/domain"
)

// HighestBid is the larger of the base price, the snapshot's recorded
// highest bid and every ranked bid.
func (s State) HighestBid() decimal.Decimal {
	if s.snapshot == nil {
		return maxAmount(decimal.Zero, s.liveBids)
	}
	highest := s.snapshot.BasePrice
	if s.snapshot.CurrentHighestBid.GreaterThan(highest) {
		highest = s.snapshot.CurrentHighestBid
	}
	highest = maxAmount(highest, s.snapshot.Bids)
	return maxAmount(highest, s.liveBids)
}

// MinimumNextBid is the smallest amount the client will send.
func (s State) MinimumNextBid() decimal.Decimal {
	inc := decimal.Zero
	if s.snapshot != nil {
		inc = s.snapshot.MinIncrement
	}
	return s.HighestBid().Add(inc)
}

// ValidateBid is an advisory pre-send check; the server stays authoritative.
func (s State) ValidateBid(amount decimal.Decimal) error {
	if s.ended {
		return domain.ErrAuctionEnded
	}
	if s.conn != domain.ConnectionConnected {
		return domain.ErrStaleSubmission
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", domain.ErrInvalidBid, amount.String())
	}
	if minNext := s.MinimumNextBid(); amount.LessThan(minNext) {
		return fmt.Errorf("%w: %s < %s", domain.ErrBidTooLow, amount.String(), minNext.String())
	}
	return nil
}

// View derives the presentation view.
func (s State) View() domain.ReconciledView {
	v := domain.ReconciledView{
		Version:           s.version,
		AuctionID:         s.auctionID,
		CurrentHighestBid: s.HighestBid(),
		MinimumNextBid:    s.MinimumNextBid(),
		Submissions:       slices.Clone(s.submissions),
		OnlineCount:       s.online,
		Connection:        s.conn,
		Activity:          slices.Clone(s.activity),
		Ended:             s.ended,
		WinnerID:          s.winnerID,
		LastError:         s.lastError,
		SnapshotError:     s.snapshotErr,
		Stale:             s.snapshotErr != "" || s.conn != domain.ConnectionConnected,
	}
	if s.winningBid != nil {
		w := *s.winningBid
		v.WinningBid = &w
	}

	var historical []domain.Bid
	if s.snapshot != nil {
		historical = s.snapshot.Bids
		v.Title = s.snapshot.Title
		v.Currency = s.snapshot.Currency
		v.Status = s.snapshot.Status
		v.EndTime = s.snapshot.EndTime
		v.BasePrice = s.snapshot.BasePrice
		v.MinIncrement = s.snapshot.MinIncrement
		v.SnapshotAt = s.snapshot.FetchedAt
	}
	if s.ended {
		v.Status = domain.AuctionStatusEnded
	}
	v.RankedBids = Rank(historical, s.liveBids)
	v.BiddingOpen = !s.ended &&
		s.snapshot != nil &&
		s.snapshot.Status != domain.AuctionStatusUpcoming &&
		s.conn == domain.ConnectionConnected
	return v
}

func maxAmount(floor decimal.Decimal, bids []domain.Bid) decimal.Decimal {
	for _, b := range bids {
		if b.Amount.GreaterThan(floor) {
			floor = b.Amount
		}
	}
	return floor
}
