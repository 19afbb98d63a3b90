package auctionapi

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/livebid/internal/domain"
)

// envelope is the REST response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// APIAuction is the auction record as served by the auction backend.
type APIAuction struct {
	ID                string          `json:"id"`
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	BasePrice         decimal.Decimal `json:"basePrice"`
	MinIncrement      decimal.Decimal `json:"minIncrement"`
	MinimumIncrement  decimal.Decimal `json:"minimumIncrement"`
	CurrentHighestBid decimal.Decimal `json:"currentHighestBid"`
	Currency          string          `json:"currency"`
	StartTime         time.Time       `json:"startTime"`
	EndTime           time.Time       `json:"endTime"`
	Status            string          `json:"status"`
	Bids              []APIBid        `json:"bids"`
}

// APIBid is a historical bid as served by the auction backend.
type APIBid struct {
	ID        string          `json:"id"`
	AuctionID string          `json:"auctionId"`
	UserID    string          `json:"userId"`
	BidderID  string          `json:"bidderId"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"createdAt"`
}

// ToDomainSnapshot converts the wire record, stamping it with fetchedAt.
func (a APIAuction) ToDomainSnapshot(fetchedAt time.Time) domain.AuctionSnapshot {
	minInc := a.MinIncrement
	if minInc.IsZero() {
		minInc = a.MinimumIncrement
	}

	bids := make([]domain.Bid, 0, len(a.Bids))
	for _, b := range a.Bids {
		bidder := b.BidderID
		if bidder == "" {
			bidder = b.UserID
		}
		auctionID := b.AuctionID
		if auctionID == "" {
			auctionID = a.ID
		}
		bids = append(bids, domain.Bid{
			ID:        b.ID,
			AuctionID: auctionID,
			BidderID:  bidder,
			Amount:    b.Amount,
			CreatedAt: b.CreatedAt,
			Status:    domain.BidStatusConfirmed,
		})
	}

	return domain.AuctionSnapshot{
		ID:                a.ID,
		Title:             a.Title,
		Description:       a.Description,
		BasePrice:         a.BasePrice,
		MinIncrement:      minInc,
		CurrentHighestBid: a.CurrentHighestBid,
		Currency:          a.Currency,
		StartTime:         a.StartTime,
		EndTime:           a.EndTime,
		Status:            parseStatus(a.Status, a.StartTime, a.EndTime, fetchedAt),
		Bids:              bids,
		FetchedAt:         fetchedAt,
	}
}

// parseStatus normalises the server status, deriving it from the schedule
// when the server leaves it out.
func parseStatus(raw string, start, end, now time.Time) domain.AuctionStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "active", "live", "open":
		return domain.AuctionStatusActive
	case "ended", "closed", "completed", "finished":
		return domain.AuctionStatusEnded
	case "upcoming", "scheduled", "pending":
		return domain.AuctionStatusUpcoming
	}
	switch {
	case !end.IsZero() && !now.Before(end):
		return domain.AuctionStatusEnded
	case !start.IsZero() && now.Before(start):
		return domain.AuctionStatusUpcoming
	default:
		return domain.AuctionStatusActive
	}
}
