package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionStatus represents the lifecycle state of an auction.
type AuctionStatus string

const (
	AuctionStatusUpcoming AuctionStatus = "upcoming"
	AuctionStatusActive   AuctionStatus = "active"
	AuctionStatusEnded    AuctionStatus = "ended"
)

// AuctionSnapshot is the authoritative auction record returned by the
// snapshot fetcher. It is replaced wholesale on every refetch.
type AuctionSnapshot struct {
	ID                string          `json:"id"`
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	BasePrice         decimal.Decimal `json:"basePrice"`
	MinIncrement      decimal.Decimal `json:"minIncrement"`
	CurrentHighestBid decimal.Decimal `json:"currentHighestBid"`
	Currency          string          `json:"currency"`
	StartTime         time.Time       `json:"startTime"`
	EndTime           time.Time       `json:"endTime"`
	Status            AuctionStatus   `json:"status"`
	Bids              []Bid           `json:"bids"`
	FetchedAt         time.Time       `json:"fetchedAt"`
}

// Ended reports whether the snapshot describes a finished auction.
func (s AuctionSnapshot) Ended() bool {
	return s.Status == AuctionStatusEnded
}

// BidStatus distinguishes optimistic bids from server-confirmed ones.
type BidStatus string

const (
	BidStatusPending   BidStatus = "pending"
	BidStatusConfirmed BidStatus = "confirmed"
)

// Bid is an immutable bid record. Bids are unique by ID.
type Bid struct {
	ID        string          `json:"id"`
	AuctionID string          `json:"auctionId"`
	BidderID  string          `json:"bidderId"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"createdAt"`
	Status    BidStatus       `json:"status"`
}

// Submission is the local record of a bid intent sent over the realtime
// channel. It stays pending until the server confirms it.
type Submission struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	SubmittedAt time.Time       `json:"submittedAt"`
	Status      BidStatus       `json:"status"`
	BidID       string          `json:"bidId,omitempty"`
}
