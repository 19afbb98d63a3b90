package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Realtime event names as they appear on the wire.
const (
	EventConnectionEstablished = "connection:established"
	EventAuctionJoined         = "auction:joined"
	EventBidPlaced             = "bid:placed"
	EventBidConfirmed          = "bid:placed-confirm"
	EventUserJoined            = "user:joined"
	EventUserLeft              = "user:left"
	EventAuctionEnded          = "auction:ended"
	EventError                 = "error"

	// Outbound intents.
	EventJoinAuction = "auction:join"
	EventPlaceBid    = "bid:place"
)

// InboundEvents lists every event name the reconciler understands.
var InboundEvents = []string{
	EventConnectionEstablished,
	EventAuctionJoined,
	EventBidPlaced,
	EventBidConfirmed,
	EventUserJoined,
	EventUserLeft,
	EventAuctionEnded,
	EventError,
}

// LiveEvent is a single message received from the realtime channel.
type LiveEvent interface {
	EventName() string
}

// ConnectionEstablished is the server greeting after a namespace connect.
type ConnectionEstablished struct {
	Message string
}

// AuctionJoined acknowledges an auction:join.
type AuctionJoined struct {
	AuctionID string
	UserID    string
}

// BidPlaced announces a bid accepted by the server, from any participant.
type BidPlaced struct {
	AuctionID    string
	BidID        string
	UserID       string
	Amount       decimal.Decimal
	Timestamp    time.Time
	IsHighestBid bool
}

// BidConfirmed acknowledges the local participant's own bid.
type BidConfirmed struct {
	AuctionID string
	BidID     string
	Amount    decimal.Decimal
}

// UserJoined reports a participant entering the room.
type UserJoined struct {
	UserID string
}

// UserLeft reports a participant leaving the room.
type UserLeft struct {
	UserID string
}

// AuctionEnded carries the optional winner. AuctionID is empty when the
// server omits it.
type AuctionEnded struct {
	AuctionID  string
	WinnerID   string
	WinningBid *decimal.Decimal
}

// ErrorEvent carries a server-side failure message, usually a rejected bid.
type ErrorEvent struct {
	Message string
}

// EventName implements LiveEvent.
func (ConnectionEstablished) EventName() string { return EventConnectionEstablished }
func (AuctionJoined) EventName() string         { return EventAuctionJoined }
func (BidPlaced) EventName() string             { return EventBidPlaced }
func (BidConfirmed) EventName() string          { return EventBidConfirmed }
func (UserJoined) EventName() string            { return EventUserJoined }
func (UserLeft) EventName() string              { return EventUserLeft }
func (AuctionEnded) EventName() string          { return EventAuctionEnded }
func (ErrorEvent) EventName() string            { return EventError }

// JoinAuctionIntent is the payload of an outbound auction:join.
type JoinAuctionIntent struct {
	AuctionID string `json:"auctionId"`
	UserID    string `json:"userId"`
}

// PlaceBidIntent is the payload of an outbound bid:place.
type PlaceBidIntent struct {
	AuctionID string          `json:"auctionId"`
	UserID    string          `json:"userId"`
	Amount    decimal.Decimal `json:"amount"`
}
