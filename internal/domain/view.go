package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConnectionStatus is the realtime channel lifecycle as seen by the view.
type ConnectionStatus string

const (
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionConnecting   ConnectionStatus = "connecting"
	ConnectionConnected    ConnectionStatus = "connected"
)

// CanTransition reports whether moving from s to next is a legal lifecycle
// step. A failed attempt may fall back from connecting to disconnected, but a
// connection is never established without passing through connecting.
func (s ConnectionStatus) CanTransition(next ConnectionStatus) bool {
	switch s {
	case ConnectionDisconnected:
		return next == ConnectionConnecting
	case ConnectionConnecting:
		return next == ConnectionConnected || next == ConnectionDisconnected
	case ConnectionConnected:
		return next == ConnectionDisconnected
	default:
		return false
	}
}

// Activity is one entry of the rolling activity log.
type Activity struct {
	At      time.Time `json:"at"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
}

// ReconciledView is the derived, read-only state handed to the presentation
// layer. A new value is produced on every change.
type ReconciledView struct {
	Version           uint64           `json:"version"`
	AuctionID         string           `json:"auctionId"`
	Title             string           `json:"title"`
	Currency          string           `json:"currency"`
	Status            AuctionStatus    `json:"status"`
	EndTime           time.Time        `json:"endTime"`
	BasePrice         decimal.Decimal  `json:"basePrice"`
	MinIncrement      decimal.Decimal  `json:"minIncrement"`
	CurrentHighestBid decimal.Decimal  `json:"currentHighestBid"`
	MinimumNextBid    decimal.Decimal  `json:"minimumNextBid"`
	RankedBids        []Bid            `json:"rankedBids"`
	Submissions       []Submission     `json:"submissions"`
	OnlineCount       int              `json:"onlineCount"`
	Connection        ConnectionStatus `json:"connection"`
	Activity          []Activity       `json:"activity"`
	BiddingOpen       bool             `json:"biddingOpen"`
	Ended             bool             `json:"ended"`
	WinnerID          string           `json:"winnerId,omitempty"`
	WinningBid        *decimal.Decimal `json:"winningBid,omitempty"`
	LastError         string           `json:"lastError,omitempty"`
	SnapshotError     string           `json:"snapshotError,omitempty"`
	Stale             bool             `json:"stale"`
	SnapshotAt        time.Time        `json:"snapshotAt"`
}
