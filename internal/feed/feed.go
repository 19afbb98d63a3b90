// Package feed binds the realtime channel to the auction domain: it decodes
// named server events into domain.LiveEvent values and sends the outbound
// join and bid intents.
package feed

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/livebid/internal/domain"
	"github.com/alanyoungcy/livebid/internal/platform/socketio"
)

// Channel is the subset of the realtime client the feed needs.
type Channel interface {
	On(event string, fn func(json.RawMessage)) *socketio.Subscription
	Off(sub *socketio.Subscription) bool
	Emit(event string, payload any) error
}

// AuctionFeed translates between wire events and domain events.
type AuctionFeed struct {
	ch     Channel
	logger *slog.Logger
}

// New creates a feed over ch.
func New(ch Channel, logger *slog.Logger) *AuctionFeed {
	return &AuctionFeed{
		ch:     ch,
		logger: logger.With(slog.String("component", "feed")),
	}
}

// Subscribe registers handler for every inbound event name. The returned
// function removes exactly the handlers registered by this call; it is safe
// to call more than once.
func (f *AuctionFeed) Subscribe(handler func(domain.LiveEvent)) (unsubscribe func()) {
	subs := make([]*socketio.Subscription, 0, len(domain.InboundEvents))
	for _, name := range domain.InboundEvents {
		subs = append(subs, f.ch.On(name, func(raw json.RawMessage) {
			ev, err := Decode(name, raw)
			if err != nil {
				f.logger.Warn("dropping malformed event",
					slog.String("event", name),
					slog.String("error", err.Error()),
				)
				return
			}
			handler(ev)
		}))
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for _, sub := range subs {
				f.ch.Off(sub)
			}
		})
	}
}

// JoinAuction asks the server to add this client to the auction room.
func (f *AuctionFeed) JoinAuction(auctionID, userID string) error {
	if err := f.ch.Emit(domain.EventJoinAuction, domain.JoinAuctionIntent{
		AuctionID: auctionID,
		UserID:    userID,
	}); err != nil {
		return fmt.Errorf("feed: join auction %s: %w", auctionID, err)
	}
	return nil
}

// PlaceBid sends a bid intent. The server answers asynchronously with
// bid:placed and bid:placed-confirm, or an error event.
func (f *AuctionFeed) PlaceBid(auctionID, userID string, amount decimal.Decimal) error {
	if err := f.ch.Emit(domain.EventPlaceBid, domain.PlaceBidIntent{
		AuctionID: auctionID,
		UserID:    userID,
		Amount:    amount,
	}); err != nil {
		return fmt.Errorf("feed: place bid on %s: %w", auctionID, err)
	}
	return nil
}

// Wire payloads. Field names follow the server's camelCase JSON.

type wireMessage struct {
	Message string `json:"message"`
}

type wireJoined struct {
	AuctionID string `json:"auctionId"`
	UserID    string `json:"userId"`
}

type wireBidPlaced struct {
	AuctionID    string           `json:"auctionId"`
	BidID        string           `json:"bidId"`
	UserID       string           `json:"userId"`
	Amount       *decimal.Decimal `json:"amount"`
	Timestamp    timestamp        `json:"timestamp"`
	IsHighestBid bool             `json:"isHighestBid"`
}

type wireBidConfirmed struct {
	AuctionID string          `json:"auctionId"`
	BidID     string          `json:"bidId"`
	Amount    decimal.Decimal `json:"amount"`
}

type wireUser struct {
	UserID string `json:"userId"`
}

type wireEnded struct {
	AuctionID  string           `json:"auctionId"`
	WinnerID   string           `json:"winnerId"`
	WinningBid *decimal.Decimal `json:"winningBid"`
}

// Decode converts the first argument of a named event into its domain form.
func Decode(name string, raw json.RawMessage) (domain.LiveEvent, error) {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}

	switch name {
	case domain.EventConnectionEstablished:
		var w wireMessage
		if err := decodeObject(raw, &w); err != nil {
			return nil, err
		}
		return domain.ConnectionEstablished{Message: w.Message}, nil

	case domain.EventAuctionJoined:
		var w wireJoined
		if err := decodeObject(raw, &w); err != nil {
			return nil, err
		}
		return domain.AuctionJoined{AuctionID: w.AuctionID, UserID: w.UserID}, nil

	case domain.EventBidPlaced:
		var w wireBidPlaced
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("feed: decode %s: %w", name, err)
		}
		if w.BidID == "" {
			return nil, fmt.Errorf("feed: decode %s: missing bidId", name)
		}
		if w.Amount == nil || !w.Amount.IsPositive() {
			return nil, fmt.Errorf("feed: decode %s: bid %s has no positive amount", name, w.BidID)
		}
		return domain.BidPlaced{
			AuctionID:    w.AuctionID,
			BidID:        w.BidID,
			UserID:       w.UserID,
			Amount:       *w.Amount,
			Timestamp:    time.Time(w.Timestamp),
			IsHighestBid: w.IsHighestBid,
		}, nil

	case domain.EventBidConfirmed:
		var w wireBidConfirmed
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("feed: decode %s: %w", name, err)
		}
		return domain.BidConfirmed{AuctionID: w.AuctionID, BidID: w.BidID, Amount: w.Amount}, nil

	case domain.EventUserJoined, domain.EventUserLeft:
		var w wireUser
		if err := decodeObject(raw, &w); err != nil {
			return nil, err
		}
		if name == domain.EventUserJoined {
			return domain.UserJoined{UserID: w.UserID}, nil
		}
		return domain.UserLeft{UserID: w.UserID}, nil

	case domain.EventAuctionEnded:
		var w wireEnded
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("feed: decode %s: %w", name, err)
		}
		return domain.AuctionEnded{AuctionID: w.AuctionID, WinnerID: w.WinnerID, WinningBid: w.WinningBid}, nil

	case domain.EventError:
		// Servers send either {"message": "..."} or a bare string.
		var msg string
		if err := json.Unmarshal(raw, &msg); err == nil {
			return domain.ErrorEvent{Message: msg}, nil
		}
		var w wireMessage
		if err := decodeObject(raw, &w); err != nil {
			return nil, err
		}
		return domain.ErrorEvent{Message: w.Message}, nil
	}

	return nil, fmt.Errorf("feed: unknown event %q", name)
}

// decodeObject decodes the diagnostic events, whose payloads some servers
// send as a bare string.
func decodeObject(raw json.RawMessage, v any) error {
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("feed: decode: %w", err)
		}
		if m, ok := v.(*wireMessage); ok {
			m.Message = s
		}
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("feed: decode: %w", err)
	}
	return nil
}

// timestamp accepts RFC 3339 strings and Unix epoch milliseconds.
type timestamp time.Time

func (t *timestamp) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		return nil
	}
	if s[0] == '"' {
		unq, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		if ms, err := strconv.ParseInt(unq, 10, 64); err == nil {
			*t = timestamp(time.UnixMilli(ms).UTC())
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, unq)
		if err != nil {
			return fmt.Errorf("timestamp %q: %w", unq, err)
		}
		*t = timestamp(parsed)
		return nil
	}
	ms, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("timestamp %s: %w", s, err)
	}
	*t = timestamp(time.UnixMilli(int64(ms)).UTC())
	return nil
}
