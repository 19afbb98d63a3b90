package feed_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/livebid/internal/domain"
	"github.com/alanyoungcy/livebid/internal/feed"
	"github.com/alanyoungcy/livebid/internal/platform/socketio"
)

type emitted struct {
	event   string
	payload any
}

// fakeChannel routes On/Off through a real Emitter and records Emit calls.
type fakeChannel struct {
	socketio.Emitter[json.RawMessage]
	sent      []emitted
	connected bool
}

func (c *fakeChannel) Emit(event string, payload any) error {
	if !c.connected {
		return domain.ErrNotConnected
	}
	c.sent = append(c.sent, emitted{event, payload})
	return nil
}

func (c *fakeChannel) push(event, payload string) int {
	return c.Emitter.Emit(event, json.RawMessage(payload))
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestSubscribeDecodesAndUnsubscribes(t *testing.T) {
	ch := &fakeChannel{}
	f := feed.New(ch, discard())

	var got []domain.LiveEvent
	unsubscribe := f.Subscribe(func(ev domain.LiveEvent) { got = append(got, ev) })

	for _, name := range domain.InboundEvents {
		assert.Equal(t, 1, ch.Count(name), name)
	}

	ch.push(domain.EventBidPlaced, `{"auctionId":"a1","bidId":"b1","userId":"u2","amount":120000,"timestamp":"2026-01-02T03:04:05Z","isHighestBid":true}`)
	ch.push(domain.EventUserJoined, `{"userId":"u3"}`)
	ch.push(domain.EventBidPlaced, `{"amount":"oops"}`)

	require.Len(t, got, 2)
	bp := got[0].(domain.BidPlaced)
	assert.Equal(t, "b1", bp.BidID)
	assert.True(t, bp.Amount.Equal(decimal.NewFromInt(120000)))
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), bp.Timestamp)
	assert.True(t, bp.IsHighestBid)
	assert.Equal(t, domain.UserJoined{UserID: "u3"}, got[1])

	// A second subscriber is untouched by the first one's unsubscribe.
	other := f.Subscribe(func(domain.LiveEvent) {})
	unsubscribe()
	unsubscribe()
	for _, name := range domain.InboundEvents {
		assert.Equal(t, 1, ch.Count(name), name)
	}
	other()
	for _, name := range domain.InboundEvents {
		assert.Zero(t, ch.Count(name), name)
	}

	ch.push(domain.EventUserLeft, `{"userId":"u3"}`)
	assert.Len(t, got, 2)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		event string
		raw   string
		want  domain.LiveEvent
	}{
		{"established", domain.EventConnectionEstablished, `{"message":"welcome"}`, domain.ConnectionEstablished{Message: "welcome"}},
		{"established bare string", domain.EventConnectionEstablished, `"welcome"`, domain.ConnectionEstablished{Message: "welcome"}},
		{"joined", domain.EventAuctionJoined, `{"auctionId":"a1","userId":"u1"}`, domain.AuctionJoined{AuctionID: "a1", UserID: "u1"}},
		{"user left", domain.EventUserLeft, `{"userId":"u9"}`, domain.UserLeft{UserID: "u9"}},
		{"error object", domain.EventError, `{"message":"Bid too low"}`, domain.ErrorEvent{Message: "Bid too low"}},
		{"error string", domain.EventError, `"Auction closed"`, domain.ErrorEvent{Message: "Auction closed"}},
		{"ended without winner", domain.EventAuctionEnded, `{}`, domain.AuctionEnded{}},
		{"established without payload", domain.EventConnectionEstablished, ``, domain.ConnectionEstablished{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := feed.Decode(tt.event, json.RawMessage(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeAuctionEndedWithWinner(t *testing.T) {
	got, err := feed.Decode(domain.EventAuctionEnded, json.RawMessage(`{"auctionId":"a1","winnerId":"u1","winningBid":"120000.50"}`))
	require.NoError(t, err)
	ended := got.(domain.AuctionEnded)
	assert.Equal(t, "u1", ended.WinnerID)
	require.NotNil(t, ended.WinningBid)
	assert.Equal(t, "120000.5", ended.WinningBid.String())
}

func TestDecodeEpochTimestamp(t *testing.T) {
	got, err := feed.Decode(domain.EventBidPlaced, json.RawMessage(`{"bidId":"b1","amount":"10","timestamp":1767323045000}`))
	require.NoError(t, err)
	assert.Equal(t, time.UnixMilli(1767323045000).UTC(), got.(domain.BidPlaced).Timestamp)

	got, err = feed.Decode(domain.EventBidPlaced, json.RawMessage(`{"bidId":"b2","amount":"10"}`))
	require.NoError(t, err)
	assert.True(t, got.(domain.BidPlaced).Timestamp.IsZero())
}

func TestDecodeRejectsMalformed(t *testing.T) {
	_, err := feed.Decode(domain.EventBidPlaced, json.RawMessage(`{"amount":"10"}`))
	assert.Error(t, err, "missing bid id")

	_, err = feed.Decode(domain.EventBidPlaced, json.RawMessage(`{"bidId":"b1","amount":"10","timestamp":"yesterday"}`))
	assert.Error(t, err)

	for _, raw := range []string{
		`{"bidId":"b1","userId":"u1"}`,
		`{"bidId":"b1","amount":null}`,
		`{"bidId":"b1","amount":"0"}`,
		`{"bidId":"b1","amount":-5}`,
	} {
		_, err = feed.Decode(domain.EventBidPlaced, json.RawMessage(raw))
		assert.Error(t, err, raw)
	}

	_, err = feed.Decode("auction:paused", json.RawMessage(`{}`))
	assert.Error(t, err)
}

func TestOutboundIntents(t *testing.T) {
	ch := &fakeChannel{}
	f := feed.New(ch, discard())

	err := f.JoinAuction("a1", "u1")
	assert.ErrorIs(t, err, domain.ErrNotConnected)
	assert.Empty(t, ch.sent)

	ch.connected = true
	require.NoError(t, f.JoinAuction("a1", "u1"))
	require.NoError(t, f.PlaceBid("a1", "u1", decimal.NewFromInt(130000)))

	require.Len(t, ch.sent, 2)
	assert.Equal(t, domain.EventJoinAuction, ch.sent[0].event)
	assert.Equal(t, domain.JoinAuctionIntent{AuctionID: "a1", UserID: "u1"}, ch.sent[0].payload)
	assert.Equal(t, domain.EventPlaceBid, ch.sent[1].event)

	body, err := json.Marshal(ch.sent[1].payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"auctionId":"a1","userId":"u1","amount":"130000"}`, string(body))
}
