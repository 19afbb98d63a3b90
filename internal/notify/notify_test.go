package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	name   string
	titles []string
	err    error
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifierFiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventBidPlaced, " " + EventAuctionEnded}, discard())

	require.NoError(t, n.Notify(context.Background(), EventBidPlaced, "outbid", "u2 bid 10"))
	require.NoError(t, n.Notify(context.Background(), EventConnectionLost, "offline", "reconnecting"))
	require.NoError(t, n.Notify(context.Background(), EventAuctionEnded, "ended", "u1 won"))

	assert.Equal(t, []string{"outbid", "ended"}, s.titles)
	assert.True(t, n.Enabled())
}

func TestNotifierEmptyFilterAllowsAll(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, discard())
	for _, ev := range AllEvents {
		require.NoError(t, n.Notify(context.Background(), ev, ev, ""))
	}
	assert.Equal(t, AllEvents, s.titles)
	assert.True(t, n.Allows("anything"))
}

func TestNotifierContinuesPastFailingSender(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discard())

	err := n.Notify(context.Background(), EventBidPlaced, "outbid", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.ErrorIs(t, err, bad.err)
	assert.Equal(t, []string{"outbid"}, good.titles)

	assert.False(t, NewNotifier(nil, nil, discard()).Enabled())
}

func TestBellSender(t *testing.T) {
	var buf bytes.Buffer
	b := NewBellSender(&buf)
	b.now = func() time.Time { return time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC) }

	require.NoError(t, b.Send(context.Background(), "New bid", "u2 bid 130000 KRW"))
	assert.Equal(t, "\a[09:30:00] New bid: u2 bid 130000 KRW\n", buf.String())
	assert.Equal(t, "bell", b.Name())
}

func TestDiscordSender(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewDiscordSender(srv.URL).Send(context.Background(), "Auction ended", "u1 won"))
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "Auction ended", got.Embeds[0].Title)
	assert.Equal(t, "u1 won", got.Embeds[0].Description)
}

func TestTelegramSenderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		http.Error(w, "chat not found", http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.apiBase = srv.URL
	err := s.Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestTelegramSenderEscapesAuctionText(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.apiBase = srv.URL
	require.NoError(t, s.Send(context.Background(), "New bid", "bid_master<3 bid 130000 KRW"))

	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "HTML", got["parse_mode"])
	assert.Equal(t, "<b>New bid</b>\nbid_master&lt;3 bid 130000 KRW", got["text"])
}

func TestTelegramSenderRejectedMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"ok":false,"description":"Forbidden: bot was blocked by the user"}`)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.apiBase = srv.URL
	err := s.Send(context.Background(), "Auction ended", "u1 won")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bot was blocked")
}
