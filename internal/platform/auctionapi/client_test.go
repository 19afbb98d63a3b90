package auctionapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/livebid/internal/domain"
	"github.com/alanyoungcy/livebid/internal/platform/auctionapi"
)

const auctionJSON = `{
	"id": "a1",
	"title": "Vintage watch",
	"basePrice": 100000,
	"minIncrement": "5000",
	"currentHighestBid": 110000,
	"currency": "KRW",
	"startTime": "2026-01-01T00:00:00Z",
	"endTime": "2026-01-02T00:00:00Z",
	"status": "ACTIVE",
	"bids": [{"id": "b1", "userId": "u1", "amount": 110000, "createdAt": "2026-01-01T01:00:00Z"}]
}`

var fetchedAt = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newClient(url string, mode auctionapi.Mode, token string) *auctionapi.Client {
	return auctionapi.NewClient(auctionapi.Options{
		BaseURL: url,
		Mode:    mode,
		Token:   token,
		Timeout: 2 * time.Second,
		Clock:   clockwork.NewFakeClockAt(fetchedAt),
	})
}

func TestFetchSnapshotREST(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/auctions/a1", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"success":true,"data":`+auctionJSON+`}`)
	}))
	defer srv.Close()

	snap, err := newClient(srv.URL+"/api/", auctionapi.ModeREST, "tok").FetchSnapshot(context.Background(), "a1")
	require.NoError(t, err)

	assert.Equal(t, "a1", snap.ID)
	assert.Equal(t, "Vintage watch", snap.Title)
	assert.Equal(t, domain.AuctionStatusActive, snap.Status)
	assert.True(t, snap.MinIncrement.Equal(decimal.NewFromInt(5000)))
	assert.True(t, snap.CurrentHighestBid.Equal(decimal.NewFromInt(110000)))
	assert.Equal(t, fetchedAt, snap.FetchedAt)
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, "u1", snap.Bids[0].BidderID)
	assert.Equal(t, "a1", snap.Bids[0].AuctionID)
	assert.Equal(t, domain.BidStatusConfirmed, snap.Bids[0].Status)
}

func TestFetchSnapshotRESTFailures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		kind     domain.FetchErrorKind
	}{
		{"not found", http.StatusNotFound, `{"success":false,"message":"Auction not found"}`, domain.ErrNotFound, domain.FetchNotFound},
		{"unauthorized", http.StatusUnauthorized, `{"success":false,"message":"token expired"}`, domain.ErrUnauthorized, domain.FetchUnauthorized},
		{"forbidden", http.StatusForbidden, ``, domain.ErrUnauthorized, domain.FetchUnauthorized},
		{"server error", http.StatusBadGateway, `<html>bad gateway</html>`, domain.ErrNetwork, domain.FetchNetwork},
		{"teapot", http.StatusTeapot, `{}`, domain.ErrUnknown, domain.FetchUnknown},
		{"success false", http.StatusOK, `{"success":false,"message":"something odd"}`, domain.ErrUnknown, domain.FetchUnknown},
		{"success false not found", http.StatusOK, `{"success":false,"message":"Auction not found"}`, domain.ErrNotFound, domain.FetchNotFound},
		{"garbage body", http.StatusOK, `not json`, domain.ErrUnknown, domain.FetchUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := newClient(srv.URL, auctionapi.ModeREST, "").FetchSnapshot(context.Background(), "a1")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var fe *domain.FetchError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.kind, fe.Kind)
			assert.Equal(t, "a1", fe.AuctionID)
		})
	}
}

func TestFetchSnapshotUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newClient(url, auctionapi.ModeREST, "").FetchSnapshot(context.Background(), "a1")
	assert.ErrorIs(t, err, domain.ErrNetwork)

	_, err = newClient(url, auctionapi.ModeGraphQL, "").FetchSnapshot(context.Background(), "a1")
	assert.ErrorIs(t, err, domain.ErrNetwork)
}

func TestFetchSnapshotGraphQL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/graphql", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var req struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, "auction(id: $id)")

		switch req.Variables["id"] {
		case "a1":
			_, _ = io.WriteString(w, `{"data":{"auction":`+auctionJSON+`}}`)
		case "missing":
			_, _ = io.WriteString(w, `{"data":{"auction":null}}`)
		case "gone":
			_, _ = io.WriteString(w, `{"data":null,"errors":[{"message":"Auction not found"}]}`)
		case "broken":
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `upstream down`)
		default:
			_, _ = io.WriteString(w, `{"data":null,"errors":[{"message":"Unauthenticated: token expired","extensions":{"code":"UNAUTHENTICATED"}}]}`)
		}
	}))
	defer srv.Close()

	c := newClient(srv.URL, auctionapi.ModeGraphQL, "tok")

	snap, err := c.FetchSnapshot(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "Vintage watch", snap.Title)
	assert.Len(t, snap.Bids, 1)

	_, err = c.FetchSnapshot(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = c.FetchSnapshot(context.Background(), "gone")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = c.FetchSnapshot(context.Background(), "secret")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	var fe *domain.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "Unauthenticated: token expired", fe.Message)

	_, err = c.FetchSnapshot(context.Background(), "broken")
	assert.ErrorIs(t, err, domain.ErrNetwork)
}

func TestStatusDerivedFromSchedule(t *testing.T) {
	body := `{"success":true,"data":{"id":"a2","startTime":"2026-01-01T00:00:00Z","endTime":"2026-01-01T06:00:00Z"}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, body)
	}))
	defer srv.Close()

	snap, err := newClient(srv.URL, auctionapi.ModeREST, "").FetchSnapshot(context.Background(), "a2")
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionStatusEnded, snap.Status)
	assert.True(t, snap.Ended())
}
