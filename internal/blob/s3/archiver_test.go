package s3blob

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/livebid/internal/domain"
)

type memWriter struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func (m *memWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if m.err != nil {
		return m.err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
		m.types = map[string]string{}
	}
	m.objects[path] = b
	m.types[path] = contentType
	return nil
}

func TestTranscriptArchiver(t *testing.T) {
	w := &memWriter{}
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewTranscriptArchiver(w, "", clockwork.NewFakeClockAt(at), slog.New(slog.NewTextHandler(io.Discard, nil)))

	view := domain.ReconciledView{
		AuctionID:         "a1",
		Ended:             true,
		WinnerID:          "u1",
		CurrentHighestBid: decimal.NewFromInt(120000),
		RankedBids: []domain.Bid{
			{ID: "b1", BidderID: "u1", Amount: decimal.NewFromInt(120000), Status: domain.BidStatusConfirmed},
		},
		Activity: []domain.Activity{{At: at, Kind: "bid_placed", Message: "u1 bid 120000"}},
	}

	key, err := a.Archive(context.Background(), view, "ended")
	require.NoError(t, err)
	assert.Equal(t, "transcripts/a1/1767225600.json", key)
	assert.Equal(t, "application/json", w.types[key])

	var got Transcript
	require.NoError(t, json.Unmarshal(w.objects[key], &got))
	assert.Equal(t, "a1", got.AuctionID)
	assert.Equal(t, "ended", got.Reason)
	assert.True(t, got.ArchivedAt.Equal(at))
	assert.Equal(t, "u1", got.View.WinnerID)
	require.Len(t, got.View.RankedBids, 1)
	assert.Equal(t, "b1", got.View.RankedBids[0].ID)
	assert.Len(t, got.View.Activity, 1)
}

func TestTranscriptArchiverErrors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := NewTranscriptArchiver(&memWriter{}, "x", nil, logger).Archive(context.Background(), domain.ReconciledView{}, "closed")
	assert.Error(t, err)

	boom := errors.New("bucket gone")
	_, err = NewTranscriptArchiver(&memWriter{err: boom}, "x", nil, logger).Archive(context.Background(), domain.ReconciledView{AuctionID: "a1"}, "closed")
	assert.ErrorIs(t, err, boom)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "http://localhost:9000", normaliseEndpoint("http://localhost:9000", true))
	assert.Equal(t, "https://minio.internal", normaliseEndpoint("minio.internal", true))
	assert.Equal(t, "http://minio.internal", normaliseEndpoint("minio.internal", false))
}
