package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/alanyoungcy/livebid/internal/domain"
)

// Transcript is the archived record of one watched auction.
type Transcript struct {
	AuctionID  string                `json:"auctionId"`
	Reason     string                `json:"reason"`
	ArchivedAt time.Time             `json:"archivedAt"`
	View       domain.ReconciledView `json:"view"`
}

// TranscriptArchiver uploads the final reconciled view of an auction, its
// ranked bids and activity log included, as a JSON document.
//
// Objects are written to:
//
//	{prefix}/{auctionID}/{unix}.json
type TranscriptArchiver struct {
	writer domain.BlobWriter
	prefix string
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewTranscriptArchiver creates a TranscriptArchiver. An empty prefix
// defaults to "transcripts".
func NewTranscriptArchiver(writer domain.BlobWriter, prefix string, clock clockwork.Clock, logger *slog.Logger) *TranscriptArchiver {
	if prefix == "" {
		prefix = "transcripts"
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TranscriptArchiver{
		writer: writer,
		prefix: prefix,
		clock:  clock,
		logger: logger.With(slog.String("component", "transcript_archiver")),
	}
}

// Archive uploads view and returns the object path.
func (a *TranscriptArchiver) Archive(ctx context.Context, view domain.ReconciledView, reason string) (string, error) {
	if view.AuctionID == "" {
		return "", fmt.Errorf("s3blob: archive transcript: empty auction id")
	}

	now := a.clock.Now().UTC()
	buf, err := marshalIndented(Transcript{
		AuctionID:  view.AuctionID,
		Reason:     reason,
		ArchivedAt: now,
		View:       view,
	})
	if err != nil {
		return "", fmt.Errorf("s3blob: archive transcript marshal: %w", err)
	}

	key := transcriptPath(a.prefix, view.AuctionID, now)
	if err := a.writer.Put(ctx, key, bytes.NewReader(buf), "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: archive transcript upload: %w", err)
	}

	a.logger.InfoContext(ctx, "transcript archived",
		slog.String("auction_id", view.AuctionID),
		slog.String("reason", reason),
		slog.String("path", key),
		slog.Int("bids", len(view.RankedBids)),
	)
	return key, nil
}

// transcriptPath builds the object key for a transcript.
//
//	transcripts/a1/1767225600.json
func transcriptPath(prefix, auctionID string, at time.Time) string {
	return path.Join(prefix, auctionID, fmt.Sprintf("%d.json", at.Unix()))
}

func marshalIndented(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
