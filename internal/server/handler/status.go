package handler

import (
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
)

// StatusHandler serves process metadata for dashboards.
type StatusHandler struct {
	Mode      string
	AuctionID string
	UserID    string
	StartedAt time.Time
	clock     clockwork.Clock
}

// NewStatusHandler creates a StatusHandler for the given run mode and
// participant.
func NewStatusHandler(mode, auctionID, userID string, clock clockwork.Clock) *StatusHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &StatusHandler{
		Mode:      mode,
		AuctionID: auctionID,
		UserID:    userID,
		StartedAt: clock.Now(),
		clock:     clock,
	}
}

// GetStatus responds with the run mode, participant and uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":          h.Mode,
		"auctionId":     h.AuctionID,
		"userId":        h.UserID,
		"uptimeSeconds": int64(h.clock.Since(h.StartedAt).Seconds()),
	})
}
