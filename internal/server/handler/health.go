package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/alanyoungcy/livebid/internal/domain"
)

// ViewSource exposes the latest reconciled view.
type ViewSource interface {
	View() domain.ReconciledView
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	views  ViewSource
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler with the provided logger.
func NewHealthHandler(views ViewSource, clock clockwork.Clock, logger *slog.Logger) *HealthHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HealthHandler{views: views, clock: clock, logger: logHandler(logger, "health")}
}

// HealthCheck reports liveness together with the realtime connection state.
// The endpoint answers 200 while reconnecting since the process itself is
// healthy.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	view := h.views.View()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"timestamp":  h.clock.Now().UTC().Format(time.RFC3339),
		"auctionId":  view.AuctionID,
		"connection": view.Connection,
		"stale":      view.Stale,
	})
}
