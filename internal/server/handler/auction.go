package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/livebid/internal/domain"
)

// AuctionSession defines what the auction handler needs from the live
// session.
type AuctionSession interface {
	View() domain.ReconciledView
	SubmitBid(ctx context.Context, amount decimal.Decimal) (domain.Submission, error)
	RefreshSnapshot() error
	RetryConnection() error
}

// AuctionHandler serves the view and the bidding intents.
type AuctionHandler struct {
	session AuctionSession
	logger  *slog.Logger
}

// NewAuctionHandler creates an AuctionHandler backed by session.
func NewAuctionHandler(session AuctionSession, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{
		session: session,
		logger:  logHandler(logger, "auction"),
	}
}

// GetView returns the current reconciled view.
// GET /api/view
func (h *AuctionHandler) GetView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.View())
}

type placeBidRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

type placeBidResponse struct {
	Submission     domain.Submission `json:"submission"`
	MinimumNextBid decimal.Decimal   `json:"minimumNextBid"`
}

// PlaceBid submits a bid for the local participant. The amount may be a JSON
// number or a decimal string.
// POST /api/bids
func (h *AuctionHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	var req placeBidRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Amount == nil {
		writeError(w, http.StatusBadRequest, "amount is required")
		return
	}

	sub, err := h.session.SubmitBid(r.Context(), *req.Amount)
	if err != nil {
		status := bidErrorStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: place bid failed",
				slog.String("amount", req.Amount.String()),
				slog.String("error", err.Error()),
			)
			writeError(w, status, "failed to place bid")
			return
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, placeBidResponse{
		Submission:     sub,
		MinimumNextBid: h.session.View().MinimumNextBid,
	})
}

// Refresh forces a snapshot refetch.
// POST /api/refresh
func (h *AuctionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.session.RefreshSnapshot(); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refreshing"})
}

// Reconnect asks the realtime channel to reconnect now.
// POST /api/reconnect
func (h *AuctionHandler) Reconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.session.RetryConnection(); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reconnecting"})
}

func bidErrorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrStaleSubmission), errors.Is(err, domain.ErrAuctionEnded):
		return http.StatusConflict
	case errors.Is(err, domain.ErrBidTooLow), errors.Is(err, domain.ErrInvalidBid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrSessionClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
