// Package server exposes the live auction view and bidding intents over a
// local HTTP and websocket API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/livebid/internal/domain"
	"github.com/alanyoungcy/livebid/internal/server/handler"
	"github.com/alanyoungcy/livebid/internal/server/middleware"
	"github.com/alanyoungcy/livebid/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	// BidRateLimit caps POST /api/bids per client IP within BidRateWindow.
	// Zero or a nil limiter disables it.
	BidRateLimit  int
	BidRateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Status  *handler.StatusHandler
	Auction *handler.AuctionHandler
}

// Server is the local HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth) and attaches the WebSocket hub.
// limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	if handlers.Status != nil {
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}

	// Auction endpoints.
	mux.HandleFunc("GET /api/view", handlers.Auction.GetView)
	var placeBid http.Handler = http.HandlerFunc(handlers.Auction.PlaceBid)
	if limiter != nil && cfg.BidRateLimit > 0 {
		placeBid = middleware.RateLimit(limiter, "bids", cfg.BidRateLimit, cfg.BidRateWindow, logger)(placeBid)
	}
	mux.Handle("POST /api/bids", placeBid)
	mux.HandleFunc("POST /api/refresh", handlers.Auction.Refresh)
	mux.HandleFunc("POST /api/reconnect", handlers.Auction.Reconnect)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		handler:    h,
		logger:     logger,
	}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("server: starting",
		slog.String("addr", ln.Addr().String()),
	)
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
