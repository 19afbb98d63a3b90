package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/livebid/internal/server"
	"github.com/alanyoungcy/livebid/internal/server/handler"
	"github.com/alanyoungcy/livebid/internal/server/middleware"
	"github.com/alanyoungcy/livebid/internal/server/ws"
	"github.com/alanyoungcy/livebid/internal/session"
)

// WatchMode renders the live view on the terminal and reads bid commands from
// the console input. The HTTP API is started as well when server.enabled is
// set.
func (a *App) WatchMode(ctx context.Context, g *errgroup.Group, live *session.LiveAuction, deps *Dependencies) {
	a.logger.InfoContext(ctx, "starting watch mode")

	con := newConsole(live, a.out, a.logger)
	con.printf("watching auction %s as %s (type help for commands)\n", a.cfg.Auction.ID, a.cfg.Auction.UserID)

	g.Go(func() error {
		return con.render(ctx)
	})
	g.Go(func() error {
		return con.readCommands(ctx, a.in)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, live, deps)
	}
}

// ServerMode exposes the live view and bidding intents over HTTP and a
// websocket view stream.
func (a *App) ServerMode(ctx context.Context, g *errgroup.Group, live *session.LiveAuction, deps *Dependencies) {
	a.logger.InfoContext(ctx, "starting server mode")
	a.startHTTPServer(ctx, g, live, deps)
}

func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, live *session.LiveAuction, deps *Dependencies) {
	hub := ws.NewHub(live, middleware.OriginAllowed(a.cfg.Server.CORSOrigins), a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:          a.cfg.Server.Port,
		CORSOrigins:   a.cfg.Server.CORSOrigins,
		APIKey:        a.cfg.Server.APIKey,
		BidRateLimit:  a.cfg.Server.BidRateLimit,
		BidRateWindow: a.cfg.Server.BidRateWindow.Duration,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(live, deps.Clock, a.logger),
		Status:  handler.NewStatusHandler(a.cfg.Mode, a.cfg.Auction.ID, a.cfg.Auction.UserID, deps.Clock),
		Auction: handler.NewAuctionHandler(live, a.logger),
	}, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.logger.InfoContext(ctx, "HTTP server shutting down", slog.Int("port", a.cfg.Server.Port))
		return srv.Shutdown(shutCtx)
	})
}
