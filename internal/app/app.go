// Package app provides the top-level application lifecycle management for
// livebid. It wires together the realtime channel, snapshot fetcher, caches,
// archive and notifications, starts the live session and runs the configured
// presentation mode.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/livebid/internal/config"
	"github.com/alanyoungcy/livebid/internal/session"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	clock   clockwork.Clock
	in      io.Reader
	out     io.Writer
	closers []func()
}

// Option customises an App.
type Option func(*App)

// WithIO replaces stdin and stdout for the console.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(a *App) {
		a.in = in
		a.out = out
	}
}

// WithClock replaces the real clock.
func WithClock(clock clockwork.Clock) Option {
	return func(a *App) { a.clock = clock }
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *App {
	a := &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
		clock:  clockwork.NewRealClock(),
		in:     os.Stdin,
		out:    os.Stdout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run is the main entry point. It wires all dependencies, starts the live
// session and the selected mode, and blocks until the context is cancelled or
// the user quits. On return the caller should invoke Close.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("auction_id", a.cfg.Auction.ID),
		slog.String("log_level", a.cfg.LogLevel),
	)

	var bell io.Writer
	if strings.EqualFold(a.cfg.Mode, "watch") {
		bell = a.out
	}
	deps, cleanup, err := Wire(ctx, a.cfg, a.clock, bell, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	var archiver session.Archiver
	if deps.Archiver != nil {
		archiver = deps.Archiver
	}
	var notifier session.Notifier
	if deps.Notifier.Enabled() {
		notifier = deps.Notifier
	}
	live, err := session.New(session.Config{
		AuctionID:     a.cfg.Auction.ID,
		UserID:        a.cfg.Auction.UserID,
		NotifyTimeout: a.cfg.Notify.Timeout.Duration,
	}, session.Deps{
		Snapshots:  deps.Snapshots,
		Feed:       deps.Feed,
		Connection: deps.Channel,
		Notifier:   notifier,
		Archiver:   archiver,
		Clock:      deps.Clock,
		Logger:     a.logger,
	})
	if err != nil {
		return fmt.Errorf("app: session: %w", err)
	}
	if err := live.Start(); err != nil {
		return fmt.Errorf("app: start session: %w", err)
	}
	// Closed before the wired clients so the final transcript can upload.
	a.closers = append(a.closers, func() {
		if err := live.Close(); err != nil {
			a.logger.Warn("session close failed", slog.String("error", err.Error()))
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return deps.Channel.Run(gctx)
	})

	switch strings.ToLower(a.cfg.Mode) {
	case "watch":
		a.WatchMode(gctx, g, live, deps)
	case "server":
		a.ServerMode(gctx, g, live, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}

	err = g.Wait()
	switch {
	case errors.Is(err, errQuit):
		return nil
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return ctx.Err()
	}
	return err
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
