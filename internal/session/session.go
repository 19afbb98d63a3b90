// Package session runs one live auction view: it feeds snapshot results,
// realtime events and connection transitions through the reconciler on a
// single goroutine and publishes the resulting view.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/smallnest/chanx"

	"github.com/alanyoungcy/livebid/internal/domain"
	"github.com/alanyoungcy/livebid/internal/notify"
	"github.com/alanyoungcy/livebid/internal/platform/socketio"
	"github.com/alanyoungcy/livebid/internal/reconcile"
)

// Snapshots loads auction snapshots. Refetch must bypass any cache.
type Snapshots interface {
	Fetch(ctx context.Context, auctionID string) (domain.AuctionSnapshot, error)
	Refetch(ctx context.Context, auctionID string) (domain.AuctionSnapshot, error)
}

// Feed is the decoded realtime event stream plus outbound intents.
type Feed interface {
	Subscribe(handler func(domain.LiveEvent)) (unsubscribe func())
	JoinAuction(auctionID, userID string) error
	PlaceBid(auctionID, userID string, amount decimal.Decimal) error
}

// Connection exposes the realtime channel lifecycle.
type Connection interface {
	OnStatus(fn func(domain.ConnectionStatus)) *socketio.Subscription
	Off(sub *socketio.Subscription) bool
	Status() domain.ConnectionStatus
	Reconnect()
}

// Notifier delivers user-facing alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Archiver stores the final view of an auction.
type Archiver interface {
	Archive(ctx context.Context, view domain.ReconciledView, reason string) (string, error)
}

// Archive reasons passed to Archiver.
const (
	ReasonEnded  = "ended"
	ReasonClosed = "closed"
)

// Config identifies the auction and participant.
type Config struct {
	AuctionID string
	UserID    string
	// NotifyTimeout bounds each notification and archive upload.
	NotifyTimeout time.Duration
	// QueueCapacity is the initial size of the event queue buffer.
	QueueCapacity int
}

// Deps groups the collaborators of a LiveAuction. Notifier and Archiver are
// optional.
type Deps struct {
	Snapshots  Snapshots
	Feed       Feed
	Connection Connection
	Notifier   Notifier
	Archiver   Archiver
	Clock      clockwork.Clock
	Logger     *slog.Logger
}

// LiveAuction coordinates one auction view. Every state change runs on the
// loop goroutine, so the reconciler never sees concurrent folds.
type LiveAuction struct {
	cfg       Config
	snapshots Snapshots
	feed      Feed
	conn      Connection
	notifier  Notifier
	archiver  Archiver
	clock     clockwork.Clock
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	queue  *chanx.UnboundedChan[func()]
	done   chan struct{}
	wg     sync.WaitGroup

	started   atomic.Bool
	closeOnce sync.Once

	view atomic.Pointer[domain.ReconciledView]

	watchMu  sync.Mutex
	watchers map[uint64]chan domain.ReconciledView
	watchSeq uint64
	closed   bool

	// Owned by the loop goroutine.
	state          reconcile.State
	generation     uint64
	published      uint64
	archivePending bool

	unsubscribe func()
	statusSub   *socketio.Subscription
}

// New creates a LiveAuction. Call Start to begin processing and Close to
// release it.
func New(cfg Config, deps Deps) (*LiveAuction, error) {
	if cfg.AuctionID == "" {
		return nil, fmt.Errorf("session: auction id is required")
	}
	if deps.Snapshots == nil || deps.Feed == nil || deps.Connection == nil {
		return nil, fmt.Errorf("session: snapshots, feed and connection are required")
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 64
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	la := &LiveAuction{
		cfg:       cfg,
		snapshots: deps.Snapshots,
		feed:      deps.Feed,
		conn:      deps.Connection,
		notifier:  deps.Notifier,
		archiver:  deps.Archiver,
		clock:     deps.Clock,
		logger: deps.Logger.With(
			slog.String("component", "session"),
			slog.String("auction_id", cfg.AuctionID),
		),
		ctx:      ctx,
		cancel:   cancel,
		queue:    chanx.NewUnboundedChan[func()](ctx, cfg.QueueCapacity),
		done:     make(chan struct{}),
		watchers: make(map[uint64]chan domain.ReconciledView),
		state:    reconcile.New(cfg.AuctionID, cfg.UserID),
	}
	initial := la.state.View()
	la.view.Store(&initial)
	return la, nil
}

// Start subscribes to the channel, fetches the initial snapshot and starts
// the loop. It may be called once.
func (la *LiveAuction) Start() error {
	if !la.started.CompareAndSwap(false, true) {
		return fmt.Errorf("session: already started")
	}
	if la.ctx.Err() != nil {
		return domain.ErrSessionClosed
	}

	la.unsubscribe = la.feed.Subscribe(func(ev domain.LiveEvent) {
		la.enqueue(func() { la.applyEvent(ev) })
	})
	la.statusSub = la.conn.OnStatus(func(status domain.ConnectionStatus) {
		la.enqueue(func() { la.applyStatus(status) })
	})

	// Read the current status on the loop so it is ordered with any
	// transition the handler has already queued.
	la.enqueue(func() { la.applyStatus(la.conn.Status()) })
	la.enqueue(func() { la.startFetch(false) })

	go la.loop()
	la.logger.Info("session started", slog.String("user_id", la.cfg.UserID))
	return nil
}

// View returns the latest reconciled view.
func (la *LiveAuction) View() domain.ReconciledView {
	return *la.view.Load()
}

// Watch returns a channel that receives every new view. Slow readers only
// see the newest view. The channel is closed by cancel or Close.
func (la *LiveAuction) Watch() (<-chan domain.ReconciledView, func()) {
	ch := make(chan domain.ReconciledView, 1)
	ch <- la.View()

	la.watchMu.Lock()
	defer la.watchMu.Unlock()
	if la.closed {
		close(ch)
		return ch, func() {}
	}
	la.watchSeq++
	id := la.watchSeq
	la.watchers[id] = ch

	return ch, func() {
		la.watchMu.Lock()
		defer la.watchMu.Unlock()
		if c, ok := la.watchers[id]; ok {
			delete(la.watchers, id)
			close(c)
		}
	}
}

// SubmitBid validates amount against the current view and sends it. It
// returns domain.ErrStaleSubmission while disconnected, domain.ErrBidTooLow
// below the minimum next bid and domain.ErrAuctionEnded after the end. A
// failed submission is not retried.
func (la *LiveAuction) SubmitBid(ctx context.Context, amount decimal.Decimal) (domain.Submission, error) {
	type result struct {
		sub domain.Submission
		err error
	}
	reply := make(chan result, 1)
	if !la.enqueue(func() {
		sub, err := la.placeBid(amount)
		reply <- result{sub, err}
	}) {
		return domain.Submission{}, domain.ErrSessionClosed
	}

	select {
	case r := <-reply:
		return r.sub, r.err
	case <-ctx.Done():
		return domain.Submission{}, ctx.Err()
	case <-la.done:
		return domain.Submission{}, domain.ErrSessionClosed
	}
}

// RefreshSnapshot forces a snapshot refetch, bypassing the cache.
func (la *LiveAuction) RefreshSnapshot() error {
	if !la.enqueue(func() { la.startFetch(true) }) {
		return domain.ErrSessionClosed
	}
	return nil
}

// RetryConnection asks the channel to reconnect now.
func (la *LiveAuction) RetryConnection() error {
	if la.ctx.Err() != nil {
		return domain.ErrSessionClosed
	}
	la.conn.Reconnect()
	return nil
}

// Done is closed when the loop has stopped.
func (la *LiveAuction) Done() <-chan struct{} {
	return la.done
}

// Close unsubscribes the handlers registered by Start, stops the loop and
// waits for in-flight fetches and notifications. Fetch results that arrive
// after Close are discarded.
func (la *LiveAuction) Close() error {
	la.closeOnce.Do(func() {
		if la.unsubscribe != nil {
			la.unsubscribe()
		}
		if la.statusSub != nil {
			la.conn.Off(la.statusSub)
		}

		la.cancel()
		if la.started.Load() {
			<-la.done
		} else {
			close(la.done)
		}
		la.wg.Wait()

		la.archiveFinal()

		la.watchMu.Lock()
		la.closed = true
		for id, ch := range la.watchers {
			delete(la.watchers, id)
			close(ch)
		}
		la.watchMu.Unlock()

		la.logger.Info("session closed")
	})
	return nil
}

func (la *LiveAuction) loop() {
	defer close(la.done)
	for {
		select {
		case <-la.ctx.Done():
			return
		case fn, ok := <-la.queue.Out:
			if !ok {
				return
			}
			fn()
		}
	}
}

// enqueue hands fn to the loop. It never blocks once the session is closed.
func (la *LiveAuction) enqueue(fn func()) bool {
	if la.ctx.Err() != nil {
		return false
	}
	select {
	case la.queue.In <- fn:
		return true
	case <-la.ctx.Done():
		return false
	}
}

func (la *LiveAuction) applyEvent(ev domain.LiveEvent) {
	next, fx := la.state.Fold(ev, la.clock.Now())
	la.state = next
	la.publish()
	la.handleEffects(fx)
}

func (la *LiveAuction) applyStatus(status domain.ConnectionStatus) {
	next, fx := la.state.WithConnection(status, la.clock.Now())
	la.state = next
	la.publish()
	la.handleEffects(fx)
}

func (la *LiveAuction) handleEffects(fx reconcile.Effects) {
	if fx.Join {
		if err := la.feed.JoinAuction(la.cfg.AuctionID, la.cfg.UserID); err != nil {
			la.logger.Warn("join auction failed", slog.String("error", err.Error()))
		}
	}
	if fx.Refetch {
		la.startFetch(true)
	}
	if fx.Ended {
		la.archivePending = true
		view := la.View()
		la.notify(notify.EventAuctionEnded, "Auction ended", endedMessage(view))
	}
	if fx.ConnectionLost {
		la.notify(notify.EventConnectionLost, "Connection lost", "reconnecting to the auction room")
	}
	if fx.Notify != nil {
		la.notify(notify.EventBidPlaced, "New bid", bidMessage(*fx.Notify, la.View().Currency))
	}
}

// startFetch loads a snapshot in the background. Only the result of the most
// recent fetch is applied.
func (la *LiveAuction) startFetch(force bool) {
	la.generation++
	gen := la.generation
	load := la.snapshots.Fetch
	if force {
		load = la.snapshots.Refetch
	}

	la.wg.Add(1)
	go func() {
		defer la.wg.Done()
		// The fetch runs to completion even if the session closes meanwhile;
		// its result is then dropped by enqueue.
		snap, err := load(context.WithoutCancel(la.ctx), la.cfg.AuctionID)
		la.enqueue(func() { la.applyFetch(gen, snap, err) })
	}()
}

func (la *LiveAuction) applyFetch(gen uint64, snap domain.AuctionSnapshot, err error) {
	if gen != la.generation {
		la.logger.Debug("discarding superseded snapshot", slog.Uint64("generation", gen))
		return
	}
	if err != nil {
		la.logger.Warn("snapshot fetch failed", slog.String("error", err.Error()))
		la.state = la.state.WithFetchError(err)
	} else {
		la.state = la.state.WithSnapshot(snap)
	}
	la.publish()

	if la.archivePending && err == nil {
		la.archivePending = false
		view := la.View()
		la.runAsync(func(ctx context.Context) { la.archive(ctx, view, ReasonEnded) })
	}
}

func (la *LiveAuction) placeBid(amount decimal.Decimal) (domain.Submission, error) {
	if err := la.state.ValidateBid(amount); err != nil {
		return domain.Submission{}, err
	}
	if err := la.feed.PlaceBid(la.cfg.AuctionID, la.cfg.UserID, amount); err != nil {
		if errors.Is(err, domain.ErrNotConnected) {
			return domain.Submission{}, fmt.Errorf("%w: %v", domain.ErrStaleSubmission, err)
		}
		return domain.Submission{}, fmt.Errorf("session: place bid: %w", err)
	}

	now := la.clock.Now()
	sub := domain.Submission{
		ID:          uuid.NewString(),
		Amount:      amount,
		SubmittedAt: now,
		Status:      domain.BidStatusPending,
	}
	la.state = la.state.WithSubmission(sub, now)
	la.publish()
	la.logger.Info("bid submitted",
		slog.String("submission_id", sub.ID),
		slog.String("amount", amount.String()),
	)
	return sub, nil
}

// publish stores and broadcasts the view when the state changed.
func (la *LiveAuction) publish() {
	if la.state.Version() == la.published {
		return
	}
	la.published = la.state.Version()
	v := la.state.View()
	la.view.Store(&v)

	la.watchMu.Lock()
	defer la.watchMu.Unlock()
	for _, ch := range la.watchers {
		select {
		case ch <- v:
		default:
			// Replace the unread view with the newer one.
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
}

func (la *LiveAuction) notify(event, title, message string) {
	if la.notifier == nil {
		return
	}
	la.runAsync(func(ctx context.Context) {
		if err := la.notifier.Notify(ctx, event, title, message); err != nil {
			la.logger.Warn("notification failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	})
}

// runAsync runs fn off the loop with a bounded context. Close waits for it.
func (la *LiveAuction) runAsync(fn func(ctx context.Context)) {
	la.wg.Add(1)
	go func() {
		defer la.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), la.cfg.NotifyTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (la *LiveAuction) archive(ctx context.Context, view domain.ReconciledView, reason string) {
	if la.archiver == nil {
		return
	}
	if _, err := la.archiver.Archive(ctx, view, reason); err != nil {
		la.logger.Warn("transcript archive failed",
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
	}
}

// archiveFinal stores the view as it stood when the session closed.
func (la *LiveAuction) archiveFinal() {
	if la.archiver == nil || !la.state.HasSnapshot() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), la.cfg.NotifyTimeout)
	defer cancel()
	la.archive(ctx, la.View(), ReasonClosed)
}

func bidMessage(ev domain.BidPlaced, currency string) string {
	msg := fmt.Sprintf("%s bid %s", ev.UserID, ev.Amount.String())
	if currency != "" {
		msg += " " + currency
	}
	return msg
}

func endedMessage(v domain.ReconciledView) string {
	if v.WinnerID == "" {
		return fmt.Sprintf("auction %s ended", v.AuctionID)
	}
	msg := fmt.Sprintf("auction %s won by %s", v.AuctionID, v.WinnerID)
	if v.WinningBid != nil {
		msg += " at " + v.WinningBid.String()
	}
	return msg
}
