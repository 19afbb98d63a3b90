// Package notify tells the participant about auction activity they are not
// looking at: someone else's bid, the end of the auction, a dropped
// connection. Notifications go to every registered sender (terminal bell,
// Discord, Telegram) and can be filtered by event type.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Event types understood by the filter.
const (
	EventBidPlaced      = "bid_placed"
	EventAuctionEnded   = "auction_ended"
	EventConnectionLost = "connection_lost"
)

// AllEvents lists every event type a session emits.
var AllEvents = []string{EventBidPlaced, EventAuctionEnded, EventConnectionLost}

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a short identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier fans a notification out to every Sender whose event type passes
// the filter. A nil *Notifier is valid and disabled.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list allows every type.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is registered.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Allows reports whether event passes the filter.
func (n *Notifier) Allows(event string) bool {
	return len(n.events) == 0 || n.events[event]
}

// Notify delivers title and message to every sender when event is allowed.
// One failing sender does not stop the rest; failures come back joined.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	if !n.Allows(event) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.WarnContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("event", event),
		)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}
