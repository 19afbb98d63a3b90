package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/livebid/internal/domain"
)

// errQuit stops the application after a quit command.
var errQuit = errors.New("quit requested")

// consoleSession is the part of the live session the console drives.
type consoleSession interface {
	View() domain.ReconciledView
	Watch() (<-chan domain.ReconciledView, func())
	SubmitBid(ctx context.Context, amount decimal.Decimal) (domain.Submission, error)
	RefreshSnapshot() error
	RetryConnection() error
}

// console renders views as status lines and reads bidding commands.
type console struct {
	session consoleSession
	mu      sync.Mutex
	out     io.Writer
	logger  *slog.Logger
}

func newConsole(session consoleSession, out io.Writer, logger *slog.Logger) *console {
	return &console{
		session: session,
		out:     out,
		logger:  logger.With(slog.String("component", "console")),
	}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// render prints one line per published view until ctx ends or the session
// closes.
func (c *console) render(ctx context.Context) error {
	views, cancel := c.session.Watch()
	defer cancel()
	var last *domain.Activity
	for {
		select {
		case <-ctx.Done():
			return nil
		case v, ok := <-views:
			if !ok {
				return nil
			}
			for _, a := range unseenActivity(v.Activity, last) {
				c.printf("  %s %s\n", a.At.Format("15:04:05"), a.Message)
			}
			if n := len(v.Activity); n > 0 {
				last = &v.Activity[n-1]
			}
			c.printf("%s\n", formatView(v))
		}
	}
}

// unseenActivity returns the entries after last. The log is bounded and
// newest-last, so last is searched from the tail.
func unseenActivity(log []domain.Activity, last *domain.Activity) []domain.Activity {
	if last == nil {
		return log
	}
	for i := len(log) - 1; i >= 0; i-- {
		if log[i] == *last {
			return log[i+1:]
		}
	}
	return log
}

// readCommands executes one command per input line. It returns errQuit on
// quit and nil when in reaches EOF.
func (c *console) readCommands(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := c.execute(ctx, line); err != nil {
				return err
			}
		}
	}
}

func (c *console) execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	c.logger.Debug("console command", slog.String("command", fields[0]))

	switch strings.ToLower(fields[0]) {
	case "bid", "b":
		if len(fields) != 2 {
			c.printf("usage: bid <amount>\n")
			return nil
		}
		amount, err := decimal.NewFromString(fields[1])
		if err != nil {
			c.printf("invalid amount %q\n", fields[1])
			return nil
		}
		sub, err := c.session.SubmitBid(ctx, amount)
		if err != nil {
			c.printf("bid rejected: %v\n", err)
			return nil
		}
		c.printf("bid %s submitted (%s)\n", sub.Amount.String(), sub.ID)
	case "refresh", "r":
		if err := c.session.RefreshSnapshot(); err != nil {
			c.printf("refresh failed: %v\n", err)
		}
	case "reconnect":
		if err := c.session.RetryConnection(); err != nil {
			c.printf("reconnect failed: %v\n", err)
		}
	case "view", "v":
		c.printf("%s\n", formatView(c.session.View()))
	case "help", "?":
		c.printf("commands: bid <amount>, refresh, reconnect, view, quit\n")
	case "quit", "exit", "q":
		return errQuit
	default:
		c.printf("unknown command %q (try help)\n", fields[0])
	}
	return nil
}

// formatView renders a one-line summary of v.
func formatView(v domain.ReconciledView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ", v.Connection)
	if v.Title != "" {
		b.WriteString(v.Title)
	} else {
		b.WriteString(v.AuctionID)
	}

	switch {
	case v.Ended:
		b.WriteString(" | ENDED")
		if v.WinnerID != "" {
			fmt.Fprintf(&b, " winner %s", v.WinnerID)
			if v.WinningBid != nil {
				fmt.Fprintf(&b, " at %s", money(*v.WinningBid, v.Currency))
			}
		}
	case v.SnapshotAt.IsZero():
		b.WriteString(" | loading")
	default:
		fmt.Fprintf(&b, " | highest %s | next %s",
			money(v.CurrentHighestBid, v.Currency),
			money(v.MinimumNextBid, v.Currency),
		)
	}

	fmt.Fprintf(&b, " | %d bids | %d online", len(v.RankedBids), v.OnlineCount)
	if pending := countPending(v.Submissions); pending > 0 {
		fmt.Fprintf(&b, " | %d pending", pending)
	}
	if v.Stale {
		b.WriteString(" | stale")
		if v.SnapshotError != "" {
			b.WriteString(": " + v.SnapshotError)
		}
	}
	if v.LastError != "" {
		fmt.Fprintf(&b, " | error: %s", v.LastError)
	}
	return b.String()
}

func money(d decimal.Decimal, currency string) string {
	if currency == "" {
		return d.String()
	}
	return d.String() + " " + currency
}

func countPending(subs []domain.Submission) int {
	n := 0
	for _, s := range subs {
		if s.Status == domain.BidStatusPending {
			n++
		}
	}
	return n
}
