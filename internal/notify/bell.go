package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// BellSender rings the terminal bell and prints a one-line summary. It is
// the default sender in watch mode.
type BellSender struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewBellSender writes to w, typically os.Stderr.
func NewBellSender(w io.Writer) *BellSender {
	return &BellSender{w: w, now: time.Now}
}

func (b *BellSender) Send(_ context.Context, title, message string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := fmt.Fprintf(b.w, "\a[%s] %s: %s\n", b.now().Format(time.TimeOnly), title, message)
	if err != nil {
		return fmt.Errorf("bell: write: %w", err)
	}
	return nil
}

func (b *BellSender) Name() string {
	return "bell"
}
