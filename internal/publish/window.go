package publish

import (
	"sync"
	"time"
)

// Window is a sliding-window counter over outbound sends: at most limit sends
// per rolling span. A limit of zero or less disables the cap.
type Window struct {
	mu    sync.Mutex
	span  time.Duration
	limit int
	sent  []time.Time
	now   func() time.Time
}

// NewWindow creates a send window.
func NewWindow(limit int, span time.Duration) *Window {
	return &Window{span: span, limit: limit, now: time.Now}
}

// SetLimit adjusts the cap between cycles without discarding window history.
func (w *Window) SetLimit(limit int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.limit = limit
}

// Allow reports whether another send fits in the current window.
func (w *Window) Allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.limit <= 0 {
		return true
	}
	w.expire(w.now())
	return len(w.sent) < w.limit
}

// MarkSent records a completed send.
func (w *Window) MarkSent() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sent = append(w.sent, w.now())
}

func (w *Window) expire(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.sent) && w.sent[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w.sent = append(w.sent[:0], w.sent[i:]...)
	}
}
