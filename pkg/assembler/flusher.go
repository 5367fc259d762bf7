package assembler

import (
	"sync"
	"time"
)

// Flusher coalesces content-block update notifications onto a timer boundary
// so UI writes stay cheap. It is purely a performance optimization: replay
// runs with a suppressed flusher and correctness never depends on flush
// timing. A bounded number of pending notifications forces a flush early.
type Flusher struct {
	mu         sync.Mutex
	interval   time.Duration
	maxPending int
	pending    int
	suppressed bool
	timer      *time.Timer
	flush      func()
	closed     bool
}

// NewFlusher creates a flusher invoking fn on each coalesced flush
func NewFlusher(interval time.Duration, maxPending int, fn func()) *Flusher {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	if maxPending <= 0 {
		maxPending = 32
	}
	return &Flusher{
		interval:   interval,
		maxPending: maxPending,
		flush:      fn,
	}
}

// Suppress disables notifications entirely (replay mode)
func (f *Flusher) Suppress(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suppressed = on
}

// Notify records that blocks changed; the flush runs on the next timer tick,
// and hitting the pending bound forces an immediate tick. The flush callback
// always runs on the timer goroutine, never inline on the notifier, so
// callers may hold locks the callback also takes.
func (f *Flusher) Notify() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.suppressed || f.closed {
		return
	}
	f.pending++
	if f.pending >= f.maxPending {
		f.stopTimerLocked()
		f.timer = time.AfterFunc(0, f.fire)
		return
	}
	if f.timer == nil {
		f.timer = time.AfterFunc(f.interval, f.fire)
	}
}

func (f *Flusher) fire() {
	f.mu.Lock()
	f.timer = nil
	dirty := f.pending > 0 && !f.closed
	f.pending = 0
	f.mu.Unlock()
	if dirty {
		f.flush()
	}
}

// Drain flushes any pending notification and stops the timer. Must be called
// before a context is finalized or discarded.
func (f *Flusher) Drain() {
	f.mu.Lock()
	f.stopTimerLocked()
	dirty := f.pending > 0 && !f.suppressed && !f.closed
	f.pending = 0
	f.mu.Unlock()
	if dirty {
		f.flush()
	}
}

// Close drains and permanently disables the flusher
func (f *Flusher) Close() {
	f.Drain()
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *Flusher) stopTimerLocked() {
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}
