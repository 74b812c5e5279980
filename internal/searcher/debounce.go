package searcher

import (
	"context"
	"sync"
	"time"
)

// DefaultDebounceInterval is the quiet period before a triggered function
// runs
const DefaultDebounceInterval = 300 * time.Millisecond

// Debouncer delays function execution until input has settled. Every
// Trigger supersedes the previous one: a pending timer is stopped and an
// in-flight run has its context cancelled, so only the newest trigger's
// function ever completes delivery.
type Debouncer struct {
	mu         sync.Mutex
	interval   time.Duration
	timer      *time.Timer
	generation uint64
	cancel     context.CancelFunc
	stopped    bool
}

// NewDebouncer creates a debouncer with the given quiet period. Intervals
// of zero or below fall back to the default.
func NewDebouncer(interval time.Duration) *Debouncer {
	if interval <= 0 {
		interval = DefaultDebounceInterval
	}
	return &Debouncer{interval: interval}
}

// Trigger schedules fn to run after the quiet period. The context passed to
// fn is cancelled when a newer trigger arrives, when the parent context is
// cancelled, or when the debouncer stops.
func (d *Debouncer) Trigger(ctx context.Context, fn func(context.Context)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.generation++
	gen := d.generation

	if d.timer != nil {
		d.timer.Stop()
	}
	if d.cancel != nil {
		d.cancel()
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		superseded := d.generation != gen || d.stopped
		d.mu.Unlock()
		if superseded || runCtx.Err() != nil {
			return
		}
		fn(runCtx)
	})
}

// Stop cancels any pending or in-flight work. The debouncer accepts no
// further triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	if d.cancel != nil {
		d.cancel()
	}
}
