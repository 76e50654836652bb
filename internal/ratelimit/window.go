package ratelimit

import (
	"log/slog"
	"sync"
	"time"
)

type windowEntry struct {
	count int
	start time.Time
}

// Window is a keyed fixed-window counter. Each key holds a count and the
// start of its current window; the window resets on the first call after it
// has elapsed. A single mutex covers every check-and-update, so concurrent
// callers never overshoot the limit.
//
// Window is created once per process and shared by everything that throttles
// keyed operations. Call Close to stop the janitor.
type Window struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	now     Clock

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// WindowOption configures a Window.
type WindowOption func(*Window)

// WithClock overrides the time source.
func WithClock(c Clock) WindowOption {
	return func(w *Window) {
		w.now = c
	}
}

func NewWindow(opts ...WindowOption) *Window {
	w := &Window{
		entries: make(map[string]*windowEntry),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Allow records a call for key and reports whether it fits in the current
// window of at most max calls. A denied call leaves the entry untouched.
func (w *Window) Allow(key string, max int, window time.Duration) bool {
	now := w.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.entries[key]
	if !ok {
		w.entries[key] = &windowEntry{count: 1, start: now}
		return true
	}

	if now.Sub(e.start) > window {
		e.count = 1
		e.start = now
		return true
	}

	if e.count < max {
		e.count++
		return true
	}

	return false
}

// Cleanup removes entries whose window started at least maxAge ago and
// returns how many were removed.
func (w *Window) Cleanup(maxAge time.Duration) int {
	now := w.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	removed := 0
	for key, e := range w.entries {
		if now.Sub(e.start) >= maxAge {
			delete(w.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// StartJanitor runs Cleanup(maxAge) every interval until Close.
func (w *Window) StartJanitor(interval, maxAge time.Duration) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-w.done:
				return
			case <-ticker.C:
				if removed := w.Cleanup(maxAge); removed > 0 {
					slog.Debug("Purged idle rate limit entries", "removed", removed)
				}
			}
		}
	}()
}

// Close stops the janitor and waits for it to exit. It is safe to call more
// than once.
func (w *Window) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
	})
	w.wg.Wait()
}
