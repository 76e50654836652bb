package ratelimit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualClock is a settable time source for deterministic window tests.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestWindow_AllowsUpToMaxThenDenies(t *testing.T) {
	clock := newManualClock()
	w := NewWindow(WithClock(clock.Now))
	defer w.Close()

	for i := 0; i < 5; i++ {
		assert.True(t, w.Allow("login_alice", 5, 10*time.Second), "call %d", i+1)
	}
	assert.False(t, w.Allow("login_alice", 5, 10*time.Second))

	// Denials do not extend the window
	clock.Advance(10 * time.Second)
	assert.False(t, w.Allow("login_alice", 5, 10*time.Second), "window has not elapsed yet")

	clock.Advance(time.Millisecond)
	assert.True(t, w.Allow("login_alice", 5, 10*time.Second))
}

func TestWindow_ResetStartsCountAtOne(t *testing.T) {
	clock := newManualClock()
	w := NewWindow(WithClock(clock.Now))
	defer w.Close()

	require.True(t, w.Allow("k", 2, time.Minute))
	require.True(t, w.Allow("k", 2, time.Minute))
	require.False(t, w.Allow("k", 2, time.Minute))

	clock.Advance(time.Minute + time.Second)
	assert.True(t, w.Allow("k", 2, time.Minute))
	assert.True(t, w.Allow("k", 2, time.Minute))
	assert.False(t, w.Allow("k", 2, time.Minute))
}

func TestWindow_KeysAreIndependent(t *testing.T) {
	w := NewWindow()
	defer w.Close()

	assert.True(t, w.Allow("login_alice", 1, time.Minute))
	assert.False(t, w.Allow("login_alice", 1, time.Minute))
	assert.True(t, w.Allow("login_bob", 1, time.Minute))
	assert.Equal(t, 2, w.Len())
}

func TestWindow_ConcurrentCallersNeverOvershoot(t *testing.T) {
	w := NewWindow()
	defer w.Close()

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if w.Allow("get_fuels_global", 60, time.Hour) {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(60), allowed.Load())
}

func TestWindow_Cleanup(t *testing.T) {
	clock := newManualClock()
	w := NewWindow(WithClock(clock.Now))
	defer w.Close()

	w.Allow("old", 5, time.Minute)
	clock.Advance(5 * time.Minute)
	w.Allow("fresh", 5, time.Minute)

	removed := w.Cleanup(5 * time.Minute)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, w.Len())

	// A purged key starts a new window
	assert.True(t, w.Allow("old", 1, time.Minute))
}

func TestWindow_Janitor(t *testing.T) {
	w := NewWindow()

	for i := 0; i < 10; i++ {
		w.Allow(fmt.Sprintf("key-%d", i), 1, time.Minute)
	}
	require.Equal(t, 10, w.Len())

	w.StartJanitor(10*time.Millisecond, 0)

	assert.Eventually(t, func() bool {
		return w.Len() == 0
	}, time.Second, 10*time.Millisecond)

	w.Close()
	// Should not panic on double close
	w.Close()
}
