package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// bucket holds a client's token bucket and its last access time for eviction.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// TokenBucket is an in-memory per-client limiter backed by golang.org/x/time/rate.
// Each client key gets its own bucket refilled at requestsPerMinute. A
// background goroutine evicts buckets idle for more than 2x the cleanup interval.
type TokenBucket struct {
	rate            rate.Limit
	burst           int
	limit           int
	cleanupInterval time.Duration
	now             Clock

	mu      sync.Mutex
	buckets map[string]*bucket
	done    chan struct{}
	closed  bool
}

// NewTokenBucket creates a limiter with the given requests-per-minute rate,
// burst size and eviction interval, and starts its eviction goroutine.
func NewTokenBucket(requestsPerMinute, burst int, cleanupInterval time.Duration) *TokenBucket {
	return newTokenBucket(requestsPerMinute, burst, cleanupInterval, time.Now)
}

func newTokenBucket(requestsPerMinute, burst int, cleanupInterval time.Duration, now Clock) *TokenBucket {
	tb := &TokenBucket{
		rate:            rate.Every(time.Minute / time.Duration(requestsPerMinute)),
		burst:           burst,
		limit:           requestsPerMinute,
		cleanupInterval: cleanupInterval,
		now:             now,
		buckets:         make(map[string]*bucket),
		done:            make(chan struct{}),
	}
	go tb.evictLoop()
	return tb
}

// Allow takes one token from key's bucket.
func (tb *TokenBucket) Allow(key string) (bool, Info) {
	now := tb.now()

	tb.mu.Lock()
	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(tb.rate, tb.burst)}
		tb.buckets[key] = b
	}
	b.lastSeen = now
	tb.mu.Unlock()

	allowed := b.limiter.AllowN(now, 1)

	tokens := b.limiter.TokensAt(now)
	info := Info{
		Limit:     tb.limit,
		Remaining: int(math.Max(0, math.Floor(tokens))),
		ResetAt:   now,
	}

	// Time until the bucket is full again
	if missing := float64(tb.burst) - tokens; missing > 0 {
		info.ResetAt = now.Add(time.Duration(missing / float64(tb.rate) * float64(time.Second)))
	}

	if !allowed {
		// Time until the next token; the reservation is cancelled right away
		r := b.limiter.ReserveN(now, 1)
		info.RetryAfter = r.DelayFrom(now)
		r.CancelAt(now)
	}

	return allowed, info
}

// Close stops the eviction goroutine.
func (tb *TokenBucket) Close() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if !tb.closed {
		tb.closed = true
		close(tb.done)
	}
}

func (tb *TokenBucket) evictLoop() {
	ticker := time.NewTicker(tb.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-tb.done:
			return
		case <-ticker.C:
			tb.evictIdle()
		}
	}
}

// evictIdle removes buckets not seen within 2x the cleanup interval.
func (tb *TokenBucket) evictIdle() int {
	cutoff := tb.now().Add(-2 * tb.cleanupInterval)

	tb.mu.Lock()
	defer tb.mu.Unlock()

	evicted := 0
	for key, b := range tb.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(tb.buckets, key)
			evicted++
		}
	}
	return evicted
}
