// Package ratelimit provides the station's two throttles: a keyed fixed-window
// counter that guards logins and catalog reads, and a per-client token bucket
// with HTTP middleware that sets standard rate limit response headers.
package ratelimit

import "time"

// Limiter defines the token bucket contract used by the HTTP middleware.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow checks whether a request identified by key should be allowed.
	// Returns whether the request is allowed and rate information for
	// populating response headers.
	Allow(key string) (allowed bool, info Info)

	// Close stops background goroutines and releases resources.
	Close()
}

// Info contains rate limit state for populating response headers.
type Info struct {
	Limit      int           // Maximum requests per window
	Remaining  int           // Approximate tokens remaining
	ResetAt    time.Time     // When the bucket will be full again
	RetryAfter time.Duration // How long to wait (meaningful only when denied)
}

// Clock returns the current time. Tests substitute a manual clock.
type Clock func() time.Time
