// Package ratelimit guards the shared upstream quota with a sliding-window
// limiter. Only requests that reach the upstream consume a slot; cache hits
// and validation failures never do.
package ratelimit

import (
	"sync"
	"time"
)

// Defaults match the upstream's published quota for a single client.
const (
	DefaultMax    = 30
	DefaultWindow = time.Minute
)

// Limiter is a process-wide sliding window over upstream request timestamps.
// At any instant it holds at most max timestamps, all younger than window.
type Limiter struct {
	mu         sync.Mutex
	timestamps []time.Time
	max        int
	window     time.Duration
	now        func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock injects the time source. Tests use it to step the window.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New creates a limiter allowing limit acquisitions per window. Non-positive
// values fall back to DefaultMax and DefaultWindow.
func New(limit int, window time.Duration, opts ...Option) *Limiter {
	if limit <= 0 {
		limit = DefaultMax
	}
	if window <= 0 {
		window = DefaultWindow
	}
	l := &Limiter{
		timestamps: make([]time.Time, 0, limit),
		max:        limit,
		window:     window,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TryAcquire records an upstream request if a slot is free. Denied attempts
// leave the window untouched.
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)
	if len(l.timestamps) >= l.max {
		return false
	}
	l.timestamps = append(l.timestamps, now)
	return true
}

// Remaining reports how many slots are free right now without consuming one.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.now())
	return l.max - len(l.timestamps)
}

// SecondsUntilNextSlot is the whole number of seconds until the oldest
// timestamp leaves the window, rounded up. Zero means a slot is free.
func (l *Limiter) SecondsUntilNextSlot() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)
	if len(l.timestamps) < l.max {
		return 0
	}
	wait := l.timestamps[0].Add(l.window).Sub(now)
	secs := int(wait / time.Second)
	if wait%time.Second > 0 {
		secs++
	}
	return max(secs, 0)
}

// Window is the configured window length.
func (l *Limiter) Window() time.Duration { return l.window }

// prune drops timestamps at or before now-window. Must hold l.mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for ; i < len(l.timestamps); i++ {
		if l.timestamps[i].After(cutoff) {
			break
		}
	}
	if i > 0 {
		l.timestamps = append(l.timestamps[:0], l.timestamps[i:]...)
	}
}
