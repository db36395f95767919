package ratelimit

import (
	"sync"
	"time"
)

const (
	// Window is the fixed sliding window all buckets share.
	Window = 60 * time.Second

	// AuthLimit protects login-code and password submission endpoints.
	AuthLimit = 5
	// GeneralLimit protects everything else on the control surface.
	GeneralLimit = 30

	defaultSweepThreshold = 1000
)

// Limiter counts requests per key inside a sliding window. Keys are
// unbounded (every remote client mints one), so once the map grows past the
// sweep threshold fully-expired keys are dropped, amortizing cleanup over
// requests.
type Limiter struct {
	mu             sync.Mutex
	window         time.Duration
	sweepThreshold int
	seen           map[string][]time.Time
	now            func() time.Time
}

type Option func(*Limiter)

// WithSweepThreshold overrides the map size that triggers a dead-key sweep.
func WithSweepThreshold(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.sweepThreshold = n
		}
	}
}

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(opts ...Option) *Limiter {
	l := &Limiter{
		window:         Window,
		sweepThreshold: defaultSweepThreshold,
		seen:           make(map[string][]time.Time),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow records the request for key and reports whether it stays within
// limit for the current window. Rejected requests are recorded too.
func (l *Limiter) Allow(key string, limit int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	entries := l.seen[key]
	kept := entries[:0]
	for _, t := range entries {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	l.seen[key] = kept

	if len(l.seen) > l.sweepThreshold {
		l.sweepLocked(cutoff)
	}
	return len(kept) <= limit
}

// Sweep drops keys whose every entry has expired.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked(l.now().Add(-l.window))
}

func (l *Limiter) sweepLocked(cutoff time.Time) {
	for key, entries := range l.seen {
		alive := false
		for _, t := range entries {
			if t.After(cutoff) {
				alive = true
				break
			}
		}
		if !alive {
			delete(l.seen, key)
		}
	}
}

// Keys reports the number of tracked keys.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}
