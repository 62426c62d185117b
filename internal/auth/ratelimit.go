package auth

import (
	"sync"
	"time"
)

// Limiter is a per-IP sliding-window rate limiter: at most max attempts per
// window. An attempt is recorded whether or not the request later passes the
// key check, so repeated bad-key probes are throttled too.
type Limiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	max      int
	window   time.Duration
	now      func() time.Time // injectable for deterministic tests
}

// NewLimiter creates a Limiter allowing max attempts per window per IP.
func NewLimiter(max int, window time.Duration) *Limiter {
	return &Limiter{
		attempts: make(map[string][]time.Time),
		max:      max,
		window:   window,
		now:      time.Now,
	}
}

// Allow reports whether ip may make another attempt, recording the attempt
// if so. Attempts older than the window are pruned first.
func (l *Limiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.attempts[ip][:0]
	for _, ts := range l.attempts[ip] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.max {
		l.attempts[ip] = kept
		return false
	}

	l.attempts[ip] = append(kept, now)
	return true
}
