package syncproto

import (
	"sync"
	"time"
)

// RateLimiter is a stateless-decision minimum-interval gate: a request is
// either allowed now or rejected, nothing is queued.
type RateLimiter struct {
	minInterval time.Duration
	now         func() time.Time

	mu          sync.Mutex
	lastAllowed time.Time
}

// NewRateLimiter creates a limiter allowing at most one request per
// minInterval. A non-positive interval allows everything.
func NewRateLimiter(minInterval time.Duration) *RateLimiter {
	return &RateLimiter{minInterval: minInterval, now: time.Now}
}

// Allow reports whether a request may proceed now, and if so consumes the
// interval.
func (r *RateLimiter) Allow() bool {
	if r.minInterval <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if !r.lastAllowed.IsZero() && now.Sub(r.lastAllowed) < r.minInterval {
		return false
	}
	r.lastAllowed = now
	return true
}
