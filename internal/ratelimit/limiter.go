// Package ratelimit paces outbound calls per external service so tagflow
// stays inside each oracle's request budget.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultInterval is the conservative floor applied to services without an
// explicit configuration (one request per 1.5 seconds).
const DefaultInterval = 1500 * time.Millisecond

// Limiter hands out per-service tokens. Acquire blocks until a slot is
// available or the context is cancelled, so cancellation is always observed
// within the pacing interval.
type Limiter struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	intervals map[string]time.Duration
}

// New constructs a limiter with per-service intervals. Services not present
// in intervals fall back to DefaultInterval.
func New(intervals map[string]time.Duration) *Limiter {
	copied := make(map[string]time.Duration, len(intervals))
	for service, interval := range intervals {
		if interval > 0 {
			copied[service] = interval
		}
	}
	return &Limiter{
		limiters:  make(map[string]*rate.Limiter),
		intervals: copied,
	}
}

// Acquire blocks until the service has a free slot. Returns the context
// error if cancelled while waiting.
func (l *Limiter) Acquire(ctx context.Context, service string) error {
	return l.limiterFor(service).Wait(ctx)
}

// Backoff consumes tokens ahead of time so the next Acquire for the service
// waits at least the penalty duration. Used after a 429 response.
func (l *Limiter) Backoff(service string, penalty time.Duration) {
	limiter := l.limiterFor(service)
	interval := l.intervalFor(service)
	if interval <= 0 {
		return
	}
	slots := int(penalty / interval)
	for i := 0; i < slots; i++ {
		limiter.Reserve()
	}
}

func (l *Limiter) limiterFor(service string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.limiters[service]; ok {
		return limiter
	}
	limiter := rate.NewLimiter(rate.Every(l.intervalFor(service)), 1)
	l.limiters[service] = limiter
	return limiter
}

func (l *Limiter) intervalFor(service string) time.Duration {
	if interval, ok := l.intervals[service]; ok {
		return interval
	}
	return DefaultInterval
}
