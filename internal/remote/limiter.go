// Package remote is the access layer for the hosted work-tracking service:
// a rate-limited, retrying HTTP client plus the pure transformer between
// task records and the service's column representation.
package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/taskbridgehq/taskbridge/types"
)

// LimiterConfig sets the client-side ceilings enforced before any request
// is sent.
type LimiterConfig struct {
	MaxInFlight       int           // concurrent request cap
	MaxCostPerWindow  int           // rolling cost budget per window
	Window            time.Duration // budget window length
	MaxRequestsPerDay int           // absolute daily request ceiling
	MaxWait           time.Duration // bounded queue wait before rejecting
}

// Limiter tracks in-flight requests, a rolling cost budget and a daily
// request count under one mutex, so a request acquires all three atomically.
type Limiter struct {
	mu  sync.Mutex
	cfg LimiterConfig

	inFlight    int
	windowStart time.Time
	windowCost  int
	dayStart    time.Time
	dayCount    int

	now func() time.Time // test seam
}

// LimiterStats is a point-in-time snapshot for status reporting.
type LimiterStats struct {
	InFlight   int `json:"inFlight"`
	WindowCost int `json:"windowCost"`
	DayCount   int `json:"dayCount"`
}

// NewLimiter creates a limiter; zero ceilings mean unlimited.
func NewLimiter(cfg LimiterConfig) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 5 * time.Second
	}
	return &Limiter{cfg: cfg, now: time.Now}
}

// Acquire blocks (bounded) until the request may be sent, then consumes
// budget and returns a release function for the concurrency slot. When the
// bounded wait elapses it rejects with a RateLimited error carrying the
// earliest sensible resume time.
func (l *Limiter) Acquire(ctx context.Context, cost int) (func(), error) {
	deadline := l.now().Add(l.cfg.MaxWait)
	for {
		l.mu.Lock()
		now := l.now()
		l.rollover(now)

		resumeAt, ok := l.admit(now, cost)
		if ok {
			l.inFlight++
			l.windowCost += cost
			l.dayCount++
			l.mu.Unlock()
			released := false
			return func() {
				l.mu.Lock()
				defer l.mu.Unlock()
				if !released {
					l.inFlight--
					released = true
				}
			}, nil
		}
		l.mu.Unlock()

		// The daily ceiling cannot clear within any reasonable wait.
		if resumeAt.Sub(now) > l.cfg.MaxWait || now.After(deadline) {
			return nil, types.RateLimitedError(resumeAt,
				fmt.Sprintf("client-side rate limit reached, resume at %s", resumeAt.UTC().Format(time.RFC3339)))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}
}

// admit checks all ceilings under the lock. On rejection it returns when
// capacity should next be available.
func (l *Limiter) admit(now time.Time, cost int) (time.Time, bool) {
	if l.cfg.MaxRequestsPerDay > 0 && l.dayCount >= l.cfg.MaxRequestsPerDay {
		return l.dayStart.Add(24 * time.Hour), false
	}
	if l.cfg.MaxCostPerWindow > 0 && l.windowCost+cost > l.cfg.MaxCostPerWindow {
		return l.windowStart.Add(l.cfg.Window), false
	}
	if l.cfg.MaxInFlight > 0 && l.inFlight >= l.cfg.MaxInFlight {
		// A slot frees when some request completes; poll shortly.
		return now.Add(50 * time.Millisecond), false
	}
	return time.Time{}, true
}

// rollover resets expired budget windows. Caller holds the lock.
func (l *Limiter) rollover(now time.Time) {
	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.cfg.Window {
		l.windowStart = now
		l.windowCost = 0
	}
	if l.dayStart.IsZero() || now.Sub(l.dayStart) >= 24*time.Hour {
		l.dayStart = now
		l.dayCount = 0
	}
}

// Stats returns a snapshot of current usage.
func (l *Limiter) Stats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LimiterStats{InFlight: l.inFlight, WindowCost: l.windowCost, DayCount: l.dayCount}
}
