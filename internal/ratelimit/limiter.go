// Package ratelimit implements a global sliding-window rate limiter: one
// process-wide instance shared by every concurrent tenant ingestion, so
// the aggregate call rate against the upstream API never exceeds the
// configured budget.
package ratelimit

import (
	"sync"
	"time"
)

// Config parameterizes the limiter: at most Limit acquisitions in any
// trailing Window.
type Config struct {
	Limit  int
	Window time.Duration
}

// DefaultConfig returns the standard budget: 60 requests per 60 seconds.
func DefaultConfig() Config {
	return Config{Limit: 60, Window: 60 * time.Second}
}

// Status is the observable shape of the limiter's current window. No HTTP
// route serves it.
type Status struct {
	Limit           int
	WindowSeconds   float64
	CurrentRequests int
	Remaining       int
}

// Limiter is a global sliding-window counter. Concurrent callers serialize
// through a single mutex guarding the timestamp deque; the wait itself
// happens outside the mutex so one slow waiter never blocks other callers
// from evicting stale timestamps and recording their own acquisition.
type Limiter struct {
	mu         sync.Mutex
	cfg        Config
	timestamps []time.Time
	now        func() time.Time
	sleep      func(time.Duration)
}

// New creates a Limiter from cfg, filling in DefaultConfig for zero values.
func New(cfg Config) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultConfig().Limit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	return &Limiter{
		cfg:   cfg,
		now:   time.Now,
		sleep: time.Sleep,
	}
}

// Acquire blocks until issuing a request now would keep the trailing-window
// acquisition count at or below the configured limit.
func (l *Limiter) Acquire() {
	for {
		wait, ok := l.tryAcquire()
		if ok {
			return
		}
		l.sleep(wait)
	}
}

// tryAcquire evicts stale timestamps and either records an acquisition
// (ok=true) or reports how long the caller must wait before retrying.
func (l *Limiter) tryAcquire() (wait time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.cfg.Window)

	i := 0
	for i < len(l.timestamps) && l.timestamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		l.timestamps = l.timestamps[i:]
	}

	if len(l.timestamps) < l.cfg.Limit {
		l.timestamps = append(l.timestamps, now)
		return 0, true
	}

	oldest := l.timestamps[0]
	wait = l.cfg.Window - now.Sub(oldest) + time.Millisecond
	if wait < 0 {
		wait = time.Millisecond
	}
	return wait, false
}

// Status reports the current utilization of the window.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.cfg.Window)
	i := 0
	for i < len(l.timestamps) && l.timestamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		l.timestamps = l.timestamps[i:]
	}

	current := len(l.timestamps)
	remaining := l.cfg.Limit - current
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		Limit:           l.cfg.Limit,
		WindowSeconds:   l.cfg.Window.Seconds(),
		CurrentRequests: current,
		Remaining:       remaining,
	}
}
