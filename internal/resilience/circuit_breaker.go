// Package resilience provides the fault-tolerance primitives the
// orchestrator leans on when talking to the notifier: a circuit breaker
// (this file) and exponential backoff with jitter (retry.go).
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is one of the three circuit breaker states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned when a call is rejected because the breaker is open
// or because too many concurrent half-open probes are in flight.
type ErrOpen struct {
	RetryAfter time.Duration
}

func (e *ErrOpen) Error() string { return "circuit breaker is open" }

// Config parameterizes a breaker.
type Config struct {
	FailureThreshold  int
	WindowSize        int
	Timeout           time.Duration
	SuccessThreshold  int
	HalfOpenMaxInFlight int
	OnStateChange     func(name string, from, to State)
}

// DefaultConfig returns conservative defaults for an outbound HTTP dependency.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		WindowSize:          10,
		Timeout:             30 * time.Second,
		SuccessThreshold:    1,
		HalfOpenMaxInFlight: 1,
	}
}

// Breaker is a single named circuit breaker instance. All state mutation
// and the admission decision happen under one mutex; the wrapped function
// always runs outside the lock.
type Breaker struct {
	name string
	cfg  Config

	mu           sync.Mutex
	state        State
	outcomes     []bool // FIFO, bounded by WindowSize; true=success
	openedAt     time.Time
	halfOpenInFlight int
	halfOpenSuccesses int
	now          func() time.Time
}

// New creates a named Breaker, defaulting any zero Config fields.
func New(name string, cfg Config) *Breaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.HalfOpenMaxInFlight <= 0 {
		cfg.HalfOpenMaxInFlight = def.HalfOpenMaxInFlight
	}
	return &Breaker{name: name, cfg: cfg, state: StateClosed, now: time.Now}
}

// Name returns the breaker's name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state, applying the OPEN->HALF_OPEN timeout
// transition as a side effect if it is due.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeProbeLocked()
	return b.state
}

// Call executes fn under breaker protection. fn is invoked outside any
// lock; only the before/after bookkeeping is synchronized.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errNilFn
	}
	if err := b.before(); err != nil {
		return err
	}
	err := fn(ctx)
	b.after(err == nil)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeProbeLocked()

	switch b.state {
	case StateOpen:
		return &ErrOpen{RetryAfter: b.retryAfterLocked()}
	case StateHalfOpen:
		if b.halfOpenInFlight >= b.cfg.HalfOpenMaxInFlight {
			return &ErrOpen{RetryAfter: b.retryAfterLocked()}
		}
		b.halfOpenInFlight++
	}
	return nil
}

func (b *Breaker) after(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.recordOutcomeLocked(success)

	switch b.state {
	case StateHalfOpen:
		b.halfOpenInFlight--
		if success {
			b.halfOpenSuccesses++
			if b.halfOpenSuccesses >= b.cfg.SuccessThreshold {
				b.transitionLocked(StateClosed)
			}
		} else {
			b.transitionLocked(StateOpen)
		}
	case StateClosed:
		if !success && b.failuresInWindowLocked() >= b.cfg.FailureThreshold {
			b.transitionLocked(StateOpen)
		}
	}
}

func (b *Breaker) recordOutcomeLocked(success bool) {
	b.outcomes = append(b.outcomes, success)
	if len(b.outcomes) > b.cfg.WindowSize {
		b.outcomes = b.outcomes[len(b.outcomes)-b.cfg.WindowSize:]
	}
}

func (b *Breaker) failuresInWindowLocked() int {
	n := 0
	for _, ok := range b.outcomes {
		if !ok {
			n++
		}
	}
	return n
}

func (b *Breaker) maybeProbeLocked() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Timeout {
		b.transitionLocked(StateHalfOpen)
	}
}

func (b *Breaker) transitionLocked(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.outcomes = nil
	b.halfOpenInFlight = 0
	b.halfOpenSuccesses = 0
	if to == StateOpen {
		b.openedAt = b.now()
	}
	if b.cfg.OnStateChange != nil {
		go b.cfg.OnStateChange(b.name, from, to)
	}
}

func (b *Breaker) retryAfterLocked() time.Duration {
	remaining := b.cfg.Timeout - b.now().Sub(b.openedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// StatusView is the observable shape exposed over HTTP.
type StatusView struct {
	Name             string
	State            string
	FailureCount     int
	RecentFailureRate float64
	RetryAfterSeconds float64
}

// Status reports the breaker's current view for diagnostics endpoints.
func (b *Breaker) Status() StatusView {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeProbeLocked()

	failures := b.failuresInWindowLocked()
	rate := 0.0
	if len(b.outcomes) > 0 {
		rate = float64(failures) / float64(len(b.outcomes))
	}
	retryAfter := 0.0
	if b.state == StateOpen {
		retryAfter = b.retryAfterLocked().Seconds()
	}
	return StatusView{
		Name:              b.name,
		State:             b.state.String(),
		FailureCount:      failures,
		RecentFailureRate: rate,
		RetryAfterSeconds: retryAfter,
	}
}

// Reset forces the breaker back to CLOSED, clearing all counters. Exposed
// for the operator-facing reset endpoint.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionLocked(StateClosed)
}

// Registry is a lookup map of named breakers, initialized at startup and
// only ever extended by RegisterOnce — never mutated by request handlers.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
}

func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]*Breaker)}
}

// RegisterOnce returns the existing breaker for name, or creates and stores
// one from cfg if this is the first call for that name.
func (r *Registry) RegisterOnce(name string, cfg Config) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, cfg)
	r.breakers[name] = b
	return b
}

// Get returns the named breaker, or nil if it has not been registered.
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.breakers[name]
}

// All returns every registered breaker's status, for a diagnostics listing.
func (r *Registry) All() []StatusView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]StatusView, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Status())
	}
	return out
}

var errNilFn = errors.New("resilience: nil function passed to Call")
