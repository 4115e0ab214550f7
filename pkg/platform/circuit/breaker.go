// Package circuit provides a simple circuit breaker implementation for resilience.
package circuit

import (
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means the circuit is healthy and requests flow normally.
	StateClosed State = iota
	// StateOpen means the circuit has tripped and requests should use fallback.
	StateOpen
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

// StateChange represents a circuit breaker state transition.
type StateChange struct {
	Opened bool
	Closed bool
}

// Breaker tracks consecutive failures of a primary dependency.
// After FailureThreshold consecutive failures the circuit opens. While open,
// the primary is probed at most once per cooldown; after SuccessThreshold
// consecutive successful probes the circuit closes again.
type Breaker struct {
	mu               sync.Mutex
	state            State
	name             string
	failureCount     int
	successCount     int
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	lastFailureAt    time.Time
	onChange         func(name string, to State)
}

// Option configures a Breaker instance.
type Option func(*Breaker)

// WithFailureThreshold sets the number of consecutive failures to open the circuit.
// Default is 5.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

// WithSuccessThreshold sets the number of consecutive successes to close the circuit.
// Default is 3.
func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.successThreshold = n
		}
	}
}

// WithCooldown sets how long an open circuit waits before probing the primary again.
// Zero probes on every call. Default is one second.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d >= 0 {
			b.cooldown = d
		}
	}
}

// WithStateHook registers fn to be called after each transition, outside the lock.
func WithStateHook(fn func(name string, to State)) Option {
	return func(b *Breaker) {
		b.onChange = fn
	}
}

// New creates a circuit breaker with the given name and options.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		state:            StateClosed,
		failureThreshold: 5,
		successThreshold: 3,
		cooldown:         time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Name returns the circuit breaker's name for logging/metrics.
func (b *Breaker) Name() string {
	return b.name
}

// IsOpen returns true if the circuit is open (tripped).
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateOpen
}

// State returns the current circuit state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ShouldTryPrimary reports whether the caller should attempt the primary at now.
// A closed circuit always does; an open circuit only once the cooldown since
// the last failure has elapsed.
func (b *Breaker) ShouldTryPrimary(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateClosed {
		return true
	}
	return now.Sub(b.lastFailureAt) >= b.cooldown
}

// RecordFailure records a failed operation at now.
// Returns (useFallback, stateChange):
//   - useFallback: true if the circuit is now open and callers should use fallback
//   - stateChange: indicates if the circuit just transitioned states
func (b *Breaker) RecordFailure(now time.Time) (useFallback bool, change StateChange) {
	b.mu.Lock()
	b.failureCount++
	b.successCount = 0
	b.lastFailureAt = now

	switch {
	case b.state == StateOpen:
		useFallback = true
	case b.failureCount >= b.failureThreshold:
		b.state = StateOpen
		useFallback, change = true, StateChange{Opened: true}
	}
	b.mu.Unlock()

	if change.Opened {
		b.notify(StateOpen)
	}
	return useFallback, change
}

// RecordSuccess records a successful operation.
// Returns (usePrimary, stateChange):
//   - usePrimary: true if the caller should use the primary path
//   - stateChange: indicates if the circuit just transitioned states
func (b *Breaker) RecordSuccess() (usePrimary bool, change StateChange) {
	b.mu.Lock()
	if b.state == StateOpen {
		b.successCount++
		if b.successCount >= b.successThreshold {
			b.state = StateClosed
			b.failureCount = 0
			b.successCount = 0
			usePrimary, change = true, StateChange{Closed: true}
		}
	} else {
		b.failureCount = 0
		usePrimary = true
	}
	b.mu.Unlock()

	if change.Closed {
		b.notify(StateClosed)
	}
	return usePrimary, change
}

// Reset resets the circuit breaker to closed state with zero counts.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failureCount = 0
	b.successCount = 0
	b.lastFailureAt = time.Time{}
}

func (b *Breaker) notify(to State) {
	if b.onChange != nil {
		b.onChange(b.name, to)
	}
}
