// Package resilience provides the failure-handling primitives used by
// the tool bridge: a per-tool circuit breaker and backoff calculation.
package resilience

import (
	"sync"
	"time"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed allows all requests through
	StateClosed CircuitState = iota
	// StateOpen blocks all requests until the open window elapses
	StateOpen
)

// String returns the string representation of the state
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// CircuitBreaker tracks consecutive failures for one tool and gates
// execution with a time-bound open window. It lives for the process
// and is safe for concurrent use across requests.
type CircuitBreaker struct {
	mu                  sync.Mutex
	name                string
	consecutiveFailures int
	openedUntil         time.Time

	now func() time.Time // injectable clock for tests
}

// NewCircuitBreaker creates a closed breaker for the named tool.
func NewCircuitBreaker(name string) *CircuitBreaker {
	return &CircuitBreaker{name: name, now: time.Now}
}

// Name returns the tool name the breaker guards.
func (cb *CircuitBreaker) Name() string { return cb.name }

// CanExecute reports whether a call may proceed. The breaker closes
// implicitly once the open window has elapsed.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.now().After(cb.openedUntil) || cb.openedUntil.IsZero()
}

// RecordFailure increments the consecutive-failure count and opens the
// breaker for openFor once threshold is reached.
func (cb *CircuitBreaker) RecordFailure(threshold int, openFor time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures++
	if threshold > 0 && cb.consecutiveFailures >= threshold {
		cb.openedUntil = cb.now().Add(openFor)
	}
}

// RecordSuccess resets the failure count and closes the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures = 0
	cb.openedUntil = time.Time{}
}

// GetState returns the current state.
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.openedUntil.IsZero() && cb.now().Before(cb.openedUntil) {
		return StateOpen
	}
	return StateClosed
}

// ConsecutiveFailures returns the current failure streak.
func (cb *CircuitBreaker) ConsecutiveFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.consecutiveFailures
}

// SetClock overrides the breaker clock. Tests only.
func (cb *CircuitBreaker) SetClock(now func() time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.now = now
}
