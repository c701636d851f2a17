package llm

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is the cause wrapped by every rejection from the breaker.
var ErrCircuitOpen = errors.New("llm circuit breaker open")

// CircuitState is the position of the re-evaluation breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	// CircuitHalfOpen admits exactly one probe call.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreakerConfig sets when the breaker trips and how long it stays open.
type CircuitBreakerConfig struct {
	Threshold  int
	ResetAfter time.Duration
}

// BreakerStatus is a point-in-time view of the breaker.
type BreakerStatus struct {
	State               CircuitState
	ConsecutiveFailures int
	OpenedAt            time.Time
}

// CircuitBreaker guards the LLM provider used for re-evaluation. It opens after
// Threshold consecutive failures and admits one probe once ResetAfter elapses.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
}

// NewCircuitBreaker returns a closed breaker. A non-positive threshold is
// treated as 1.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.Threshold < 1 {
		cfg.Threshold = 1
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Allow reports whether a call may proceed. The returned error is an
// ErrorTypeCircuitOpen *Error wrapping ErrCircuitOpen.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		waited := cb.now().Sub(cb.openedAt)
		if waited >= cb.cfg.ResetAfter {
			cb.state = CircuitHalfOpen
			return nil
		}
		msg := fmt.Sprintf("provider unavailable after %d consecutive failures, retry in %v",
			cb.failures, (cb.cfg.ResetAfter - waited).Round(time.Second))
		return NewError(ErrorTypeCircuitOpen, msg, true, ErrCircuitOpen)
	default:
		return NewError(ErrorTypeCircuitOpen, "probe call in flight", true, ErrCircuitOpen)
	}
}

// RecordSuccess closes the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	cb.state = CircuitClosed
	cb.failures = 0
	cb.openedAt = time.Time{}
	cb.mu.Unlock()
}

// RecordFailure counts a failed call. It returns true when this failure
// moved the breaker to open.
func (cb *CircuitBreaker) RecordFailure() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.state == CircuitHalfOpen || (cb.state == CircuitClosed && cb.failures >= cb.cfg.Threshold) {
		cb.state = CircuitOpen
		cb.openedAt = cb.now()
		return true
	}
	return false
}

func (cb *CircuitBreaker) State() CircuitState {
	return cb.Status().State
}

func (cb *CircuitBreaker) ConsecutiveFailures() int {
	return cb.Status().ConsecutiveFailures
}

// Status returns the breaker state together with its failure count.
func (cb *CircuitBreaker) Status() BreakerStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerStatus{State: cb.state, ConsecutiveFailures: cb.failures, OpenedAt: cb.openedAt}
}
