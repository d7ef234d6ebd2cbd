// Package circuitbreaker stops calling a PSP endpoint that keeps failing.
// An open circuit fails the call immediately; nothing here retries.
package circuitbreaker

import (
	"sync"
	"time"
)

// State represents the state of the circuit breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

const (
	defaultFailureThreshold         = 5
	defaultResetTimeout             = 30 * time.Second
	defaultHalfOpenSuccessThreshold = 2
)

// Config holds the breaker thresholds. Zero values fall back to defaults.
type Config struct {
	FailureThreshold         int           // Consecutive failures that open the circuit
	ResetTimeout             time.Duration // Time spent Open before probing in HalfOpen
	HalfOpenSuccessThreshold int           // Successes in HalfOpen needed to close again
}

// endpointState holds the current state for a single endpoint.
type endpointState struct {
	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	openUntil            time.Time
}

// CircuitBreaker tracks health per endpoint key and is safe for concurrent use.
type CircuitBreaker struct {
	mu        sync.Mutex
	endpoints map[string]*endpointState
	cfg       Config
	now       func() time.Time
}

// NewCircuitBreaker creates a CircuitBreaker, applying defaults to unset fields.
func NewCircuitBreaker(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = defaultResetTimeout
	}
	if cfg.HalfOpenSuccessThreshold <= 0 {
		cfg.HalfOpenSuccessThreshold = defaultHalfOpenSuccessThreshold
	}
	return &CircuitBreaker{
		endpoints: make(map[string]*endpointState),
		cfg:       cfg,
		now:       time.Now,
	}
}

// getState assumes cb.mu is held.
func (cb *CircuitBreaker) getState(key string) *endpointState {
	es, ok := cb.endpoints[key]
	if !ok {
		es = &endpointState{state: StateClosed}
		cb.endpoints[key] = es
	}
	return es
}

// AllowRequest reports whether a call to key may go out.
// An Open circuit whose timeout expired moves to HalfOpen and lets calls through.
func (cb *CircuitBreaker) AllowRequest(key string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	es := cb.getState(key)
	switch es.state {
	case StateOpen:
		if cb.now().After(es.openUntil) {
			es.state = StateHalfOpen
			es.consecutiveSuccesses = 0
			return true
		}
		return false
	default:
		return true
	}
}

// RecordFailure records a failed call to key.
func (cb *CircuitBreaker) RecordFailure(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	es := cb.getState(key)
	switch es.state {
	case StateClosed:
		es.consecutiveFailures++
		if es.consecutiveFailures >= cb.cfg.FailureThreshold {
			es.state = StateOpen
			es.openUntil = cb.now().Add(cb.cfg.ResetTimeout)
		}
	case StateHalfOpen:
		es.state = StateOpen
		es.openUntil = cb.now().Add(cb.cfg.ResetTimeout)
		es.consecutiveFailures = 0
		es.consecutiveSuccesses = 0
	}
}

// RecordSuccess records a successful call to key.
func (cb *CircuitBreaker) RecordSuccess(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	es := cb.getState(key)
	switch es.state {
	case StateClosed:
		es.consecutiveFailures = 0
	case StateHalfOpen:
		es.consecutiveSuccesses++
		if es.consecutiveSuccesses >= cb.cfg.HalfOpenSuccessThreshold {
			es.state = StateClosed
			es.consecutiveFailures = 0
			es.consecutiveSuccesses = 0
		}
	}
}

// Status returns the state and consecutive failure count for key without
// triggering any transition.
func (cb *CircuitBreaker) Status(key string) (State, int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	es, ok := cb.endpoints[key]
	if !ok {
		return StateClosed, 0
	}
	return es.state, es.consecutiveFailures
}
