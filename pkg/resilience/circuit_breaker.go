// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/jllopis/agora/pkg/errors"
)

// CircuitBreakerState is where a breaker sits in its closed, open,
// half-open cycle.
type CircuitBreakerState string

// Breaker states.
const (
	StateClosed   CircuitBreakerState = "closed"
	StateOpen     CircuitBreakerState = "open"
	StateHalfOpen CircuitBreakerState = "half-open"
)

// CircuitBreakerConfig tunes a breaker. Zero fields take defaults: five
// failures to open, one probe success to close and a 30s cooldown.
type CircuitBreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	Name             string
}

// CircuitBreaker stops calling a failing dependency for a while. Many
// roles share one LLM client, so the lock is never held while the
// protected call runs.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    CircuitBreakerState
	streak   int // consecutive failures, or probe successes when half-open
	openedAt time.Time
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 5
	}
	cfg.SuccessThreshold = max(cfg.SuccessThreshold, 1)
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = "llm"
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now, state: StateClosed}
}

// Call runs fn unless the circuit is open. An open circuit answers with a
// non-recoverable CodeLLM error so retry loops give up at once.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	if err != nil && ctx.Err() != nil {
		// Cancellation says nothing about the dependency.
		return err
	}
	cb.settle(err == nil)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return nil
	}
	waited := cb.now().Sub(cb.openedAt)
	if waited > cb.cfg.Timeout {
		cb.moveTo(StateHalfOpen)
		return nil
	}
	return errors.New(errors.CodeLLM, "circuit breaker open", nil).
		WithContext("breaker", cb.cfg.Name).
		WithContext("retry_after", cb.cfg.Timeout-waited)
}

func (cb *CircuitBreaker) settle(ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch {
	case !ok && cb.state == StateHalfOpen:
		cb.moveTo(StateOpen)
	case !ok:
		if cb.streak++; cb.streak >= cb.cfg.FailureThreshold {
			cb.moveTo(StateOpen)
		}
	case cb.state == StateHalfOpen:
		if cb.streak++; cb.streak >= cb.cfg.SuccessThreshold {
			cb.moveTo(StateClosed)
		}
	default:
		cb.streak = 0
	}
}

// moveTo changes state and restarts the streak. Callers hold mu.
func (cb *CircuitBreaker) moveTo(s CircuitBreakerState) {
	cb.state = s
	cb.streak = 0
	if s == StateOpen {
		cb.openedAt = cb.now()
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the circuit.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.moveTo(StateClosed)
}
