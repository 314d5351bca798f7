// SPDX-License-Identifier: Apache-2.0
// Package resilience provides retry and timeout boundaries for LLM calls,
// structured-output parsing and action invocations.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/jllopis/agora/pkg/errors"
)

// RetryConfig is an attempt budget with exponential backoff between
// attempts. The zero value makes a single attempt.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Multiplier grows the delay after every retry. Zero means 2; 1 keeps
	// it fixed.
	Multiplier float64
	// IsRecoverable decides whether an error is worth another attempt.
	// Nil honours the Recoverable flag of typed errors and retries
	// anything untyped.
	IsRecoverable func(error) bool
	// Jitter spreads each delay by up to ±Jitter of its length.
	Jitter float64
}

// DefaultRetryConfig returns the retry policy used for provider calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
		Jitter:       0.1,
	}
}

// FixedRetryConfig waits the same delay between every attempt.
func FixedRetryConfig(attempts int, delay time.Duration) RetryConfig {
	return RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: delay,
		MaxDelay:     delay,
		Multiplier:   1,
	}
}

// WithMaxAttempts returns a copy with MaxAttempts set.
func (rc RetryConfig) WithMaxAttempts(n int) RetryConfig {
	rc.MaxAttempts = n
	return rc
}

// WithInitialDelay returns a copy with InitialDelay set.
func (rc RetryConfig) WithInitialDelay(d time.Duration) RetryConfig {
	rc.InitialDelay = d
	return rc
}

// WithMaxDelay returns a copy with MaxDelay set.
func (rc RetryConfig) WithMaxDelay(d time.Duration) RetryConfig {
	rc.MaxDelay = d
	return rc
}

// WithIsRecoverable returns a copy with IsRecoverable set.
func (rc RetryConfig) WithIsRecoverable(fn func(error) bool) RetryConfig {
	rc.IsRecoverable = fn
	return rc
}

// Do calls fn until it succeeds, returns an unrecoverable error or runs
// out of attempts; the last error is returned. Cancellation while
// waiting yields CodeContextLost.
func (rc RetryConfig) Do(ctx context.Context, fn func() error) error {
	recoverable := rc.IsRecoverable
	if recoverable == nil {
		recoverable = recoverableByFlag
	}
	attempts := max(rc.MaxAttempts, 1)

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil || !recoverable(err) || attempt == attempts {
			return err
		}

		wait := time.NewTimer(rc.delay(attempt))
		select {
		case <-ctx.Done():
			wait.Stop()
			return errors.New(errors.CodeContextLost, "context canceled during retry", ctx.Err()).
				WithContext("attempt", attempt).
				WithContext("max_attempts", attempts).
				WithContext("last_error", err.Error())
		case <-wait.C:
		}
	}
}

// delay is the wait after the given failed attempt, counted from 1: the
// first retry waits InitialDelay.
func (rc RetryConfig) delay(attempt int) time.Duration {
	mult := rc.Multiplier
	if mult == 0 {
		mult = 2
	}
	d := float64(rc.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if rc.MaxDelay > 0 {
		d = math.Min(d, float64(rc.MaxDelay))
	}
	if rc.Jitter > 0 {
		d += d * rc.Jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(math.Max(d, 0))
}

func recoverableByFlag(err error) bool {
	if typed := errors.As(err); typed != nil {
		return typed.Recoverable
	}
	return true
}
