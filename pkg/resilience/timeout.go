// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	"time"

	"github.com/jllopis/agora/pkg/errors"
)

// WithTimeout runs fn with a deadline derived from ctx.
// A zero duration runs fn without a deadline. When the deadline passes
// before fn returns, a recoverable errors.CodeTimeout error is returned and
// fn keeps its canceled context so it can stop its own I/O.
func WithTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case <-ctx.Done():
		return errors.New(errors.CodeTimeout, "operation exceeded timeout", ctx.Err()).
			WithContext("timeout", d.String()).
			WithRecoverable(true)
	case err := <-done:
		return err
	}
}
