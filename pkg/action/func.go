// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package action

import (
	"context"

	kerrors "github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/message"
)

// RunFunc is the signature adapted by Func.
type RunFunc func(ctx context.Context, history []message.Message) (Output, error)

// Func adapts a plain function to Action.
type Func struct {
	*Base
	fn RunFunc
}

// NewFunc returns an action of type t running fn.
func NewFunc(t message.ActionType, fn RunFunc, opts ...Option) *Func {
	return &Func{Base: NewBase(t, opts...), fn: fn}
}

// Run implements Action.
func (f *Func) Run(ctx context.Context, history []message.Message) (Output, error) {
	return f.fn(ctx, history)
}

// UserRequirement is the action type of externally injected requirements.
// Roles watch it; running it is an error.
func UserRequirement() *Func {
	return NewFunc(message.UserRequirement, func(context.Context, []message.Message) (Output, error) {
		return Output{}, kerrors.New(kerrors.CodeActionFailure, "user requirements are injected, not run", nil)
	})
}
