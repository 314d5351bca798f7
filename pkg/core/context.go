// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type ctxKey int

const (
	runIDKey ctxKey = iota
	roundKey
)

// WithRunID attaches a run id to ctx.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunID returns the run id carried by ctx.
func RunID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey).(string)
	return id, ok && id != ""
}

// EnsureRunID returns ctx with a run id, minting "run-<hex>" when ctx has
// none yet.
func EnsureRunID(ctx context.Context) (context.Context, string) {
	if id, ok := RunID(ctx); ok {
		return ctx, id
	}
	id := "run-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	return WithRunID(ctx, id), id
}

// WithRound attaches the 1-based round number to ctx.
func WithRound(ctx context.Context, round int) context.Context {
	return context.WithValue(ctx, roundKey, round)
}

// Round returns the round number, or 0 outside a round.
func Round(ctx context.Context) int {
	round, _ := ctx.Value(roundKey).(int)
	return round
}
