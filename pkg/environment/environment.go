// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

// Package environment hosts roles around a shared message memory and
// runs them in rounds separated by a barrier: no role starts round N+1
// before every role has finished round N.
package environment

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/jllopis/agora/pkg/core"
	kerrors "github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/memory"
	"github.com/jllopis/agora/pkg/message"
	"github.com/jllopis/agora/pkg/role"
	"github.com/jllopis/agora/pkg/telemetry"
)

// RoundObserver is told when a round starts and how it ended.
// *telemetry.RuntimeMetrics implements it.
type RoundObserver interface {
	RoundStarted(ctx context.Context, round, roles int)
	RoundCompleted(ctx context.Context, round int, err error)
}

var _ RoundObserver = (*telemetry.RuntimeMetrics)(nil)

// Environment holds the roles, the shared memory and the history log.
type Environment struct {
	mu     sync.RWMutex
	roles  map[string]*role.Role
	order  []string
	rounds int

	memory *memory.Memory

	histMu  sync.Mutex
	history strings.Builder

	observer       RoundObserver
	maxConcurrency int
	logger         *slog.Logger
	events         core.EventEmitter
	tracer         trace.Tracer
}

var _ role.Environment = (*Environment)(nil)

// Option configures an Environment.
type Option func(*Environment)

// WithRoundObserver sets the round observer.
func WithRoundObserver(obs RoundObserver) Option {
	return func(e *Environment) { e.observer = obs }
}

// WithMaxConcurrency caps how many roles run at once within a round.
// Zero or less means no cap.
func WithMaxConcurrency(n int) Option {
	return func(e *Environment) { e.maxConcurrency = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Environment) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithEventEmitter sets the receiver of round events.
func WithEventEmitter(emitter core.EventEmitter) Option {
	return func(e *Environment) {
		if emitter != nil {
			e.events = emitter
		}
	}
}

// WithTracer overrides the global "agora/environment" tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Environment) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// New returns an empty environment.
func New(opts ...Option) *Environment {
	e := &Environment{
		roles:  make(map[string]*role.Role),
		memory: memory.New(),
		logger: slog.Default(),
		events: core.NoopEventEmitter{},
		tracer: otel.Tracer("agora/environment"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddRole attaches r and registers it under its profile, replacing any
// role with the same profile.
func (e *Environment) AddRole(r *role.Role) {
	r.SetEnvironment(e)

	e.mu.Lock()
	defer e.mu.Unlock()
	profile := r.Profile()
	if _, ok := e.roles[profile]; !ok {
		e.order = append(e.order, profile)
	}
	e.roles[profile] = r
}

// AddRoles adds every role in order.
func (e *Environment) AddRoles(roles ...*role.Role) {
	for _, r := range roles {
		e.AddRole(r)
	}
}

// GetRole returns the role registered under profile, or nil.
func (e *Environment) GetRole(profile string) *role.Role {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.roles[profile]
}

// GetRoles returns a copy of the registry.
func (e *Environment) GetRoles() map[string]*role.Role {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return maps.Clone(e.roles)
}

// Memory returns the shared memory.
func (e *Environment) Memory() *memory.Memory { return e.memory }

// History returns the history log, one "\n<role>: <content>" per publish.
func (e *Environment) History() string {
	e.histMu.Lock()
	defer e.histMu.Unlock()
	return e.history.String()
}

// Rounds returns how many rounds have completed.
func (e *Environment) Rounds() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rounds
}

// PublishMessage stores msg in the shared memory and appends it to the
// history log. Recipients are not checked.
func (e *Environment) PublishMessage(ctx context.Context, msg message.Message) error {
	if err := e.memory.Add(ctx, msg); err != nil {
		return err
	}
	e.histMu.Lock()
	e.history.WriteString("\n")
	e.history.WriteString(msg.String())
	e.histMu.Unlock()
	e.logger.DebugContext(ctx, "message published", "role", msg.Role, "cause_by", msg.CauseBy)
	return nil
}

// Run plays k rounds. It stops after the first round in which a role
// failed and returns that round's errors joined.
func (e *Environment) Run(ctx context.Context, k int) error {
	ctx, _ = core.EnsureRunID(ctx)
	for i := 0; i < k; i++ {
		if err := ctx.Err(); err != nil {
			return kerrors.New(kerrors.CodeContextLost, "run canceled between rounds", err).
				WithContext("round", e.Rounds()+1)
		}
		if err := e.RunRound(ctx); err != nil {
			return err
		}
	}
	return nil
}

// RunRound runs every registered role once, concurrently, and waits for
// all of them.
func (e *Environment) RunRound(ctx context.Context) error {
	e.mu.RLock()
	round := e.rounds + 1
	roles := make([]*role.Role, 0, len(e.order))
	for _, profile := range e.order {
		roles = append(roles, e.roles[profile])
	}
	e.mu.RUnlock()

	ctx, runID := core.EnsureRunID(ctx)
	ctx = core.WithRound(ctx, round)
	ctx, span := e.tracer.Start(ctx, "environment.round", trace.WithAttributes(
		telemetry.RoundAttributes(runID, round, len(roles))...,
	))
	defer span.End()

	if e.observer != nil {
		e.observer.RoundStarted(ctx, round, len(roles))
	}
	e.events.Emit(ctx, core.NewEvent(ctx, core.EventRoundStarted, "", map[string]any{"roles": len(roles)}))
	e.logger.DebugContext(ctx, "round started", "run_id", runID, "round", round, "roles", len(roles))

	errs := make([]error, len(roles))
	var g errgroup.Group
	if e.maxConcurrency > 0 {
		g.SetLimit(e.maxConcurrency)
	}
	for i, r := range roles {
		g.Go(func() error {
			_, errs[i] = r.Run(ctx)
			return nil
		})
	}
	_ = g.Wait()
	err := errors.Join(errs...)

	e.mu.Lock()
	e.rounds = round
	e.mu.Unlock()

	if e.observer != nil {
		e.observer.RoundCompleted(ctx, round, err)
	}
	payload := map[string]any{"failed": err != nil}
	e.events.Emit(ctx, core.NewEvent(ctx, core.EventRoundCompleted, "", payload))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.ErrorContext(ctx, "round failed", "run_id", runID, "round", round, "error", err)
		return err
	}
	e.logger.DebugContext(ctx, "round completed", "run_id", runID, "round", round)
	return nil
}
