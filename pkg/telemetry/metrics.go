// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	kerrors "github.com/jllopis/agora/pkg/errors"
)

// Role run outcomes.
const (
	OutcomeActed  = "acted"
	OutcomeIdle   = "idle"
	OutcomeFailed = "failed"
)

// RuntimeMetrics records rounds, published messages, role runs, errors
// and action latency. A nil *RuntimeMetrics records nothing.
type RuntimeMetrics struct {
	rounds         metric.Int64Counter
	published      metric.Int64Counter
	roleRuns       metric.Int64Counter
	errors         metric.Int64Counter
	actionDuration metric.Float64Histogram
}

// NewRuntimeMetrics creates the instruments on meter, or on the global
// "agora/runtime" meter when meter is nil.
func NewRuntimeMetrics(meter metric.Meter) (*RuntimeMetrics, error) {
	if meter == nil {
		meter = otel.Meter("agora/runtime")
	}

	rounds, err := meter.Int64Counter(
		"agora.rounds",
		metric.WithDescription("Environment rounds started"),
	)
	if err != nil {
		return nil, err
	}

	published, err := meter.Int64Counter(
		"agora.messages.published",
		metric.WithDescription("Messages published to the environment by role and action"),
	)
	if err != nil {
		return nil, err
	}

	roleRuns, err := meter.Int64Counter(
		"agora.role.runs",
		metric.WithDescription("Role runs by outcome (acted, idle, failed)"),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"agora.errors",
		metric.WithDescription("Errors by code and component"),
	)
	if err != nil {
		return nil, err
	}

	actionDuration, err := meter.Float64Histogram(
		"agora.action.duration",
		metric.WithDescription("Action run latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &RuntimeMetrics{
		rounds:         rounds,
		published:      published,
		roleRuns:       roleRuns,
		errors:         errorCounter,
		actionDuration: actionDuration,
	}, nil
}

// RoundStarted counts a round.
func (m *RuntimeMetrics) RoundStarted(ctx context.Context, round, roles int) {
	if m == nil {
		return
	}
	m.rounds.Add(ctx, 1, metric.WithAttributes(attribute.Int(AttrRolesCount, roles)))
}

// RoundCompleted records the error of a failed round.
func (m *RuntimeMetrics) RoundCompleted(ctx context.Context, round int, err error) {
	m.RecordError(ctx, err, "environment")
}

// RecordPublished counts a message published by profile.
func (m *RuntimeMetrics) RecordPublished(ctx context.Context, profile, action string) {
	if m == nil {
		return
	}
	m.published.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrRoleProfile, profile),
		attribute.String(AttrActionType, action),
	))
}

// RecordRoleRun counts one role run with its outcome.
func (m *RuntimeMetrics) RecordRoleRun(ctx context.Context, profile, outcome string) {
	if m == nil {
		return
	}
	m.roleRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrRoleProfile, profile),
		attribute.String(AttrOutcome, outcome),
	))
}

// RecordError counts err by code. Untyped errors count as INTERNAL_ERROR.
func (m *RuntimeMetrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}
	recoverable := "false"
	if typed := kerrors.As(err); typed != nil {
		recoverable = typed.RecoverableString()
	}
	m.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrErrorCode, string(kerrors.CodeOf(err))),
		attribute.String(AttrComponent, component),
		attribute.String(AttrErrorRecoverable, recoverable),
	))
}

// RecordActionDuration records how long an action run took.
func (m *RuntimeMetrics) RecordActionDuration(ctx context.Context, profile, action string, d time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.actionDuration.Record(ctx, float64(d.Microseconds())/1000, metric.WithAttributes(
		attribute.String(AttrRoleProfile, profile),
		attribute.String(AttrActionType, action),
		attribute.Bool(AttrActionSuccess, ok),
	))
}
