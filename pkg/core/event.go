// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

// Package core holds the run-scoped context helpers and the semantic
// lifecycle events shared by roles, environments and teams.
package core

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventType identifies a semantic event emitted by roles or environments.
type EventType string

const (
	EventRoleObserved   EventType = "role.observed"
	EventRoleThinking   EventType = "role.thinking"
	EventRoleActed      EventType = "role.acted"
	EventRolePublished  EventType = "role.published"
	EventRoleError      EventType = "role.error"
	EventRoundStarted   EventType = "round.started"
	EventRoundCompleted EventType = "round.completed"
)

// Event captures a semantic streaming/logging event.
type Event struct {
	Type      EventType
	Role      string
	RunID     string
	Round     int
	Timestamp time.Time
	Payload   map[string]any
}

// EventEmitter receives semantic events.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
}

// NoopEventEmitter is a default no-op implementation.
type NoopEventEmitter struct{}

// Emit implements EventEmitter.
func (NoopEventEmitter) Emit(_ context.Context, _ Event) {}

// NewEvent builds an event stamped with the run id and round found in ctx.
func NewEvent(ctx context.Context, eventType EventType, role string, payload map[string]any) Event {
	runID, _ := RunID(ctx)
	return Event{
		Type:      eventType,
		Role:      role,
		RunID:     runID,
		Round:     Round(ctx),
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// LogEventEmitter writes events as debug records.
type LogEventEmitter struct {
	Logger *slog.Logger
}

// Emit implements EventEmitter.
func (l LogEventEmitter) Emit(ctx context.Context, event Event) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"event", string(event.Type), "round", event.Round}
	if event.Role != "" {
		attrs = append(attrs, "role", event.Role)
	}
	if event.RunID != "" {
		attrs = append(attrs, "run_id", event.RunID)
	}
	for k, v := range event.Payload {
		attrs = append(attrs, k, v)
	}
	logger.DebugContext(ctx, "lifecycle event", attrs...)
}

// RecordingEventEmitter keeps every event in memory.
type RecordingEventEmitter struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements EventEmitter.
func (r *RecordingEventEmitter) Emit(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns the recorded events, optionally filtered by type.
func (r *RecordingEventEmitter) Events(types ...EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if len(types) == 0 {
			out = append(out, e)
			continue
		}
		for _, t := range types {
			if e.Type == t {
				out = append(out, e)
				break
			}
		}
	}
	return out
}
