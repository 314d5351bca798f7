// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys for agora spans and metrics.
const (
	// Role attributes
	AttrRoleID      = "agora.role.id"
	AttrRoleName    = "agora.role.name"
	AttrRoleProfile = "agora.role.profile"
	AttrRoleState   = "agora.role.state"
	AttrRoleNews    = "agora.role.news_count"
	AttrOutcome     = "agora.role.outcome"

	// Run attributes
	AttrRunID      = "agora.run.id"
	AttrRound      = "agora.round"
	AttrRolesCount = "agora.roles.count"

	// Action attributes
	AttrActionType       = "agora.action.type"
	AttrActionDurationMs = "agora.action.duration_ms"
	AttrActionSuccess    = "agora.action.success"

	// Memory attributes
	AttrMemoryLongTerm = "agora.memory.long_term"
	AttrMemoryCount    = "agora.memory.count"

	// LLM attributes (standard gen_ai conventions)
	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"

	// Error attributes
	AttrErrorCode        = "error.code"
	AttrErrorRecoverable = "error.recoverable"
	AttrComponent        = "component"
)

// RoleAttributes returns common attributes for role spans.
func RoleAttributes(roleID, name, profile, runID string, round int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrRoleID, roleID),
		attribute.String(AttrRoleProfile, profile),
	}
	if name != "" {
		attrs = append(attrs, attribute.String(AttrRoleName, name))
	}
	if runID != "" {
		attrs = append(attrs, attribute.String(AttrRunID, runID))
	}
	if round > 0 {
		attrs = append(attrs, attribute.Int(AttrRound, round))
	}
	return attrs
}

// RoundAttributes returns attributes for an environment round span.
func RoundAttributes(runID string, round, roles int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int(AttrRound, round),
		attribute.Int(AttrRolesCount, roles),
	}
	if runID != "" {
		attrs = append(attrs, attribute.String(AttrRunID, runID))
	}
	return attrs
}

// ActionAttributes returns attributes describing one action run.
func ActionAttributes(action string, state int, durationMs float64, success bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrActionType, action),
		attribute.Int(AttrRoleState, state),
		attribute.Float64(AttrActionDurationMs, durationMs),
		attribute.Bool(AttrActionSuccess, success),
	}
}

// MemoryAttributes returns attributes for a role's memory.
func MemoryAttributes(longTerm bool, count int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(AttrMemoryLongTerm, longTerm),
		attribute.Int(AttrMemoryCount, count),
	}
}

// LLMAttributes returns attributes for LLM usage.
func LLMAttributes(model, provider string, inputTokens, outputTokens int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrLLMModel, model),
	}
	if provider != "" {
		attrs = append(attrs, attribute.String(AttrLLMProvider, provider))
	}
	if inputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensInput, inputTokens))
	}
	if outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensOutput, outputTokens))
	}
	return attrs
}

// ErrorAttributes returns attributes for a failed operation.
func ErrorAttributes(code, component string, recoverable bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrErrorCode, code),
		attribute.String(AttrComponent, component),
		attribute.Bool(AttrErrorRecoverable, recoverable),
	}
}
