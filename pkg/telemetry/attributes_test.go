// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestRoleAttributes(t *testing.T) {
	attrs := RoleAttributes("Bob(Architect)", "Bob", "Architect", "run-123", 2)

	expected := map[string]any{
		AttrRoleID:      "Bob(Architect)",
		AttrRoleName:    "Bob",
		AttrRoleProfile: "Architect",
		AttrRunID:       "run-123",
		AttrRound:       2,
	}

	assertAttributes(t, attrs, expected)
}

func TestRoleAttributesOmitsEmpty(t *testing.T) {
	attrs := RoleAttributes("(Architect)", "", "Architect", "", 0)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
}

func TestRoundAttributes(t *testing.T) {
	assertAttributes(t, RoundAttributes("run-1", 3, 4), map[string]any{
		AttrRound:      3,
		AttrRolesCount: 4,
		AttrRunID:      "run-1",
	})
}

func TestActionAttributes(t *testing.T) {
	assertAttributes(t, ActionAttributes("WriteDesign", 1, 12.5, true), map[string]any{
		AttrActionType:       "WriteDesign",
		AttrRoleState:        1,
		AttrActionDurationMs: 12.5,
		AttrActionSuccess:    true,
	})
}

func TestMemoryAttributes(t *testing.T) {
	assertAttributes(t, MemoryAttributes(true, 7), map[string]any{
		AttrMemoryLongTerm: true,
		AttrMemoryCount:    7,
	})
}

func TestLLMAttributes(t *testing.T) {
	attrs := LLMAttributes("gpt-4", "openai", 100, 0)
	assertAttributes(t, attrs, map[string]any{
		AttrLLMModel:       "gpt-4",
		AttrLLMProvider:    "openai",
		AttrLLMTokensInput: 100,
	})
	if len(attrs) != 3 {
		t.Fatalf("zero output tokens should be omitted, got %d attributes", len(attrs))
	}
}

func TestErrorAttributes(t *testing.T) {
	assertAttributes(t, ErrorAttributes("TIMEOUT", "role", true), map[string]any{
		AttrErrorCode:        "TIMEOUT",
		AttrComponent:        "role",
		AttrErrorRecoverable: true,
	})
}

// assertAttributes checks that expected key-value pairs exist in attrs
func assertAttributes(t *testing.T, attrs []attribute.KeyValue, expected map[string]any) {
	t.Helper()

	found := make(map[string]attribute.KeyValue)
	for _, attr := range attrs {
		found[string(attr.Key)] = attr
	}

	for key, expectedVal := range expected {
		attr, ok := found[key]
		if !ok {
			t.Errorf("missing attribute %s", key)
			continue
		}

		var actualVal any
		switch attr.Value.Type() {
		case attribute.STRING:
			actualVal = attr.Value.AsString()
		case attribute.INT64:
			actualVal = int(attr.Value.AsInt64())
		case attribute.FLOAT64:
			actualVal = attr.Value.AsFloat64()
		case attribute.BOOL:
			actualVal = attr.Value.AsBool()
		}

		if actualVal != expectedVal {
			t.Errorf("attribute %s: got %v, want %v", key, actualVal, expectedVal)
		}
	}
}
