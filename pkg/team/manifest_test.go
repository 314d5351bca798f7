// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package team

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	kerrors "github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/llm"
	"github.com/jllopis/agora/pkg/message"
	"github.com/jllopis/agora/pkg/resilience"
)

const manifestYAML = `
name: software-company
idea: a terminal snake game
investment: 3
rounds: 4
schemas:
  design: |
    {"type": "object", "required": ["files"], "properties": {"files": {"type": "array", "items": {"type": "string"}}}}
roles:
  - name: Alice
    profile: Product Manager
    goal: Efficiently create a successful product
    watch: [UserRequirement]
    actions:
      - type: WritePRD
        instruction: "Write a PRD for: {{.Last}}"
  - name: Bob
    profile: Architect
    goal: Design a concise, usable, complete system
    watch: [WritePRD]
    actions:
      - type: WriteDesign
        instruction: "Design from: {{.History}}"
        schema: design
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(manifestYAML))
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	if m.Name != "software-company" || m.Rounds != 4 || m.Investment != 3 {
		t.Fatalf("unexpected manifest %+v", m)
	}
	if len(m.Roles) != 2 || m.Roles[1].Actions[0].Schema != "design" {
		t.Fatalf("unexpected roles %+v", m.Roles)
	}
}

func TestManifestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", ""},
		{"no roles", "name: x\n"},
		{"no profile", "roles:\n  - name: a\n    actions: [{type: A}]\n"},
		{"duplicate profile", "roles:\n  - profile: p\n    actions: [{type: A}]\n  - profile: p\n    actions: [{type: B}]\n"},
		{"no actions", "roles:\n  - profile: p\n"},
		{"unknown schema", "roles:\n  - profile: p\n    actions: [{type: A, schema: nope}]\n"},
		{"negative investment", "investment: -1\nroles:\n  - profile: p\n    actions: [{type: A}]\n"},
		{"bad yaml", "roles: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseManifest([]byte(tt.yaml)); !kerrors.HasCode(err, kerrors.CodeConfig) {
				t.Fatalf("expected config error, got %v", err)
			}
		})
	}
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "team.yaml")
	if err := os.WriteFile(path, []byte(manifestYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadManifest(path); err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if _, err := LoadManifest(filepath.Join(t.TempDir(), "missing.yaml")); !kerrors.HasCode(err, kerrors.CodeConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestExampleManifest(t *testing.T) {
	m, err := LoadManifest(filepath.Join("..", "..", "examples", "teams", "software_company.yaml"))
	if err != nil {
		t.Fatalf("example manifest: %v", err)
	}
	if len(m.Roles) != 4 || m.Rounds != 5 {
		t.Fatalf("unexpected manifest %+v", m)
	}
	roles, err := m.Build(BuildConfig{LLM: llm.NewClient(&llm.MockProvider{Response: "ok"}, "m")})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if roles[3].Profile() != "QA Engineer" {
		t.Fatalf("unexpected last role %s", roles[3].Profile())
	}
}

func TestManifestBuildAndRun(t *testing.T) {
	m, err := ParseManifest([]byte(manifestYAML))
	if err != nil {
		t.Fatal(err)
	}
	costs := llm.NewCostManager()
	mock := llm.NewScriptedMockProvider(
		"PRD: move, eat, grow",
		`[CONTENT]{"files": ["main.go", "board.go"]}[/CONTENT]`,
	)
	client := llm.NewClient(mock, "gpt-4", llm.WithRetry(resilience.FixedRetryConfig(1, 0)), llm.WithCosts(costs))
	retry := resilience.FixedRetryConfig(3, time.Millisecond)

	roles, err := m.Build(BuildConfig{LLM: client, Retry: &retry})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(roles) != 2 || roles[0].Profile() != "Product Manager" || roles[1].ID() != "Bob(Architect)" {
		t.Fatalf("unexpected roles %v", roles)
	}

	team := New(costs)
	team.Hire(roles...)
	ctx := context.Background()
	if err := team.StartProject(ctx, m.Idea); err != nil {
		t.Fatal(err)
	}
	history, err := team.Run(ctx, m.Rounds)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(history, "Architect: [CONTENT]") {
		t.Fatalf("history = %q", history)
	}
	designs := team.Environment().Memory().GetByAction(message.ActionType("WriteDesign"))
	if len(designs) != 1 || designs[0].Payload == nil || designs[0].Payload.SchemaID != "design" {
		t.Fatalf("designs = %+v", designs)
	}
}
