// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"slices"
	"strings"
	"testing"

	kerrors "github.com/jllopis/agora/pkg/errors"
)

// execute runs the CLI with args and returns what it printed on stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a := &app{out: &out}
	root := newRootCmd(a)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd(&app{out: io.Discard})
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"run", "memory", "adapters", "version"} {
		if !slices.Contains(names, want) {
			t.Errorf("missing command %q in %v", want, names)
		}
	}
}

func TestConfigArgs(t *testing.T) {
	a := &app{flags: globalFlags{
		ConfigPath: "agora.yaml",
		Profile:    "dev",
		Sets:       []string{"llm.provider=mock", "runtime.rounds=2"},
	}}
	got := strings.Join(a.configArgs(), " ")
	want := "--config agora.yaml --profile dev --set llm.provider=mock --set runtime.rounds=2"
	if got != want {
		t.Fatalf("configArgs = %q, want %q", got, want)
	}
}

func TestVersionSkipsConfig(t *testing.T) {
	out, err := execute(t, "--set", "llm.provider=bard", "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "agora "+version) {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestInvalidConfigIsRejected(t *testing.T) {
	_, err := execute(t, "--set", "llm.provider=bard", "adapters", "list")
	if !kerrors.HasCode(err, kerrors.CodeConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestRunWithMockProvider(t *testing.T) {
	out, err := execute(t,
		"--json",
		"--set", "llm.provider=mock",
		"--set", "runtime.action_timeout_seconds=5",
		"run", "a terminal snake game", "--rounds", "3",
	)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	var res runResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if res.Rounds != 3 || res.Team != "software-company" {
		t.Fatalf("unexpected result: %+v", res)
	}
	for _, want := range []string{
		"\nBOSS: a terminal snake game",
		"\nProduct Manager: [mock] Write a product requirement document",
		"\nArchitect: [mock] Design the system",
		"\nEngineer: [mock] Write the code",
	} {
		if !strings.Contains(res.History, want) {
			t.Errorf("history misses %q:\n%s", want, res.History)
		}
	}
}

func TestRunNeedsIdea(t *testing.T) {
	_, err := execute(t, "--set", "llm.provider=mock", "run")
	if !kerrors.HasCode(err, kerrors.CodeConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestRunWithLongTermMemoryThenInspect(t *testing.T) {
	dir := t.TempDir()
	sets := []string{
		"--set", "llm.provider=mock",
		"--set", "memory.long_term.enabled=true",
		"--set", "memory.long_term.backend=sqlite",
		"--set", "memory.long_term.data_dir=" + dir,
	}

	if _, err := execute(t, append(sets, "run", "a snake game", "--rounds", "2")...); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	out, err := execute(t, append(append([]string{"--json"}, sets...), "memory", "list")...)
	if err != nil {
		t.Fatalf("memory list failed: %v", err)
	}
	if !strings.Contains(out, "Alice(Product Manager)") {
		t.Fatalf("expected Alice in owners: %s", out)
	}

	out, err = execute(t, append(append([]string{"--json"}, sets...), "memory", "inspect", "Alice(Product Manager)")...)
	if err != nil {
		t.Fatalf("memory inspect failed: %v", err)
	}
	var res inspectResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if !res.Found || len(res.Messages) == 0 {
		t.Fatalf("expected persisted messages, got %+v", res)
	}
	if res.Messages[0].Role != "BOSS" || res.Messages[0].CauseBy != "UserRequirement" {
		t.Fatalf("unexpected first message %+v", res.Messages[0])
	}

	if _, err := execute(t, append(sets, "memory", "clean", "..")...); !kerrors.HasCode(err, kerrors.CodeConfig) {
		t.Fatalf("expected config error cleaning \"..\", got %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("data dir must survive: %v", err)
	}

	if _, err := execute(t, append(sets, "memory", "clean", "Alice(Product Manager)")...); err != nil {
		t.Fatalf("memory clean failed: %v", err)
	}
	out, err = execute(t, append(append([]string{"--json"}, sets...), "memory", "inspect", "Alice(Product Manager)")...)
	if err != nil {
		t.Fatalf("memory inspect after clean failed: %v", err)
	}
	res = inspectResult{}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if res.Found || len(res.Messages) != 0 {
		t.Fatalf("expected nothing after clean, got %+v", res)
	}
}

func TestMemoryListUnsupportedBackend(t *testing.T) {
	_, err := execute(t,
		"--set", "memory.long_term.enabled=true",
		"--set", "memory.long_term.backend=memory",
		"memory", "list",
	)
	if !kerrors.HasCode(err, kerrors.CodeConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}
