// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package testing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jllopis/agora/pkg/action"
	"github.com/jllopis/agora/pkg/core"
	"github.com/jllopis/agora/pkg/environment"
	kerrors "github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/llm"
	"github.com/jllopis/agora/pkg/message"
	"github.com/jllopis/agora/pkg/resilience"
	"github.com/jllopis/agora/pkg/role"
	"github.com/jllopis/agora/pkg/team"
)

func newClient(p llm.Provider, model string, costs *llm.CostManager) *llm.Client {
	return llm.NewClient(p, model,
		llm.WithRetry(resilience.FixedRetryConfig(1, 0)),
		llm.WithCosts(costs),
	)
}

func promptRole(t *testing.T, client *llm.Client, setting role.Setting, typ message.ActionType, instruction string, watch message.ActionType, events core.EventEmitter) *role.Role {
	t.Helper()
	a, err := action.NewPrompt(typ, instruction, "", action.WithLLM(client))
	RequireNoError(t, err, "new prompt")
	r, err := role.New(setting,
		role.WithActions(a),
		role.WithWatch(watch),
		role.WithLLM(client),
		role.WithEventEmitter(events),
	)
	RequireNoError(t, err, "new role")
	return r
}

func newTeam(t *testing.T, provider llm.Provider, model string, events *core.RecordingEventEmitter) (*team.Team, *llm.CostManager) {
	t.Helper()
	costs := llm.NewCostManager()
	client := newClient(provider, model, costs)
	pm := promptRole(t, client, role.Setting{Name: "Alice", Profile: "Product Manager"},
		"WritePRD", "PRD for {{.Last}}", message.UserRequirement, events)
	arch := promptRole(t, client, role.Setting{Name: "Bob", Profile: "Architect"},
		"WriteDesign", "Design from {{.History}}", "WritePRD", events)

	env := environment.New(environment.WithEventEmitter(events))
	tm := team.New(costs, team.WithEnvironment(env))
	tm.Hire(pm, arch)
	return tm, costs
}

func TestRoutedProviderRoutesAndQueue(t *testing.T) {
	p := NewRoutedProvider().
		On(Contains("design"), "a design").
		AddRoute(Route{Match: HasPrefix("once"), ScriptedResponse: ScriptedResponse{Content: "first"}, Times: 1}).
		AddResponse("queued")

	ask := func(prompt string) (string, error) {
		resp, err := p.Chat(context.Background(), llm.ChatRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}}})
		if err != nil {
			return "", err
		}
		return resp.Content, nil
	}

	a := NewAssertions(t)
	got, err := ask("write the design")
	a.AssertNoError(err, "routed")
	a.AssertEqual("a design", got, "routed reply")

	got, _ = ask("once upon a time")
	a.AssertEqual("first", got, "limited route")
	got, _ = ask("once more")
	a.AssertEqual("queued", got, "exhausted route falls back to queue")

	if _, err := ask("nothing"); err == nil {
		t.Fatal("expected error once the queue is empty")
	}
	a.AssertEqual(4, p.CallCount(), "calls")
	a.AssertRequest(p.LastRequest()).HasMessageCount(1).HasUserMessage("nothing")

	p.Reset()
	got, _ = ask("once again")
	a.AssertEqual("first", got, "reset restores route hits")
}

func TestRoutedProviderErrors(t *testing.T) {
	boom := errors.New("boom")
	p := NewRoutedProvider().
		AddRoute(Route{Match: Contains("fail"), ScriptedResponse: ScriptedResponse{Error: boom}}).
		WithDefaultError(errors.New("empty"))

	if _, err := p.Chat(context.Background(), llm.ChatRequest{Messages: []llm.Message{{Content: "fail now"}}}); !errors.Is(err, boom) {
		t.Fatalf("expected routed error, got %v", err)
	}
	if _, err := p.Chat(context.Background(), llm.ChatRequest{}); err == nil || err.Error() != "empty" {
		t.Fatalf("expected default error, got %v", err)
	}
}

func TestMatchers(t *testing.T) {
	tests := []struct {
		m    StringMatcher
		in   string
		want bool
	}{
		{Contains("ell"), "hello", true},
		{Equals("hello"), "hello", true},
		{Equals("hello"), "hello!", false},
		{HasPrefix("he"), "hello", true},
		{Regex(`^h.*o$`), "hello", true},
		{Regex(`[`), "[", false},
	}
	for _, tc := range tests {
		if got := tc.m.Match(tc.in); got != tc.want {
			t.Errorf("%s on %q = %v, want %v", tc.m.Description(), tc.in, got, tc.want)
		}
	}
}

func TestScenarioTeamRun(t *testing.T) {
	events := &core.RecordingEventEmitter{}
	provider := NewRoutedProvider().
		On(Contains("PRD for"), "PRD: snake").
		On(Contains("Design from"), "Design: grid")
	tm, _ := newTeam(t, provider, "test", events)

	scenario := NewScenario("software company").
		WithIdea("snake").
		WithRounds(3).
		WithEvents(events).
		WithTimeout(5 * time.Second).
		ExpectNoError().
		ExpectPublished("Product Manager").
		ExpectPublished("Architect").
		ExpectSilent("Engineer").
		ExpectHistory(Contains("\nBOSS: snake")).
		ExpectEvent(core.EventRolePublished).
		ExpectEvent(core.EventRoundCompleted)

	result := scenario.Run(t, tm)
	result.Assert(t, scenario)

	NewAssertions(t).AssertHistory(result.History).
		Count(3).
		InOrder("BOSS", "Product Manager", "Architect").
		HasEntry("Architect", "Design: grid")

	if provider.CallCount() != 2 {
		t.Fatalf("expected one call per role, got %d", provider.CallCount())
	}
}

func TestScenarioBudgetExceeded(t *testing.T) {
	provider := NewRoutedProvider().
		AddRoute(Route{
			Match:            Contains("PRD for"),
			ScriptedResponse: ScriptedResponse{Content: "PRD", Usage: llm.Usage{PromptTokens: 1000, CompletionTokens: 1000}},
		}).
		On(Contains("Design from"), "Design")
	tm, costs := newTeam(t, provider, "gpt-4", &core.RecordingEventEmitter{})

	scenario := NewScenario("over budget").
		WithIdea("snake").
		WithRounds(3).
		WithInvestment(decimal.RequireFromString("0.05")).
		ExpectErrorCode(kerrors.CodeBudgetExceeded).
		ExpectError(Contains("insufficient funds")).
		ExpectPublished("Product Manager")

	result := scenario.Run(t, tm)
	result.Assert(t, scenario)

	if !costs.Exceeded() {
		t.Fatalf("expected exceeded budget, total %s", costs.TotalCost())
	}
}

func TestRequireMessages(t *testing.T) {
	RequireMessages(t, []message.Message{
		message.New("hi", message.WithRole("BOSS")),
	}, "BOSS: hi")
}
