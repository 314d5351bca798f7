// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

// Package testing provides utilities for testing agora teams and roles.
//
// This package includes:
//   - Scenario definitions for declarative team testing
//   - A routed mock provider that stays deterministic under concurrent roles
//   - Assertion helpers for requests and histories
//
// Example usage:
//
//	scenario := testing.NewScenario("snake").
//	    WithIdea("a terminal snake game").
//	    WithRounds(3).
//	    ExpectNoError().
//	    ExpectPublished("Architect")
//
//	result := scenario.Run(t, team)
//	result.Assert(t, scenario)
package testing

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jllopis/agora/pkg/core"
	kerrors "github.com/jllopis/agora/pkg/errors"
)

// TeamRunner is what a scenario drives. *team.Team implements it.
type TeamRunner interface {
	Invest(amount decimal.Decimal)
	StartProject(ctx context.Context, idea string) error
	Run(ctx context.Context, nRound int) (string, error)
}

// Scenario defines a test scenario for a team run.
type Scenario struct {
	name          string
	idea          string
	rounds        int
	investment    *decimal.Decimal
	context       context.Context
	timeout       time.Duration
	events        *core.RecordingEventEmitter
	expectations  []Expectation
	setupFuncs    []func() error
	teardownFuncs []func() error
}

// Expectation defines a condition to verify after running a scenario.
type Expectation interface {
	// Check verifies the expectation against the result.
	Check(result *ScenarioResult) error
	// Description returns a human-readable description of the expectation.
	Description() string
}

// ScenarioResult contains the outcome of running a scenario.
type ScenarioResult struct {
	History  string
	Error    error
	Events   []core.Event
	Duration time.Duration
}

// NewScenario creates a new test scenario with the given name.
func NewScenario(name string) *Scenario {
	return &Scenario{
		name:    name,
		rounds:  3,
		timeout: 30 * time.Second,
		context: context.Background(),
	}
}

// WithIdea sets the requirement the project starts with.
func (s *Scenario) WithIdea(idea string) *Scenario {
	s.idea = idea
	return s
}

// WithRounds sets how many rounds are played.
func (s *Scenario) WithRounds(n int) *Scenario {
	s.rounds = n
	return s
}

// WithInvestment sets the budget before the project starts.
func (s *Scenario) WithInvestment(usd decimal.Decimal) *Scenario {
	s.investment = &usd
	return s
}

// WithContext sets the context for the scenario.
func (s *Scenario) WithContext(ctx context.Context) *Scenario {
	s.context = ctx
	return s
}

// WithTimeout sets the timeout for the scenario.
func (s *Scenario) WithTimeout(d time.Duration) *Scenario {
	s.timeout = d
	return s
}

// WithEvents reads the events recorded by rec into the result. Wire the
// same recorder into the roles and the environment.
func (s *Scenario) WithEvents(rec *core.RecordingEventEmitter) *Scenario {
	s.events = rec
	return s
}

// WithSetup adds a setup function to run before the scenario.
func (s *Scenario) WithSetup(fn func() error) *Scenario {
	s.setupFuncs = append(s.setupFuncs, fn)
	return s
}

// WithTeardown adds a teardown function to run after the scenario.
func (s *Scenario) WithTeardown(fn func() error) *Scenario {
	s.teardownFuncs = append(s.teardownFuncs, fn)
	return s
}

// Expect adds an expectation to the scenario.
func (s *Scenario) Expect(exp Expectation) *Scenario {
	s.expectations = append(s.expectations, exp)
	return s
}

// ExpectHistory adds an expectation on the full history.
func (s *Scenario) ExpectHistory(matcher StringMatcher) *Scenario {
	return s.Expect(&historyExpectation{matcher: matcher})
}

// ExpectPublished expects at least one message from profile.
func (s *Scenario) ExpectPublished(profile string) *Scenario {
	return s.Expect(&publishedExpectation{profile: profile, want: true})
}

// ExpectSilent expects no message from profile.
func (s *Scenario) ExpectSilent(profile string) *Scenario {
	return s.Expect(&publishedExpectation{profile: profile})
}

// ExpectNoError expects the run to succeed.
func (s *Scenario) ExpectNoError() *Scenario {
	return s.Expect(&noErrorExpectation{})
}

// ExpectError expects an error matching the given pattern.
func (s *Scenario) ExpectError(matcher StringMatcher) *Scenario {
	return s.Expect(&errorExpectation{matcher: matcher})
}

// ExpectErrorCode expects an error carrying code anywhere in its chain.
func (s *Scenario) ExpectErrorCode(code kerrors.ErrorCode) *Scenario {
	return s.Expect(&errorCodeExpectation{code: code})
}

// ExpectEvent expects an event of the given type.
func (s *Scenario) ExpectEvent(eventType core.EventType) *Scenario {
	return s.Expect(&eventExpectation{eventType: eventType})
}

// ExpectMaxDuration expects the scenario to complete within the given duration.
func (s *Scenario) ExpectMaxDuration(d time.Duration) *Scenario {
	return s.Expect(&maxDurationExpectation{max: d})
}

// Run starts the project on team and plays the scenario rounds.
func (s *Scenario) Run(t *testing.T, team TeamRunner) *ScenarioResult {
	t.Helper()

	for _, setup := range s.setupFuncs {
		if err := setup(); err != nil {
			t.Fatalf("scenario %q setup failed: %v", s.name, err)
		}
	}
	defer func() {
		for _, teardown := range s.teardownFuncs {
			if err := teardown(); err != nil {
				t.Errorf("scenario %q teardown failed: %v", s.name, err)
			}
		}
	}()

	ctx, cancel := context.WithTimeout(s.context, s.timeout)
	defer cancel()

	if s.investment != nil {
		team.Invest(*s.investment)
	}

	start := time.Now()
	result := &ScenarioResult{}
	if err := team.StartProject(ctx, s.idea); err != nil {
		result.Error = err
	} else {
		result.History, result.Error = team.Run(ctx, s.rounds)
	}
	result.Duration = time.Since(start)
	if s.events != nil {
		result.Events = s.events.Events()
	}
	return result
}

// Assert checks all expectations and reports failures to the test.
func (r *ScenarioResult) Assert(t *testing.T, scenario *Scenario) {
	t.Helper()
	for _, exp := range scenario.expectations {
		if err := exp.Check(r); err != nil {
			t.Errorf("scenario %q: expectation %q failed: %v", scenario.name, exp.Description(), err)
		}
	}
}

// StringMatcher defines how to match strings in expectations and routes.
type StringMatcher interface {
	Match(s string) bool
	Description() string
}

// Contains returns a matcher that checks if the string contains the substring.
func Contains(substr string) StringMatcher {
	return &containsMatcher{substr: substr}
}

// Equals returns a matcher that checks exact string equality.
func Equals(expected string) StringMatcher {
	return &equalsMatcher{expected: expected}
}

// Regex returns a matcher that checks against a regular expression.
// An invalid pattern never matches.
func Regex(pattern string) StringMatcher {
	re, err := regexp.Compile(pattern)
	return &regexMatcher{pattern: pattern, re: re, err: err}
}

// HasPrefix returns a matcher that checks if the string has the given prefix.
func HasPrefix(prefix string) StringMatcher {
	return &prefixMatcher{prefix: prefix}
}

type containsMatcher struct{ substr string }

func (m *containsMatcher) Match(s string) bool { return strings.Contains(s, m.substr) }

func (m *containsMatcher) Description() string { return fmt.Sprintf("contains %q", m.substr) }

type equalsMatcher struct{ expected string }

func (m *equalsMatcher) Match(s string) bool { return s == m.expected }

func (m *equalsMatcher) Description() string { return fmt.Sprintf("equals %q", m.expected) }

type regexMatcher struct {
	pattern string
	re      *regexp.Regexp
	err     error
}

func (m *regexMatcher) Match(s string) bool {
	if m.err != nil {
		return false
	}
	return m.re.MatchString(s)
}

func (m *regexMatcher) Description() string {
	if m.err != nil {
		return fmt.Sprintf("matches invalid regex %q (%v)", m.pattern, m.err)
	}
	return fmt.Sprintf("matches regex %q", m.pattern)
}

type prefixMatcher struct{ prefix string }

func (m *prefixMatcher) Match(s string) bool { return strings.HasPrefix(s, m.prefix) }

func (m *prefixMatcher) Description() string { return fmt.Sprintf("has prefix %q", m.prefix) }

// Expectation implementations

type historyExpectation struct{ matcher StringMatcher }

func (e *historyExpectation) Check(r *ScenarioResult) error {
	if !e.matcher.Match(r.History) {
		return fmt.Errorf("history %q does not match: %s", r.History, e.matcher.Description())
	}
	return nil
}

func (e *historyExpectation) Description() string {
	return fmt.Sprintf("history %s", e.matcher.Description())
}

type publishedExpectation struct {
	profile string
	want    bool
}

func (e *publishedExpectation) Check(r *ScenarioResult) error {
	got := strings.Contains(r.History, "\n"+e.profile+": ")
	switch {
	case e.want && !got:
		return fmt.Errorf("no message from %q in history %q", e.profile, r.History)
	case !e.want && got:
		return fmt.Errorf("unexpected message from %q in history %q", e.profile, r.History)
	}
	return nil
}

func (e *publishedExpectation) Description() string {
	if e.want {
		return fmt.Sprintf("%s published", e.profile)
	}
	return fmt.Sprintf("%s stayed silent", e.profile)
}

type noErrorExpectation struct{}

func (e *noErrorExpectation) Check(r *ScenarioResult) error {
	if r.Error != nil {
		return fmt.Errorf("expected no error, got: %v", r.Error)
	}
	return nil
}

func (e *noErrorExpectation) Description() string { return "no error" }

type errorExpectation struct{ matcher StringMatcher }

func (e *errorExpectation) Check(r *ScenarioResult) error {
	if r.Error == nil {
		return fmt.Errorf("expected error matching %s, got nil", e.matcher.Description())
	}
	if !e.matcher.Match(r.Error.Error()) {
		return fmt.Errorf("error %q does not match: %s", r.Error.Error(), e.matcher.Description())
	}
	return nil
}

func (e *errorExpectation) Description() string {
	return fmt.Sprintf("error %s", e.matcher.Description())
}

type errorCodeExpectation struct{ code kerrors.ErrorCode }

func (e *errorCodeExpectation) Check(r *ScenarioResult) error {
	if !kerrors.HasCode(r.Error, e.code) {
		return fmt.Errorf("expected %s in error chain, got: %v", e.code, r.Error)
	}
	return nil
}

func (e *errorCodeExpectation) Description() string {
	return fmt.Sprintf("error code %s", e.code)
}

type eventExpectation struct{ eventType core.EventType }

func (e *eventExpectation) Check(r *ScenarioResult) error {
	for _, ev := range r.Events {
		if ev.Type == e.eventType {
			return nil
		}
	}
	return fmt.Errorf("event type %q was not emitted", e.eventType)
}

func (e *eventExpectation) Description() string {
	return fmt.Sprintf("event %q emitted", e.eventType)
}

type maxDurationExpectation struct{ max time.Duration }

func (e *maxDurationExpectation) Check(r *ScenarioResult) error {
	if r.Duration > e.max {
		return fmt.Errorf("duration %v exceeds maximum %v", r.Duration, e.max)
	}
	return nil
}

func (e *maxDurationExpectation) Description() string {
	return fmt.Sprintf("duration <= %v", e.max)
}
