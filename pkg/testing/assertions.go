// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package testing

import (
	"strings"
	"testing"

	kerrors "github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/llm"
	"github.com/jllopis/agora/pkg/message"
)

// Assertions provides assertion helpers for testing.
type Assertions struct {
	t      *testing.T
	failed bool
}

// NewAssertions creates a new assertions helper.
func NewAssertions(t *testing.T) *Assertions {
	return &Assertions{t: t}
}

// Failed returns true if any assertion has failed.
func (a *Assertions) Failed() bool {
	return a.failed
}

func (a *Assertions) errorf(format string, args ...any) {
	a.t.Helper()
	a.t.Errorf(format, args...)
	a.failed = true
}

// AssertEqual asserts that two values are equal.
func (a *Assertions) AssertEqual(expected, actual any, msg string) {
	a.t.Helper()
	if expected != actual {
		a.errorf("%s: expected %v, got %v", msg, expected, actual)
	}
}

// AssertContains asserts that s contains substr.
func (a *Assertions) AssertContains(s, substr, msg string) {
	a.t.Helper()
	if !strings.Contains(s, substr) {
		a.errorf("%s: %q does not contain %q", msg, s, substr)
	}
}

// AssertNoError asserts that err is nil.
func (a *Assertions) AssertNoError(err error, msg string) {
	a.t.Helper()
	if err != nil {
		a.errorf("%s: unexpected error: %v", msg, err)
	}
}

// AssertErrorCode asserts that err carries code somewhere in its chain.
func (a *Assertions) AssertErrorCode(err error, code kerrors.ErrorCode, msg string) {
	a.t.Helper()
	if !kerrors.HasCode(err, code) {
		a.errorf("%s: expected %s, got %v", msg, code, err)
	}
}

// RequestAssertions provides assertion helpers for LLM requests.
type RequestAssertions struct {
	*Assertions
	req *llm.ChatRequest
}

// AssertRequest creates request assertions for the given request.
func (a *Assertions) AssertRequest(req *llm.ChatRequest) *RequestAssertions {
	a.t.Helper()
	if req == nil {
		a.errorf("request is nil")
		return &RequestAssertions{Assertions: a, req: &llm.ChatRequest{}}
	}
	return &RequestAssertions{Assertions: a, req: req}
}

// HasModel asserts the request uses the given model.
func (r *RequestAssertions) HasModel(model string) *RequestAssertions {
	r.t.Helper()
	if r.req.Model != model {
		r.errorf("expected model %q, got %q", model, r.req.Model)
	}
	return r
}

// HasMessageCount asserts the number of messages in the request.
func (r *RequestAssertions) HasMessageCount(count int) *RequestAssertions {
	r.t.Helper()
	if len(r.req.Messages) != count {
		r.errorf("expected %d messages, got %d", count, len(r.req.Messages))
	}
	return r
}

// HasSystemMessage asserts a system message exists with the given content.
func (r *RequestAssertions) HasSystemMessage(contains string) *RequestAssertions {
	r.t.Helper()
	return r.hasMessage(llm.RoleSystem, contains)
}

// HasUserMessage asserts a user message exists with the given content.
func (r *RequestAssertions) HasUserMessage(contains string) *RequestAssertions {
	r.t.Helper()
	return r.hasMessage(llm.RoleUser, contains)
}

func (r *RequestAssertions) hasMessage(role llm.Role, contains string) *RequestAssertions {
	r.t.Helper()
	for _, msg := range r.req.Messages {
		if msg.Role == role && strings.Contains(msg.Content, contains) {
			return r
		}
	}
	r.errorf("no %s message containing %q found", role, contains)
	return r
}

// HistoryAssertions checks an environment history, one "\n<role>: <content>"
// entry per published message. Contents spanning lines count as several
// entries.
type HistoryAssertions struct {
	*Assertions
	entries []string
}

// AssertHistory splits history into its entries.
func (a *Assertions) AssertHistory(history string) *HistoryAssertions {
	var entries []string
	for _, line := range strings.Split(history, "\n") {
		if line != "" {
			entries = append(entries, line)
		}
	}
	return &HistoryAssertions{Assertions: a, entries: entries}
}

// HasEntry asserts an entry from role containing substr.
func (h *HistoryAssertions) HasEntry(role, substr string) *HistoryAssertions {
	h.t.Helper()
	if h.index(role, substr, 0) < 0 {
		h.errorf("no history entry from %q containing %q in %q", role, substr, h.entries)
	}
	return h
}

// InOrder asserts that the first entries of roles appear in that order.
func (h *HistoryAssertions) InOrder(roles ...string) *HistoryAssertions {
	h.t.Helper()
	from := 0
	for _, role := range roles {
		i := h.index(role, "", from)
		if i < 0 {
			h.errorf("no entry from %q after position %d in %q", role, from, h.entries)
			return h
		}
		from = i + 1
	}
	return h
}

// Count asserts the number of entries.
func (h *HistoryAssertions) Count(n int) *HistoryAssertions {
	h.t.Helper()
	if len(h.entries) != n {
		h.errorf("expected %d history entries, got %d: %q", n, len(h.entries), h.entries)
	}
	return h
}

func (h *HistoryAssertions) index(role, substr string, from int) int {
	prefix := role + ": "
	for i := from; i < len(h.entries); i++ {
		e := h.entries[i]
		if strings.HasPrefix(e, prefix) && strings.Contains(e[len(prefix):], substr) {
			return i
		}
	}
	return -1
}

// RequireNoError fails the test immediately if err is not nil.
func RequireNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}

// RequireMessages fails the test unless msgs holds exactly the given
// "<role>: <content>" renderings, in order.
func RequireMessages(t *testing.T, msgs []message.Message, want ...string) {
	t.Helper()
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %d: %v", len(want), len(msgs), msgs)
	}
	for i, m := range msgs {
		if m.String() != want[i] {
			t.Fatalf("message %d: expected %q, got %q", i, want[i], m.String())
		}
	}
}
