// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"errors"
	"sync"
)

// mockUsage is charged by the mocks when no usage is configured.
var mockUsage = Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20}

// recorder keeps every request a mock receives.
type recorder struct {
	mu       sync.Mutex
	requests []ChatRequest
}

func (r *recorder) record(req ChatRequest) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()
}

// Requests returns a copy of the recorded requests.
func (r *recorder) Requests() []ChatRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ChatRequest(nil), r.requests...)
}

// Calls returns how many times Chat was called.
func (r *recorder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

// LastPrompt returns the final message of the latest request.
func (r *recorder) LastPrompt() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.requests) == 0 {
		return ""
	}
	msgs := r.requests[len(r.requests)-1].Messages
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Content
}

// MockProvider answers every request with Response, Err or ChatFunc, in
// reverse order of precedence.
type MockProvider struct {
	recorder

	Response string
	Err      error
	Usage    Usage
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Chat implements Provider.
func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	m.record(req)
	switch {
	case m.ChatFunc != nil:
		return m.ChatFunc(ctx, req)
	case m.Err != nil:
		return nil, m.Err
	}
	usage := m.Usage
	if usage == (Usage{}) {
		usage = mockUsage
	}
	return &ChatResponse{Content: m.Response, Usage: usage}, nil
}

// ScriptedMockProvider replies with a queue of canned answers, one per
// call, and fails once the queue is empty. Handy for driving stage
// selection and structured output retries.
type ScriptedMockProvider struct {
	recorder

	qmu     sync.Mutex
	replies []string
}

// NewScriptedMockProvider queues replies.
func NewScriptedMockProvider(replies ...string) *ScriptedMockProvider {
	return &ScriptedMockProvider{replies: replies}
}

// AddResponse appends a reply to the queue.
func (s *ScriptedMockProvider) AddResponse(reply string) {
	s.qmu.Lock()
	s.replies = append(s.replies, reply)
	s.qmu.Unlock()
}

// Chat implements Provider.
func (s *ScriptedMockProvider) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	s.record(req)
	s.qmu.Lock()
	defer s.qmu.Unlock()
	if len(s.replies) == 0 {
		return nil, errors.New("scripted mock: no replies left")
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return &ChatResponse{Content: reply, Usage: mockUsage}, nil
}

// FailingMockProvider always fails, with Err when set.
type FailingMockProvider struct {
	Err error
}

// Chat implements Provider.
func (f *FailingMockProvider) Chat(context.Context, ChatRequest) (*ChatResponse, error) {
	if f.Err == nil {
		return nil, errors.New("mock error")
	}
	return nil, f.Err
}
