// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package action

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	kerrors "github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/llm"
	"github.com/jllopis/agora/pkg/message"
	"github.com/jllopis/agora/pkg/resilience"
)

const designSchema = `{
	"type": "object",
	"properties": {
		"title": {"type": "string"},
		"files": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["title", "files"]
}`

func newClient(p llm.Provider) *llm.Client {
	return llm.NewClient(p, "gpt-4", llm.WithRetry(resilience.FixedRetryConfig(1, 0)))
}

func newRegistry(t *testing.T) *message.Registry {
	t.Helper()
	reg := message.NewRegistry()
	if err := reg.Register("design", []byte(designSchema)); err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg
}

func TestExtractContent(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{"content block", "Sure.\n[CONTENT]\n{\"a\": 1}\n[/CONTENT]\nDone.", `{"a": 1}`},
		{"first block wins", "[CONTENT]{\"a\":1}[/CONTENT] [CONTENT]{\"b\":2}[/CONTENT]", `{"a":1}`},
		{"fenced json", "Here:\n```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"whole reply", "  {\"a\": 1}\n", `{"a": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractContent(tt.reply); got != tt.want {
				t.Fatalf("ExtractContent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAskAppendsPrefix(t *testing.T) {
	mock := &llm.MockProvider{Response: "ok"}
	b := NewBase("WriteDesign", WithLLM(newClient(mock)))
	b.SetPrefix("You are a Architect, named Bob", "Architect")

	if _, err := b.Ask(context.Background(), "design it", "be brief"); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	reqs := mock.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	msgs := reqs[0].Messages
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[1].Content != "be brief" || msgs[2].Content != "You are a Architect, named Bob" {
		t.Fatalf("unexpected system messages: %+v", msgs)
	}
	if msgs[3].Role != llm.RoleUser || msgs[3].Content != "design it" {
		t.Fatalf("unexpected user message: %+v", msgs[3])
	}
	if b.Profile() != "Architect" {
		t.Fatalf("profile = %q", b.Profile())
	}
}

func TestAskWithoutClient(t *testing.T) {
	_, err := NewBase("X").Ask(context.Background(), "hi")
	if !kerrors.HasCode(err, kerrors.CodeConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestAskStructuredRetriesUntilValid(t *testing.T) {
	mock := llm.NewScriptedMockProvider(
		"I think the design is fine.",
		`[CONTENT]{"title": "snake"}[/CONTENT]`,
		`[CONTENT]{"title": "snake", "files": ["main.go"]}[/CONTENT]`,
	)
	b := NewBase("WriteDesign",
		WithLLM(newClient(mock)),
		WithSchemas(newRegistry(t)),
		WithRetry(resilience.FixedRetryConfig(3, time.Millisecond)),
	)

	out, err := b.AskStructured(context.Background(), "design", "design")
	if err != nil {
		t.Fatalf("AskStructured: %v", err)
	}
	if mock.Calls() != 3 {
		t.Fatalf("expected 3 calls, got %d", mock.Calls())
	}
	if out.Payload == nil || out.Payload.SchemaID != "design" {
		t.Fatalf("unexpected payload: %+v", out.Payload)
	}
	var v struct {
		Title string   `json:"title"`
		Files []string `json:"files"`
	}
	if err := out.Payload.Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Title != "snake" || len(v.Files) != 1 {
		t.Fatalf("unexpected value: %+v", v)
	}
	if !strings.Contains(out.Content, "[CONTENT]") {
		t.Fatalf("content should be the raw reply, got %q", out.Content)
	}
}

func TestAskStructuredExhausted(t *testing.T) {
	mock := llm.NewScriptedMockProvider("nope", "still nope", "no")
	b := NewBase("WriteDesign",
		WithLLM(newClient(mock)),
		WithSchemas(newRegistry(t)),
		WithRetry(resilience.FixedRetryConfig(3, time.Millisecond)),
	)

	_, err := b.AskStructured(context.Background(), "design", "design")
	if !kerrors.HasCode(err, kerrors.CodeActionFailure) {
		t.Fatalf("expected action failure, got %v", err)
	}
	if !kerrors.HasCode(err, kerrors.CodeSchema) {
		t.Fatalf("expected schema error in chain, got %v", err)
	}
	if mock.Calls() != 3 {
		t.Fatalf("expected 3 calls, got %d", mock.Calls())
	}
}

func TestAskStructuredDoesNotRetryLLMFailure(t *testing.T) {
	mock := &llm.MockProvider{Err: errors.New("provider down")}
	b := NewBase("WriteDesign",
		WithLLM(newClient(mock)),
		WithSchemas(newRegistry(t)),
		WithRetry(resilience.FixedRetryConfig(3, time.Millisecond)),
	)

	_, err := b.AskStructured(context.Background(), "design", "design")
	if !kerrors.HasCode(err, kerrors.CodeLLM) {
		t.Fatalf("expected llm error, got %v", err)
	}
	if mock.Calls() != 1 {
		t.Fatalf("expected a single call, got %d", mock.Calls())
	}
}

func TestAskStructuredUnknownSchema(t *testing.T) {
	mock := &llm.MockProvider{Response: "{}"}
	b := NewBase("X", WithLLM(newClient(mock)), WithSchemas(message.NewRegistry()))

	_, err := b.AskStructured(context.Background(), "p", "missing")
	if !kerrors.HasCode(err, kerrors.CodeSchema) {
		t.Fatalf("expected schema error, got %v", err)
	}
	if mock.Calls() != 0 {
		t.Fatal("no LLM call expected for an unknown schema")
	}
}

func TestFunc(t *testing.T) {
	f := NewFunc("Echo", func(_ context.Context, history []message.Message) (Output, error) {
		return Output{Content: history[len(history)-1].Content}, nil
	})
	var _ Action = f
	var _ Prefixer = f

	out, err := f.Run(context.Background(), []message.Message{message.New("hello")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Content != "hello" || f.Type() != "Echo" {
		t.Fatalf("unexpected output %+v type %s", out, f.Type())
	}
}

func TestUserRequirement(t *testing.T) {
	req := UserRequirement()
	if req.Type() != message.UserRequirement {
		t.Fatalf("type = %s", req.Type())
	}
	if _, err := req.Run(context.Background(), nil); !kerrors.HasCode(err, kerrors.CodeActionFailure) {
		t.Fatalf("expected action failure, got %v", err)
	}
}

func TestPromptRendersHistory(t *testing.T) {
	mock := &llm.MockProvider{Response: "PRD ready"}
	p, err := NewPrompt("WritePRD",
		"As {{.Profile}}, write a PRD for: {{.Last}}\n\n{{.History}}", "",
		WithLLM(newClient(mock)),
	)
	if err != nil {
		t.Fatalf("NewPrompt: %v", err)
	}
	p.SetPrefix("prefix", "Product Manager")

	history := []message.Message{
		message.New("write a snake game", message.WithRole("Boss")),
	}
	out, err := p.Run(context.Background(), history)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Content != "PRD ready" {
		t.Fatalf("content = %q", out.Content)
	}
	want := "As Product Manager, write a PRD for: write a snake game\n\nBoss: write a snake game"
	if got := mock.Requests()[0].Messages; got[len(got)-1].Content != want {
		t.Fatalf("prompt = %q, want %q", got[len(got)-1].Content, want)
	}
}

func TestPromptBadTemplate(t *testing.T) {
	if _, err := NewPrompt("X", "{{.Nope", ""); !kerrors.HasCode(err, kerrors.CodeConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestPromptStructured(t *testing.T) {
	mock := llm.NewScriptedMockProvider(`[CONTENT]{"title": "t", "files": []}[/CONTENT]`)
	p, err := NewPrompt("WriteDesign", "", "design",
		WithLLM(newClient(mock)),
		WithSchemas(newRegistry(t)),
	)
	if err != nil {
		t.Fatalf("NewPrompt: %v", err)
	}
	out, err := p.Run(context.Background(), []message.Message{message.New("prd")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Payload == nil {
		t.Fatal("expected payload")
	}
	if got := mock.LastPrompt(); got != "user: prd" {
		t.Fatalf("default instruction rendered %q", got)
	}
}
