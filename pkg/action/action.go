// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

// Package action defines the capabilities a role can invoke and the
// LLM-backed helpers most of them are built on.
package action

import (
	"context"
	"log/slog"
	"sync"
	"time"

	kerrors "github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/llm"
	"github.com/jllopis/agora/pkg/message"
	"github.com/jllopis/agora/pkg/resilience"
)

// Action is a capability a role invokes with its relevant history.
// Implementations must be safe to retry.
type Action interface {
	// Type is the tag stamped as CauseBy on the messages the action produces.
	Type() message.ActionType
	// Run produces new content from history.
	Run(ctx context.Context, history []message.Message) (Output, error)
}

// Output is the result of an action run.
type Output struct {
	Content string
	Payload *message.Payload
}

// Prefixer is implemented by actions that want the role's identity preamble.
type Prefixer interface {
	SetPrefix(prefix, profile string)
}

// DefaultStructuredRetry is the retry policy for schema-checked output:
// three attempts one second apart.
func DefaultStructuredRetry() resilience.RetryConfig {
	return resilience.FixedRetryConfig(3, time.Second)
}

// Base carries what LLM-backed actions share. Embed *Base in concrete actions.
type Base struct {
	name    message.ActionType
	llm     *llm.Client
	schemas *message.Registry
	retry   resilience.RetryConfig
	logger  *slog.Logger

	mu      sync.RWMutex
	prefix  string
	profile string
}

// Option configures a Base.
type Option func(*Base)

// WithLLM sets the LLM client.
func WithLLM(client *llm.Client) Option {
	return func(b *Base) { b.llm = client }
}

// WithSchemas sets the registry used to validate structured output.
func WithSchemas(reg *message.Registry) Option {
	return func(b *Base) { b.schemas = reg }
}

// WithRetry sets the structured output retry policy.
func WithRetry(rc resilience.RetryConfig) Option {
	return func(b *Base) { b.retry = rc }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Base) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBase returns a Base producing messages tagged t.
func NewBase(t message.ActionType, opts ...Option) *Base {
	b := &Base{
		name:   t,
		retry:  DefaultStructuredRetry(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Type implements Action.
func (b *Base) Type() message.ActionType { return b.name }

// String returns the action type.
func (b *Base) String() string { return string(b.name) }

// SetPrefix implements Prefixer.
func (b *Base) SetPrefix(prefix, profile string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prefix = prefix
	b.profile = profile
}

// Prefix returns the role preamble set by SetPrefix.
func (b *Base) Prefix() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.prefix
}

// Profile returns the owning role's profile.
func (b *Base) Profile() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.profile
}

// LLM returns the client, or nil.
func (b *Base) LLM() *llm.Client { return b.llm }

// Ask sends prompt with systemMsgs followed by the role preamble.
func (b *Base) Ask(ctx context.Context, prompt string, systemMsgs ...string) (string, error) {
	if b.llm == nil {
		return "", kerrors.New(kerrors.CodeConfig, "action has no LLM client", nil).
			WithContext("action", string(b.name))
	}
	msgs := append([]string(nil), systemMsgs...)
	if prefix := b.Prefix(); prefix != "" {
		msgs = append(msgs, prefix)
	}
	return b.llm.Ask(ctx, prompt, msgs...)
}

// AskStructured asks for output matching the schema registered as
// schemaID. The JSON is taken from the [CONTENT]...[/CONTENT] block of the
// reply, or the whole reply. Mismatches are retried by the Base retry
// policy and finally surface as CodeActionFailure wrapping the last
// CodeSchema error. LLM failures are not retried here.
func (b *Base) AskStructured(ctx context.Context, prompt, schemaID string, systemMsgs ...string) (Output, error) {
	if b.schemas == nil {
		return Output{}, kerrors.New(kerrors.CodeSchema, "action has no schema registry", nil).
			WithContext("action", string(b.name))
	}
	if !b.schemas.Has(schemaID) {
		return Output{}, kerrors.New(kerrors.CodeSchema, "unknown schema", nil).
			WithContext("action", string(b.name)).
			WithContext("schema_id", schemaID)
	}

	var (
		out      Output
		attempts int
	)
	err := b.retry.Do(ctx, func() error {
		attempts++
		content, err := b.Ask(ctx, prompt, systemMsgs...)
		if err != nil {
			return err
		}
		payload, err := b.schemas.NewPayload(schemaID, []byte(ExtractContent(content)))
		if err != nil {
			b.logger.Warn("structured output rejected",
				"action", b.name,
				"profile", b.Profile(),
				"schema_id", schemaID,
				"attempt", attempts,
				"error", err,
			)
			if typed := kerrors.As(err); typed != nil {
				typed.WithRecoverable(true)
			}
			return err
		}
		out = Output{Content: content, Payload: payload}
		return nil
	})
	if err != nil {
		return Output{}, kerrors.New(kerrors.CodeActionFailure, "structured output failed", err).
			WithContext("action", string(b.name)).
			WithContext("schema_id", schemaID).
			WithContext("attempts", attempts)
	}
	return out, nil
}
