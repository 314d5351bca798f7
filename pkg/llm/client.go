// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"log/slog"
	"time"

	kerrors "github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/resilience"
)

// Client asks a Provider for completions with bounded retry and cost
// accounting. A Client is safe for concurrent use when its Provider is.
type Client struct {
	Provider     Provider
	Model        string
	SystemPrompt string
	Temperature  float64
	Retry        resilience.RetryConfig
	// Timeout bounds every single attempt. Zero means no per-attempt limit.
	Timeout time.Duration
	Costs   *CostManager
	Logger  *slog.Logger
	// Breaker, when set, stops calling a provider that keeps failing.
	Breaker *resilience.CircuitBreaker
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithSystemPrompt sets the default system prompt.
func WithSystemPrompt(prompt string) ClientOption {
	return func(c *Client) { c.SystemPrompt = prompt }
}

// WithRetry sets the retry policy.
func WithRetry(rc resilience.RetryConfig) ClientOption {
	return func(c *Client) { c.Retry = rc }
}

// WithTimeout bounds every attempt.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.Timeout = d }
}

// WithCosts shares a cost manager.
func WithCosts(costs *CostManager) ClientOption {
	return func(c *Client) { c.Costs = costs }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) ClientOption {
	return func(c *Client) { c.Temperature = t }
}

// WithCircuitBreaker guards provider calls with cb.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) ClientOption {
	return func(c *Client) { c.Breaker = cb }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// NewClient returns a client for model on provider.
func NewClient(provider Provider, model string, opts ...ClientOption) *Client {
	c := &Client{
		Provider:     provider,
		Model:        model,
		SystemPrompt: "You are a helpful assistant.",
		Retry:        resilience.DefaultRetryConfig(),
		Logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ask sends prompt as the user message, preceded by the client's system
// prompt and any extra system messages, and returns the reply text.
// Provider failures are retried; the last one is returned as CodeLLM.
func (c *Client) Ask(ctx context.Context, prompt string, systemMsgs ...string) (string, error) {
	msgs := make([]Message, 0, len(systemMsgs)+2)
	if c.SystemPrompt != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: c.SystemPrompt})
	}
	for _, s := range systemMsgs {
		msgs = append(msgs, Message{Role: RoleSystem, Content: s})
	}
	msgs = append(msgs, Message{Role: RoleUser, Content: prompt})

	resp, err := c.Chat(ctx, msgs)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Chat sends msgs as is, with retry and cost accounting.
func (c *Client) Chat(ctx context.Context, msgs []Message) (*ChatResponse, error) {
	req := ChatRequest{Model: c.Model, Messages: msgs, Temperature: c.Temperature}

	var resp *ChatResponse
	attempt := 0
	err := c.Retry.Do(ctx, func() error {
		attempt++
		err := c.guard(ctx, func() error {
			return resilience.WithTimeout(ctx, c.Timeout, func(ctx context.Context) error {
				r, err := c.Provider.Chat(ctx, req)
				if err != nil {
					return err
				}
				resp = r
				return nil
			})
		})
		if err != nil {
			c.logger().Warn("llm call failed", "model", c.Model, "attempt", attempt, "error", err)
			if typed := kerrors.As(err); typed != nil {
				return err
			}
			return kerrors.New(kerrors.CodeLLM, "provider call failed", err).WithRecoverable(true)
		}
		return nil
	})
	if err != nil {
		return nil, kerrors.New(kerrors.CodeLLM, "llm call failed", err).
			WithContext("model", c.Model).
			WithContext("attempts", attempt)
	}

	if c.Costs != nil {
		c.Costs.Update(c.Model, resp.Usage)
	}
	return resp, nil
}

func (c *Client) guard(ctx context.Context, fn func() error) error {
	if c.Breaker == nil {
		return fn()
	}
	return c.Breaker.Call(ctx, fn)
}

func (c *Client) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}
