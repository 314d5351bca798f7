// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

// Package anthropic adapts the Anthropic Messages API to llm.Provider.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/jllopis/agora/pkg/llm"
)

// DefaultMaxTokens caps completions when the request sets no limit.
const DefaultMaxTokens = 4096

// Options configure the provider.
type Options struct {
	APIKey  string
	BaseURL string
}

// Provider calls the Messages endpoint.
type Provider struct {
	client *anthropic.Client
}

var _ llm.Provider = (*Provider)(nil)

// New creates a provider. SDK retries are disabled; llm.Client retries.
func New(opts Options) *Provider {
	clientOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := anthropic.NewClient(clientOpts...)
	return &Provider{client: &client}
}

// NewFromClient wraps an existing SDK client.
func NewFromClient(client *anthropic.Client) *Provider {
	return &Provider{client: client}
}

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	resp, err := p.client.Messages.New(ctx, buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}
	return fromMessage(resp)
}

func buildParams(req llm.ChatRequest) anthropic.MessageNewParams {
	system, rest := llm.SplitSystem(req.Messages)

	messages := make([]anthropic.MessageParam, 0, len(rest))
	for _, m := range rest {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == llm.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
			continue
		}
		messages = append(messages, anthropic.NewUserMessage(block))
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}
	if req.Temperature != 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	return params
}

func fromMessage(resp *anthropic.Message) (*llm.ChatResponse, error) {
	if resp == nil {
		return nil, fmt.Errorf("empty response")
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	in, out := int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)
	return &llm.ChatResponse{
		Content: sb.String(),
		Usage:   llm.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out},
	}, nil
}
