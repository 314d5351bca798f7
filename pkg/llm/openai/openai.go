// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

// Package openai adapts the OpenAI Chat Completions API to llm.Provider.
package openai

import (
	"context"
	"fmt"

	"github.com/jllopis/agora/pkg/llm"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultMaxTokens caps completions when the request sets no limit.
const DefaultMaxTokens = 4096

// Options configure the provider.
type Options struct {
	APIKey  string
	BaseURL string
}

// Provider calls the Chat Completions endpoint.
type Provider struct {
	client *openai.Client
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
	client := openai.NewClient(clientOpts...)
	return &Provider{client: &client}
}

// NewFromClient wraps an existing SDK client.
func NewFromClient(client *openai.Client) *Provider {
	return &Provider{client: client}
}

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	resp, err := p.client.Chat.Completions.New(ctx, buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	return fromCompletion(resp)
}

func buildParams(req llm.ChatRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case llm.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               req.Model,
		MaxCompletionTokens: openai.Int(maxTokens),
	}
	if req.Temperature != 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	return params
}

func fromCompletion(resp *openai.ChatCompletion) (*llm.ChatResponse, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}
	return &llm.ChatResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}
