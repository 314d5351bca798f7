// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

// Package gemini adapts the Google Gemini API to llm.Provider.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/jllopis/agora/pkg/llm"
)

// Provider calls GenerateContent on the Gemini API.
type Provider struct {
	client *genai.Client
}

var _ llm.Provider = (*Provider)(nil)

// New creates a provider. An empty apiKey falls back to GOOGLE_API_KEY or
// GEMINI_API_KEY.
func New(ctx context.Context, apiKey string) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Provider{client: client}, nil
}

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	contents, config := buildRequest(req)
	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}
	return fromResponse(resp)
}

func buildRequest(req llm.ChatRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	system, rest := llm.SplitSystem(req.Messages)

	contents := make([]*genai.Content, 0, len(rest))
	for _, m := range rest {
		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	config := &genai.GenerateContentConfig{}
	if len(system) > 0 {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}},
		}
	}
	if req.Temperature != 0 {
		t := float32(req.Temperature)
		config.Temperature = &t
	}
	return contents, config
}

func fromResponse(resp *genai.GenerateContentResponse) (*llm.ChatResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response")
	}
	out := &llm.ChatResponse{}
	if c := resp.Candidates[0].Content; c != nil {
		var sb strings.Builder
		for _, part := range c.Parts {
			sb.WriteString(part.Text)
		}
		out.Content = sb.String()
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}
