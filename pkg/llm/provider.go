// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm defines the provider contract used by roles and actions,
// the retrying Client on top of it and the running cost accounting.
package llm

import "context"

// Role is the speaker of a chat message.
type Role string

// Chat roles understood by every provider.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is one completion request. Zero Temperature and MaxTokens
// leave the provider defaults.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// ChatResponse is the reply text and what it cost.
type ChatResponse struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Usage counts the tokens of one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Provider is an LLM backend. Implementations return plain errors for
// transport failures; Client decides what to retry.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// SplitSystem separates system messages from the conversation, for
// providers that take the system prompt out of band.
func SplitSystem(msgs []Message) (system []string, rest []Message) {
	for _, m := range msgs {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
