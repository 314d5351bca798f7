// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package gemini

import (
	"testing"

	"google.golang.org/genai"

	"github.com/jllopis/agora/pkg/llm"
)

func TestBuildRequest(t *testing.T) {
	contents, config := buildRequest(llm.ChatRequest{
		Model:       "gemini-2.0-flash",
		Temperature: 0.5,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "be brief"},
			{Role: llm.RoleSystem, Content: "You are Bob"},
			{Role: llm.RoleUser, Content: "hi"},
			{Role: llm.RoleAssistant, Content: "hello"},
		},
	})

	if len(contents) != 2 || contents[0].Role != "user" || contents[1].Role != "model" {
		t.Fatalf("unexpected contents %+v", contents)
	}
	if config.SystemInstruction == nil || config.SystemInstruction.Parts[0].Text != "be brief\n\nYou are Bob" {
		t.Fatalf("unexpected system instruction %+v", config.SystemInstruction)
	}
	if config.Temperature == nil || *config.Temperature != 0.5 {
		t.Fatalf("unexpected temperature %v", config.Temperature)
	}
}

func TestFromResponse(t *testing.T) {
	resp, err := fromResponse(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: "1"}, {Text: "2"}}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     30,
			CandidatesTokenCount: 1,
			TotalTokenCount:      31,
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "12" || resp.Usage.PromptTokens != 30 || resp.Usage.TotalTokens != 31 {
		t.Fatalf("unexpected response %+v", resp)
	}

	if _, err := fromResponse(&genai.GenerateContentResponse{}); err == nil {
		t.Fatal("expected error for empty candidates")
	}
}
