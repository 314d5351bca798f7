// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package action

import (
	"context"
	"strings"
	"text/template"

	kerrors "github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/message"
)

// DefaultInstruction renders the history alone.
const DefaultInstruction = "{{.History}}"

// PromptData is the data an instruction template is rendered with.
type PromptData struct {
	Profile  string
	History  string
	Last     string
	Messages []message.Message
}

// Prompt is a template-driven LLM action. When SchemaID is set the reply
// must match that schema.
type Prompt struct {
	*Base
	instruction *template.Template
	schemaID    string
}

// NewPrompt parses instruction as a text/template over PromptData.
func NewPrompt(t message.ActionType, instruction, schemaID string, opts ...Option) (*Prompt, error) {
	if strings.TrimSpace(instruction) == "" {
		instruction = DefaultInstruction
	}
	tmpl, err := template.New(string(t)).Option("missingkey=error").Parse(instruction)
	if err != nil {
		return nil, kerrors.New(kerrors.CodeConfig, "parse action instruction", err).
			WithContext("action", string(t))
	}
	return &Prompt{Base: NewBase(t, opts...), instruction: tmpl, schemaID: schemaID}, nil
}

// Render renders the instruction for history.
func (p *Prompt) Render(history []message.Message) (string, error) {
	lines := make([]string, len(history))
	for i, m := range history {
		lines[i] = m.String()
	}
	data := PromptData{
		Profile:  p.Profile(),
		History:  strings.Join(lines, "\n"),
		Messages: history,
	}
	if n := len(history); n > 0 {
		data.Last = history[n-1].Content
	}

	var sb strings.Builder
	if err := p.instruction.Execute(&sb, data); err != nil {
		return "", kerrors.New(kerrors.CodeActionFailure, "render action instruction", err).
			WithContext("action", string(p.Type()))
	}
	return sb.String(), nil
}

// Run implements Action.
func (p *Prompt) Run(ctx context.Context, history []message.Message) (Output, error) {
	prompt, err := p.Render(history)
	if err != nil {
		return Output{}, err
	}
	if p.schemaID != "" {
		return p.AskStructured(ctx, prompt, p.schemaID)
	}
	content, err := p.Ask(ctx, prompt)
	if err != nil {
		return Output{}, err
	}
	return Output{Content: content}, nil
}
