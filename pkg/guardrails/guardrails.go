// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

// Package guardrails filters action output before a role remembers and
// publishes it. Whatever a filter removes never reaches the shared
// environment, the history or long-term memory.
package guardrails

import (
	"context"
	"slices"
)

// Redaction describes one replaced span. The original text is not kept.
type Redaction struct {
	Type        string
	Replacement string
	Position    int
}

// Result is the outcome of filtering one output.
type Result struct {
	Content    string
	Modified   bool
	Redactions []Redaction
}

// Filter rewrites action output.
type Filter interface {
	Filter(ctx context.Context, content string) Result
	ID() string
}

// Chain applies filters in order, each over the previous one's content.
type Chain []Filter

// Filter implements Filter.
func (c Chain) Filter(ctx context.Context, content string) Result {
	res := Result{Content: content}
	for _, f := range c {
		if ctx.Err() != nil {
			break
		}
		r := f.Filter(ctx, res.Content)
		if !r.Modified {
			continue
		}
		res.Content = r.Content
		res.Modified = true
		res.Redactions = append(res.Redactions, r.Redactions...)
	}
	return res
}

// ID implements Filter.
func (c Chain) ID() string { return "chain" }

// Types lists the distinct redaction types of r, in first-seen order.
func (r Result) Types() []string {
	var out []string
	for _, red := range r.Redactions {
		if !slices.Contains(out, red.Type) {
			out = append(out, red.Type)
		}
	}
	return out
}
