// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"
)

// DefaultBudget is the spending ceiling in USD when none is invested.
var DefaultBudget = decimal.NewFromInt(10)

var thousand = decimal.NewFromInt(1000)

// Price is the USD cost per 1K tokens.
type Price struct {
	Prompt     decimal.Decimal
	Completion decimal.Decimal
}

func price(prompt, completion string) Price {
	return Price{Prompt: decimal.RequireFromString(prompt), Completion: decimal.RequireFromString(completion)}
}

// DefaultPrices lists known model prices. Unknown models cost nothing.
var DefaultPrices = map[string]Price{
	"gpt-3.5-turbo":          price("0.0015", "0.002"),
	"gpt-3.5-turbo-0301":     price("0.0015", "0.002"),
	"gpt-3.5-turbo-0613":     price("0.0015", "0.002"),
	"gpt-3.5-turbo-16k":      price("0.003", "0.004"),
	"gpt-3.5-turbo-16k-0613": price("0.003", "0.004"),
	"gpt-4-0314":             price("0.03", "0.06"),
	"gpt-4":                  price("0.03", "0.06"),
	"gpt-4-32k":              price("0.06", "0.12"),
	"gpt-4-32k-0314":         price("0.06", "0.12"),
	"gpt-4-0613":             price("0.06", "0.12"),
	"text-embedding-ada-002": price("0.0004", "0"),
}

// CostManager accumulates token usage and spend across every client that
// shares it. It is safe for concurrent use.
type CostManager struct {
	mu               sync.Mutex
	prices           map[string]Price
	budget           decimal.Decimal
	promptTokens     int64
	completionTokens int64
	total            decimal.Decimal
	logger           *slog.Logger
}

// CostOption configures a CostManager.
type CostOption func(*CostManager)

// WithPrices replaces the price table.
func WithPrices(prices map[string]Price) CostOption {
	return func(c *CostManager) { c.prices = prices }
}

// WithBudget sets the spending ceiling.
func WithBudget(budget decimal.Decimal) CostOption {
	return func(c *CostManager) { c.budget = budget }
}

// WithCostLogger sets the logger.
func WithCostLogger(logger *slog.Logger) CostOption {
	return func(c *CostManager) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCostManager returns a manager with the default prices and budget.
func NewCostManager(opts ...CostOption) *CostManager {
	c := &CostManager{
		prices: DefaultPrices,
		budget: DefaultBudget,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Update records usage for model and returns the cost of this call.
func (c *CostManager) Update(model string, usage Usage) decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.prices[model]
	cost := p.Prompt.Mul(decimal.NewFromInt(int64(usage.PromptTokens))).
		Add(p.Completion.Mul(decimal.NewFromInt(int64(usage.CompletionTokens)))).
		Div(thousand)

	c.promptTokens += int64(usage.PromptTokens)
	c.completionTokens += int64(usage.CompletionTokens)
	c.total = c.total.Add(cost)

	c.logger.Info("llm cost updated",
		"model", model,
		"total_cost", c.total.StringFixed(3),
		"max_budget", c.budget.StringFixed(3),
		"current_cost", cost.StringFixed(3),
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
	)
	return cost
}

// SetBudget changes the spending ceiling.
func (c *CostManager) SetBudget(budget decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.budget = budget
}

// Budget returns the spending ceiling.
func (c *CostManager) Budget() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.budget
}

// TotalCost returns the accumulated spend.
func (c *CostManager) TotalCost() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// PromptTokens returns the accumulated prompt tokens.
func (c *CostManager) PromptTokens() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.promptTokens
}

// CompletionTokens returns the accumulated completion tokens.
func (c *CostManager) CompletionTokens() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completionTokens
}

// Exceeded reports whether the spend is above the budget.
func (c *CostManager) Exceeded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total.GreaterThan(c.budget)
}
