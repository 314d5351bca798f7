// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

// Package team runs a group of roles on an idea under a spending ceiling.
package team

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	kerrors "github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/environment"
	"github.com/jllopis/agora/pkg/llm"
	"github.com/jllopis/agora/pkg/message"
	"github.com/jllopis/agora/pkg/role"
)

// BossRole is the role of the message that starts a project.
const BossRole = "BOSS"

// DefaultRounds is how many rounds Run plays when asked for none.
const DefaultRounds = 3

// Team hires roles into an environment and runs rounds while the
// accumulated LLM cost stays within the investment.
type Team struct {
	env    *environment.Environment
	costs  *llm.CostManager
	logger *slog.Logger

	idea string
}

// Option configures a Team.
type Option func(*Team)

// WithEnvironment sets the environment roles are hired into.
func WithEnvironment(env *environment.Environment) Option {
	return func(t *Team) {
		if env != nil {
			t.env = env
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Team) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New returns a team whose spending is read from costs. The budget starts
// at llm.DefaultBudget unless costs already carries one.
func New(costs *llm.CostManager, opts ...Option) *Team {
	if costs == nil {
		costs = llm.NewCostManager()
	}
	t := &Team{
		costs:  costs,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.env == nil {
		t.env = environment.New(environment.WithLogger(t.logger))
	}
	return t
}

// Hire adds roles to the environment.
func (t *Team) Hire(roles ...*role.Role) {
	t.env.AddRoles(roles...)
}

// Invest sets the spending ceiling in USD.
func (t *Team) Invest(amount decimal.Decimal) {
	t.costs.SetBudget(amount)
	t.logger.Info("investment", "usd", amount.String())
}

// Investment returns the spending ceiling.
func (t *Team) Investment() decimal.Decimal { return t.costs.Budget() }

// Idea returns the idea of the current project.
func (t *Team) Idea() string { return t.idea }

// Environment returns the team environment.
func (t *Team) Environment() *environment.Environment { return t.env }

// Costs returns the cost accumulator.
func (t *Team) Costs() *llm.CostManager { return t.costs }

// StartProject publishes idea as the boss requirement.
func (t *Team) StartProject(ctx context.Context, idea string) error {
	t.idea = idea
	return t.env.PublishMessage(ctx, message.New(idea,
		message.WithRole(BossRole),
		message.WithCauseBy(message.UserRequirement),
	))
}

// Run plays up to nRound rounds and returns the environment history.
// The balance is checked before every round; running out of budget is a
// CodeBudgetExceeded error.
func (t *Team) Run(ctx context.Context, nRound int) (string, error) {
	if nRound <= 0 {
		nRound = DefaultRounds
	}
	for i := 0; i < nRound; i++ {
		if err := t.checkBalance(); err != nil {
			t.logger.ErrorContext(ctx, "stopping run", "round", t.env.Rounds()+1, "error", err)
			return t.env.History(), err
		}
		if err := t.env.Run(ctx, 1); err != nil {
			return t.env.History(), err
		}
	}
	t.logger.InfoContext(ctx, "run finished",
		"rounds", t.env.Rounds(),
		"total_cost", t.costs.TotalCost().StringFixed(4),
		"budget", t.costs.Budget().String(),
	)
	return t.env.History(), nil
}

func (t *Team) checkBalance() error {
	if !t.costs.Exceeded() {
		return nil
	}
	return kerrors.New(kerrors.CodeBudgetExceeded, "insufficient funds", nil).
		WithContext("total_cost", t.costs.TotalCost().String()).
		WithContext("max_budget", t.costs.Budget().String())
}
