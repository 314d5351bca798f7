// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	_ "embed"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/jllopis/agora/pkg/core"
	"github.com/jllopis/agora/pkg/environment"
	kerrors "github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/llm"
	"github.com/jllopis/agora/pkg/role"
	"github.com/jllopis/agora/pkg/team"
	"github.com/jllopis/agora/pkg/telemetry"
)

//go:embed default_team.yaml
var defaultTeam []byte

type runFlags struct {
	Team        string
	Rounds      int
	Investment  float64
	NoTelemetry bool
}

type runResult struct {
	Team      string `json:"team"`
	Idea      string `json:"idea"`
	Rounds    int    `json:"rounds"`
	TotalCost string `json:"total_cost"`
	Budget    string `json:"budget"`
	History   string `json:"history"`
	Error     string `json:"error,omitempty"`
}

func newRunCmd(a *app) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run [idea]",
		Short: "Start a project with a team and play its rounds",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idea := ""
			if len(args) == 1 {
				idea = args[0]
			}
			return a.run(cmd.Context(), cmd.OutOrStdout(), flags, idea)
		},
	}
	cmd.Flags().StringVar(&flags.Team, "team", "", "Team manifest (defaults to runtime.team, then the built-in software company)")
	cmd.Flags().IntVar(&flags.Rounds, "rounds", 0, "Rounds to play (defaults to the manifest, then runtime.rounds)")
	cmd.Flags().Float64Var(&flags.Investment, "investment", 0, "Budget in USD (defaults to the manifest, then runtime.max_budget)")
	cmd.Flags().BoolVar(&flags.NoTelemetry, "no-telemetry", false, "Disable trace and metric export")
	return cmd
}

func (a *app) loadManifest(path string) (*team.Manifest, string, error) {
	if path == "" {
		path = a.cfg.Runtime.Team
	}
	if path == "" {
		m, err := team.ParseManifest(defaultTeam)
		return m, "built-in", err
	}
	m, err := team.LoadManifest(path)
	return m, path, err
}

func (a *app) run(ctx context.Context, out io.Writer, flags runFlags, idea string) error {
	cfg := a.cfg
	manifest, source, err := a.loadManifest(flags.Team)
	if err != nil {
		return err
	}

	if idea == "" {
		idea = manifest.Idea
	}
	if strings.TrimSpace(idea) == "" {
		return kerrors.New(kerrors.CodeConfig, "no idea given and the team manifest has none", nil).
			WithContext("key", "idea")
	}
	rounds := firstPositive(flags.Rounds, manifest.Rounds, cfg.Runtime.Rounds)
	investment := firstPositiveFloat(flags.Investment, manifest.Investment, cfg.Runtime.MaxBudget)

	exporter := cfg.Telemetry.Exporter
	if !cfg.Telemetry.Enabled || flags.NoTelemetry {
		exporter = telemetry.ExporterNone
	}
	shutdown, err := telemetry.InitWithConfig("agora", version, telemetry.Config{
		Exporter:     exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		return kerrors.New(kerrors.CodeConfig, "init telemetry", err).WithContext("key", "telemetry.exporter")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			a.logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	metrics, err := telemetry.NewRuntimeMetrics(nil)
	if err != nil {
		return err
	}
	events := core.LogEventEmitter{Logger: a.logger}

	costs := llm.NewCostManager(llm.WithCostLogger(a.logger))
	client, err := createClient(ctx, cfg.LLM, costs, llm.WithLogger(a.logger))
	if err != nil {
		return err
	}

	roleOpts := []role.Option{
		role.WithLogger(a.logger),
		role.WithMetrics(metrics),
		role.WithEventEmitter(events),
	}
	if cfg.Runtime.ActionTimeoutSeconds > 0 {
		roleOpts = append(roleOpts, role.WithActionTimeout(time.Duration(cfg.Runtime.ActionTimeoutSeconds)*time.Second))
	}
	filter, err := createOutputFilter(cfg.Runtime)
	if err != nil {
		return err
	}
	if filter != nil {
		roleOpts = append(roleOpts, role.WithOutputFilter(filter))
	}
	if lt := cfg.Memory.LongTerm; lt.Enabled {
		backend, closer, err := createBackend(lt)
		if err != nil {
			return err
		}
		if closer != nil {
			defer closer.Close()
		}
		roleOpts = append(roleOpts, role.WithLongTermMemory(backend, lt.Threshold))
	}

	roles, err := manifest.Build(team.BuildConfig{LLM: client, RoleOptions: roleOpts})
	if err != nil {
		return err
	}
	defer func() {
		for _, r := range roles {
			if err := r.Close(); err != nil {
				a.logger.Warn("closing role", "role", r.ID(), "error", err)
			}
		}
	}()

	env := environment.New(
		environment.WithRoundObserver(metrics),
		environment.WithMaxConcurrency(cfg.Runtime.MaxConcurrency),
		environment.WithLogger(a.logger),
		environment.WithEventEmitter(events),
	)
	t := team.New(costs, team.WithEnvironment(env), team.WithLogger(a.logger))
	t.Hire(roles...)
	t.Invest(decimal.NewFromFloat(investment))

	ctx, runID := core.EnsureRunID(ctx)
	a.logger.InfoContext(ctx, "starting project",
		"run_id", runID, "team", manifest.Name, "source", source,
		"roles", len(roles), "rounds", rounds, "provider", cfg.LLM.Provider)

	if err := t.StartProject(ctx, idea); err != nil {
		return err
	}
	history, runErr := t.Run(ctx, rounds)

	result := runResult{
		Team:      manifest.Name,
		Idea:      idea,
		Rounds:    env.Rounds(),
		TotalCost: costs.TotalCost().StringFixed(4),
		Budget:    costs.Budget().String(),
		History:   history,
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}
	if err := a.printRun(out, result); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

func (a *app) printRun(out io.Writer, r runResult) error {
	if a.flags.JSON {
		return writeJSON(out, r)
	}
	w := &errWriter{w: out}
	w.printf("Team: %s\nIdea: %s\n", r.Team, r.Idea)
	w.printf("Rounds: %d  Cost: $%s of $%s\n", r.Rounds, r.TotalCost, r.Budget)
	w.printf("\nHistory:%s\n", r.History)
	return w.err
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstPositiveFloat(values ...float64) float64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
