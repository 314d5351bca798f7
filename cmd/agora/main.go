// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements the agora CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jllopis/agora/pkg/config"
	"github.com/jllopis/agora/pkg/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type globalFlags struct {
	ConfigPath string
	Profile    string
	Sets       []string
	JSON       bool
}

// app carries what every subcommand shares once the config is loaded.
type app struct {
	flags  globalFlags
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{out: os.Stdout}
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		printError(err, a.flags.JSON)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "agora",
		Short:         "Round-based multi-agent message runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd.ErrOrStderr())
		},
	}
	root.SetOut(a.out)

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.ConfigPath, "config", "", "Path to the YAML config file")
	pf.StringVar(&a.flags.Profile, "profile", "", "Config profile overlay (config.<profile>.yaml)")
	pf.StringArrayVar(&a.flags.Sets, "set", nil, "Override a config key (key=value), repeatable")
	pf.BoolVar(&a.flags.JSON, "json", false, "Print machine readable output")

	root.AddCommand(
		newRunCmd(a),
		newMemoryCmd(a),
		newAdaptersCmd(a),
		newVersionCmd(a),
	)
	return root
}

// configArgs renders the global flags in the form config.LoadWithCLI reads.
func (a *app) configArgs() []string {
	var args []string
	if a.flags.ConfigPath != "" {
		args = append(args, "--config", a.flags.ConfigPath)
	}
	if a.flags.Profile != "" {
		args = append(args, "--profile", a.flags.Profile)
	}
	for _, s := range a.flags.Sets {
		args = append(args, "--set", s)
	}
	return args
}

func (a *app) load(logOut io.Writer) error {
	cfg, err := config.LoadWithCLI(a.configArgs())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = telemetry.ConfigureSlog(logOut, cfg.Log.Level, cfg.Log.Format)
	return nil
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the agora version",
		Args:  cobra.NoArgs,
		// version works even when the config does not load.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.flags.JSON {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"version": version})
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "agora %s\n", version)
			return err
		},
	}
}
