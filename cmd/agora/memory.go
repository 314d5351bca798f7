// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	kerrors "github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/memory"
)

// ownerLister is implemented by backends that can enumerate their owners.
type ownerLister interface {
	Owners() ([]string, error)
}

type inspectResult struct {
	Owner    string          `json:"owner"`
	Found    bool            `json:"found"`
	Messages []inspectRecord `json:"messages"`
}

type inspectRecord struct {
	Role    string `json:"role"`
	CauseBy string `json:"cause_by"`
	Content string `json:"content"`
	Schema  string `json:"schema,omitempty"`
}

func newMemoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect or clean persisted long-term role memory",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the roles with persisted memory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.memoryList(cmd.OutOrStdout())
		},
	}

	var limit int
	inspect := &cobra.Command{
		Use:   "inspect <role-id>",
		Short: "Print the persisted messages of a role, e.g. \"Alice(Product Manager)\"",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.memoryInspect(cmd.Context(), cmd.OutOrStdout(), args[0], limit)
		},
	}
	inspect.Flags().IntVar(&limit, "limit", 0, "Show only the last n messages (0 shows all)")

	clean := &cobra.Command{
		Use:   "clean <role-id>",
		Short: "Drop everything persisted for a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.memoryClean(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}

	cmd.AddCommand(list, inspect, clean)
	return cmd
}

func (a *app) openBackend() (memory.Backend, io.Closer, error) {
	return createBackend(a.cfg.Memory.LongTerm)
}

func (a *app) memoryList(out io.Writer) error {
	backend, closer, err := a.openBackend()
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}
	lister, ok := backend.(ownerLister)
	if !ok {
		return kerrors.New(kerrors.CodeConfig, "backend cannot list owners", nil).
			WithContext("key", "memory.long_term.backend").
			WithContext("backend", a.cfg.Memory.LongTerm.Backend)
	}
	owners, err := lister.Owners()
	if err != nil {
		return kerrors.New(kerrors.CodeMemory, "list owners", err)
	}
	if a.flags.JSON {
		return writeJSON(out, map[string]any{"owners": owners, "total": len(owners)})
	}
	w := &errWriter{w: out}
	for _, o := range owners {
		w.printf("%s\n", o)
	}
	w.printf("\nTotal: %d\n", len(owners))
	return w.err
}

func (a *app) memoryInspect(ctx context.Context, out io.Writer, owner string, limit int) error {
	backend, closer, err := a.openBackend()
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	storage := memory.NewStorage(backend, memory.WithStorageLogger(a.logger))
	defer storage.Close()
	msgs, err := storage.Recover(ctx, owner)
	if err != nil {
		return err
	}
	if limit > 0 && limit < len(msgs) {
		msgs = msgs[len(msgs)-limit:]
	}

	result := inspectResult{Owner: owner, Found: storage.Initialized(), Messages: []inspectRecord{}}
	for _, m := range msgs {
		rec := inspectRecord{Role: m.Role, CauseBy: string(m.CauseBy), Content: m.Content}
		if m.Payload != nil {
			rec.Schema = m.Payload.SchemaID
		}
		result.Messages = append(result.Messages, rec)
	}

	if a.flags.JSON {
		return writeJSON(out, result)
	}
	if !result.Found {
		_, err := io.WriteString(out, "No persisted memory for "+owner+"\n")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	w := &errWriter{w: tw}
	w.printf("ROLE\tCAUSE_BY\tCONTENT\n")
	for _, r := range result.Messages {
		w.printf("%s\t%s\t%s\n", r.Role, r.CauseBy, oneLine(r.Content, 60))
	}
	if w.err != nil {
		return w.err
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err = io.WriteString(out, "\n"+owner+": "+itoa(len(result.Messages))+" messages\n")
	return err
}

func (a *app) memoryClean(ctx context.Context, out io.Writer, owner string) error {
	backend, closer, err := a.openBackend()
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}
	if err := backend.Drop(ctx, owner); err != nil {
		return kerrors.New(kerrors.CodeMemory, "drop similarity store", err).WithContext("owner", owner)
	}
	a.logger.Info("long-term memory dropped", "owner", owner, "backend", a.cfg.Memory.LongTerm.Backend)
	if a.flags.JSON {
		return writeJSON(out, map[string]any{"owner": owner, "dropped": true})
	}
	_, err = io.WriteString(out, "Dropped memory of "+owner+"\n")
	return err
}
