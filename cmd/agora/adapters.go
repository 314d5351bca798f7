// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	kerrors "github.com/jllopis/agora/pkg/errors"
)

// Adapter describes a provider, backend or exporter agora can be configured with.
type Adapter struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	ConfigKeys  []string `json:"config_keys,omitempty"`
	Docs        string   `json:"docs,omitempty"`
}

var adaptersRegistry = []Adapter{
	// LLM providers
	{
		Name:        "ollama",
		Type:        "llm",
		Description: "Local LLM inference with Ollama",
		ConfigKeys:  []string{"llm.provider=ollama", "llm.base_url", "llm.model"},
		Docs:        "https://ollama.ai",
	},
	{
		Name:        "openai",
		Type:        "llm",
		Description: "OpenAI Chat Completions",
		ConfigKeys:  []string{"llm.provider=openai", "llm.api_key", "llm.model", "llm.base_url"},
		Docs:        "https://platform.openai.com/docs",
	},
	{
		Name:        "anthropic",
		Type:        "llm",
		Description: "Anthropic Messages API",
		ConfigKeys:  []string{"llm.provider=anthropic", "llm.api_key", "llm.model"},
		Docs:        "https://docs.anthropic.com",
	},
	{
		Name:        "gemini",
		Type:        "llm",
		Description: "Google Gemini GenerateContent",
		ConfigKeys:  []string{"llm.provider=gemini", "llm.api_key", "llm.model"},
		Docs:        "https://ai.google.dev/gemini-api/docs",
	},
	{
		Name:        "mock",
		Type:        "llm",
		Description: "Canned replies for smoke runs, no network",
		ConfigKeys:  []string{"llm.provider=mock"},
		Docs:        "pkg/llm/mock.go",
	},

	// Long-term memory backends
	{
		Name:        "sqlite",
		Type:        "memory",
		Description: "One SQLite file per role under the data dir",
		ConfigKeys:  []string{"memory.long_term.backend=sqlite", "memory.long_term.data_dir"},
		Docs:        "pkg/memory/sqlite",
	},
	{
		Name:        "qdrant",
		Type:        "memory",
		Description: "One Qdrant collection per role over gRPC",
		ConfigKeys:  []string{"memory.long_term.backend=qdrant", "memory.long_term.qdrant_addr"},
		Docs:        "https://qdrant.tech/documentation",
	},
	{
		Name:        "memory",
		Type:        "memory",
		Description: "Process-local stores, lost on exit",
		ConfigKeys:  []string{"memory.long_term.backend=memory"},
		Docs:        "pkg/memory/inmemory.go",
	},

	// Embedders
	{
		Name:        "hash",
		Type:        "embedder",
		Description: "Deterministic hashed bag of words",
		ConfigKeys:  []string{"memory.long_term.embedder=hash", "memory.long_term.embedder_dimensions"},
		Docs:        "pkg/memory/embedder.go",
	},
	{
		Name:        "ollama-embed",
		Type:        "embedder",
		Description: "Ollama /api/embeddings",
		ConfigKeys:  []string{"memory.long_term.embedder=ollama", "memory.long_term.embedder_base_url", "memory.long_term.embedder_model"},
		Docs:        "pkg/memory/ollama",
	},

	// Telemetry
	{
		Name:        "otel-stdout",
		Type:        "telemetry",
		Description: "OpenTelemetry export to stdout",
		ConfigKeys:  []string{"telemetry.enabled=true", "telemetry.exporter=stdout"},
	},
	{
		Name:        "otel-otlp",
		Type:        "telemetry",
		Description: "OpenTelemetry export via OTLP gRPC",
		ConfigKeys:  []string{"telemetry.enabled=true", "telemetry.exporter=otlp", "telemetry.otlp_endpoint"},
	},
}

type adaptersListResult struct {
	Adapters []Adapter `json:"adapters"`
	Total    int       `json:"total"`
}

func filterAdapters(kind string) []Adapter {
	if kind == "" {
		return adaptersRegistry
	}
	filtered := make([]Adapter, 0)
	for _, a := range adaptersRegistry {
		if a.Type == kind {
			filtered = append(filtered, a)
		}
	}
	return filtered
}

func findAdapter(name string) (Adapter, bool) {
	for _, a := range adaptersRegistry {
		if a.Name == name {
			return a, true
		}
	}
	return Adapter{}, false
}

func newAdaptersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adapters",
		Short: "List the providers, backends and exporters agora supports",
	}

	var kind string
	list := &cobra.Command{
		Use:  "list",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.adaptersList(cmd.OutOrStdout(), kind)
		},
	}
	list.Flags().StringVar(&kind, "type", "", "Filter by type: llm, memory, embedder, telemetry")

	info := &cobra.Command{
		Use:  "info <name>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.adapterInfo(cmd.OutOrStdout(), args[0])
		},
	}

	cmd.AddCommand(list, info)
	return cmd
}

func (a *app) adaptersList(out io.Writer, kind string) error {
	adapters := filterAdapters(kind)
	if a.flags.JSON {
		return writeJSON(out, adaptersListResult{Adapters: adapters, Total: len(adapters)})
	}
	if len(adapters) == 0 {
		_, err := io.WriteString(out, "No adapters found.\n")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	w := &errWriter{w: tw}
	w.printf("NAME\tTYPE\tDESCRIPTION\n")
	for _, ad := range adapters {
		w.printf("%s\t%s\t%s\n", ad.Name, ad.Type, ad.Description)
	}
	if w.err != nil {
		return w.err
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := io.WriteString(out, "\nTotal: "+itoa(len(adapters))+" adapters\n")
	return err
}

func (a *app) adapterInfo(out io.Writer, name string) error {
	found, ok := findAdapter(name)
	if !ok {
		return kerrors.New(kerrors.CodeNotFound, "adapter "+name+" not found", nil).
			WithContext("name", name)
	}
	if a.flags.JSON {
		return writeJSON(out, found)
	}
	w := &errWriter{w: out}
	w.printf("Adapter: %s\nType: %s\nDescription: %s\n", found.Name, found.Type, found.Description)
	if len(found.ConfigKeys) > 0 {
		w.printf("\nConfiguration:\n")
		for _, k := range found.ConfigKeys {
			w.printf("  - %s\n", k)
		}
	}
	if found.Docs != "" {
		w.printf("\nDocumentation: %s\n", found.Docs)
	}
	return w.err
}
