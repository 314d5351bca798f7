// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"slices"
	"strings"

	kerrors "github.com/jllopis/agora/pkg/errors"
)

var (
	providers = []string{"ollama", "openai", "anthropic", "gemini", "mock"}
	backends  = []string{"sqlite", "qdrant", "memory"}
	embedders = []string{"hash", "ollama"}
	exporters = []string{"stdout", "otlp", "none"}
	redaction = []string{"mask", "remove", "hash"}
)

// Validate reports the first setting that would make the run fail,
// as a CodeConfig error naming its key.
func (c *Config) Validate() error {
	if !slices.Contains(providers, c.LLM.Provider) {
		return invalid("llm.provider", "unknown provider "+quote(c.LLM.Provider))
	}
	if strings.TrimSpace(c.LLM.Model) == "" && c.LLM.Provider != "mock" {
		return invalid("llm.model", "model is required")
	}
	if (c.LLM.Provider == "openai" || c.LLM.Provider == "anthropic") && c.LLM.APIKey == "" {
		return invalid("llm.api_key", "api key is required for "+c.LLM.Provider)
	}
	if c.LLM.MaxRetries < 0 {
		return invalid("llm.max_retries", "must not be negative")
	}
	if c.LLM.TimeoutSeconds < 0 {
		return invalid("llm.timeout_seconds", "must not be negative")
	}
	if c.LLM.CircuitFailures < 0 {
		return invalid("llm.circuit_failures", "must not be negative")
	}
	if c.LLM.CircuitCooldownSeconds < 0 {
		return invalid("llm.circuit_cooldown_seconds", "must not be negative")
	}

	lt := c.Memory.LongTerm
	if lt.Enabled {
		if !slices.Contains(backends, lt.Backend) {
			return invalid("memory.long_term.backend", "unknown backend "+quote(lt.Backend))
		}
		if !slices.Contains(embedders, lt.Embedder) {
			return invalid("memory.long_term.embedder", "unknown embedder "+quote(lt.Embedder))
		}
		if lt.Backend == "sqlite" && lt.DataDir == "" {
			return invalid("memory.long_term.data_dir", "data dir is required for sqlite")
		}
		if lt.Backend == "qdrant" && lt.QdrantAddr == "" {
			return invalid("memory.long_term.qdrant_addr", "address is required for qdrant")
		}
		if lt.Threshold <= 0 || lt.Threshold > 4 {
			return invalid("memory.long_term.threshold", "must be in (0, 4]")
		}
	}

	if c.Runtime.MaxBudget <= 0 {
		return invalid("runtime.max_budget", "must be positive")
	}
	if c.Runtime.Rounds <= 0 {
		return invalid("runtime.rounds", "must be positive")
	}
	if c.Runtime.ActionTimeoutSeconds < 0 {
		return invalid("runtime.action_timeout_seconds", "must not be negative")
	}
	if c.Runtime.RedactPII != "" && !slices.Contains(redaction, c.Runtime.RedactPII) {
		return invalid("runtime.redact_pii", "must be one of "+strings.Join(redaction, ", "))
	}

	if c.Telemetry.Enabled {
		if !slices.Contains(exporters, c.Telemetry.Exporter) {
			return invalid("telemetry.exporter", "unknown exporter "+quote(c.Telemetry.Exporter))
		}
		if c.Telemetry.Exporter == "otlp" && c.Telemetry.OTLPEndpoint == "" {
			return invalid("telemetry.otlp_endpoint", "endpoint is required for otlp")
		}
	}
	return nil
}

func invalid(key, msg string) error {
	return kerrors.New(kerrors.CodeConfig, key+": "+msg, nil).WithContext("key", key)
}

func quote(s string) string { return `"` + s + `"` }
