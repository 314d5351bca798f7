// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the runtime configuration: built-in defaults, a
// YAML file, an optional profile overlay, AGORA_* environment variables
// and --set overrides, in that order.
package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	kerrors "github.com/jllopis/agora/pkg/errors"
)

// EnvPrefix prefixes environment overrides: AGORA_LLM_API_KEY sets llm.api_key.
const EnvPrefix = "AGORA_"

type Config struct {
	Log       LogConfig       `koanf:"log"`
	LLM       LLMConfig       `koanf:"llm"`
	Memory    MemoryConfig    `koanf:"memory"`
	Runtime   RuntimeConfig   `koanf:"runtime"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type LLMConfig struct {
	Provider       string  `koanf:"provider"` // ollama, openai, anthropic, gemini, mock
	Model          string  `koanf:"model"`
	BaseURL        string  `koanf:"base_url"`
	APIKey         string  `koanf:"api_key"`
	Temperature    float64 `koanf:"temperature"`
	MaxRetries     int     `koanf:"max_retries"`
	TimeoutSeconds int     `koanf:"timeout_seconds"`
	// CircuitFailures opens the provider circuit after that many
	// consecutive failures. Zero disables the breaker.
	CircuitFailures        int `koanf:"circuit_failures"`
	CircuitCooldownSeconds int `koanf:"circuit_cooldown_seconds"`
}

type MemoryConfig struct {
	LongTerm LongTermConfig `koanf:"long_term"`
}

type LongTermConfig struct {
	Enabled            bool    `koanf:"enabled"`
	Backend            string  `koanf:"backend"` // sqlite, qdrant, memory
	DataDir            string  `koanf:"data_dir"`
	QdrantAddr         string  `koanf:"qdrant_addr"`
	Threshold          float64 `koanf:"threshold"`
	Embedder           string  `koanf:"embedder"` // hash, ollama
	EmbedderBaseURL    string  `koanf:"embedder_base_url"`
	EmbedderModel      string  `koanf:"embedder_model"`
	EmbedderDimensions int     `koanf:"embedder_dimensions"`
}

type RuntimeConfig struct {
	Rounds               int     `koanf:"rounds"`
	MaxBudget            float64 `koanf:"max_budget"`
	ActionTimeoutSeconds int     `koanf:"action_timeout_seconds"`
	MaxConcurrency       int     `koanf:"max_concurrency"`
	Team                 string  `koanf:"team"` // team manifest path
	// RedactPII masks personal data in action output: mask, remove or
	// hash. Empty disables it.
	RedactPII      string   `koanf:"redact_pii"`
	RedactPIITypes []string `koanf:"redact_pii_types"`
}

type TelemetryConfig struct {
	Enabled      bool   `koanf:"enabled"`
	Exporter     string `koanf:"exporter"` // stdout, otlp, none
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

var defaults = map[string]any{
	"log.level":  "info",
	"log.format": "text",

	"llm.provider":                 "ollama",
	"llm.model":                    "qwen2.5-coder:7b-instruct-q5_K_M",
	"llm.base_url":                 "http://localhost:11434",
	"llm.api_key":                  "",
	"llm.temperature":              0.0,
	"llm.max_retries":              3,
	"llm.timeout_seconds":          120,
	"llm.circuit_failures":         5,
	"llm.circuit_cooldown_seconds": 30,

	"memory.long_term.enabled":             false,
	"memory.long_term.backend":             "sqlite",
	"memory.long_term.data_dir":            "data",
	"memory.long_term.qdrant_addr":         "localhost:6334",
	"memory.long_term.threshold":           0.1,
	"memory.long_term.embedder":            "hash",
	"memory.long_term.embedder_base_url":   "http://localhost:11434",
	"memory.long_term.embedder_model":      "nomic-embed-text",
	"memory.long_term.embedder_dimensions": 256,

	"runtime.rounds":                 5,
	"runtime.max_budget":             10.0,
	"runtime.action_timeout_seconds": 300,
	"runtime.max_concurrency":        0,
	"runtime.team":                   "",
	"runtime.redact_pii":             "",

	"telemetry.enabled":       false,
	"telemetry.exporter":      "stdout",
	"telemetry.otlp_endpoint": "",
	"telemetry.otlp_insecure": false,
}

// Load reads path (optional) over the defaults, then the environment.
func Load(path string) (*Config, error) {
	return load(path, "", nil)
}

// LoadWithProfile also overlays config.<profile>.yaml next to path when
// that file exists.
func LoadWithProfile(path, profile string) (*Config, error) {
	return load(path, profile, nil)
}

// LoadWithCLI reads --config, --profile (alias --env) and repeated
// --set key=value from args. Unknown arguments are ignored.
func LoadWithCLI(args []string) (*Config, error) {
	opts, overrides, err := parseCLIOverrides(args)
	if err != nil {
		return nil, err
	}
	return load(opts.path, opts.profile, overrides)
}

func load(path, profile string, overrides []override) (*Config, error) {
	k := koanf.New(".")
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, kerrors.New(kerrors.CodeConfig, "set default", err).WithContext("key", key)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, kerrors.New(kerrors.CodeConfig, "load config file", err).WithContext("path", path)
		}
		if overlay := profileConfigPath(path, profile); overlay != "" {
			if err := k.Load(file.Provider(overlay), yaml.Parser()); err != nil {
				return nil, kerrors.New(kerrors.CodeConfig, "load profile config", err).WithContext("path", overlay)
			}
		}
	}

	known := k.Keys()
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return envKey(s, known)
	}), nil); err != nil {
		return nil, kerrors.New(kerrors.CodeConfig, "load environment", err)
	}

	for _, o := range overrides {
		if err := k.Set(o.key, o.value); err != nil {
			return nil, kerrors.New(kerrors.CodeConfig, "apply override", err).WithContext("key", o.key)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, kerrors.New(kerrors.CodeConfig, "decode config", err)
	}
	return &cfg, nil
}

// envKey maps AGORA_MEMORY_LONG_TERM_DATA_DIR to memory.long_term.data_dir
// by matching against the known keys, since key segments contain
// underscores themselves. Unknown names fall back to one segment per word.
func envKey(name string, known []string) string {
	flat := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	idx := slices.IndexFunc(known, func(key string) bool {
		return strings.ReplaceAll(key, ".", "_") == flat
	})
	if idx >= 0 {
		return known[idx]
	}
	return strings.ReplaceAll(flat, "_", ".")
}

// profileConfigPath returns config.<profile>.yaml beside base when it exists.
func profileConfigPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	ext := filepath.Ext(base)
	candidate := strings.TrimSuffix(base, ext) + "." + profile + ext
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}
