// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/jllopis/agora/pkg/config"
	kerrors "github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/guardrails"
	"github.com/jllopis/agora/pkg/llm"
	"github.com/jllopis/agora/pkg/llm/anthropic"
	"github.com/jllopis/agora/pkg/llm/gemini"
	"github.com/jllopis/agora/pkg/llm/openai"
	"github.com/jllopis/agora/pkg/memory"
	"github.com/jllopis/agora/pkg/memory/ollama"
	"github.com/jllopis/agora/pkg/memory/qdrant"
	"github.com/jllopis/agora/pkg/memory/sqlite"
	"github.com/jllopis/agora/pkg/resilience"
)

func createProvider(ctx context.Context, cfg config.LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "ollama":
		return llm.NewOllama(cfg.BaseURL), nil
	case "openai":
		return openai.New(openai.Options{APIKey: cfg.APIKey, BaseURL: remoteBaseURL(cfg.BaseURL)}), nil
	case "anthropic":
		return anthropic.New(anthropic.Options{APIKey: cfg.APIKey, BaseURL: remoteBaseURL(cfg.BaseURL)}), nil
	case "gemini":
		return gemini.New(ctx, cfg.APIKey)
	case "mock":
		return &llm.MockProvider{ChatFunc: mockChat}, nil
	default:
		return nil, kerrors.New(kerrors.CodeConfig, "unknown llm provider "+cfg.Provider, nil).
			WithContext("key", "llm.provider")
	}
}

// remoteBaseURL drops the local Ollama default so SDK providers keep
// their own endpoint unless one was configured on purpose.
func remoteBaseURL(u string) string {
	if strings.Contains(u, "localhost:11434") {
		return ""
	}
	return u
}

// mockChat answers state prompts with the first stage and any other
// prompt with its opening words.
func mockChat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	last := ""
	if n := len(req.Messages); n > 0 {
		last = req.Messages[n-1].Content
	}
	reply := "[mock] " + oneLine(last, 80)
	if strings.Contains(last, "Just answer a number") {
		reply = "0"
	}
	return &llm.ChatResponse{
		Content: reply,
		Usage:   llm.Usage{PromptTokens: len(last) / 4, CompletionTokens: len(reply) / 4},
	}, nil
}

func createClient(ctx context.Context, cfg config.LLMConfig, costs *llm.CostManager, opts ...llm.ClientOption) (*llm.Client, error) {
	provider, err := createProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	retry := resilience.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry = retry.WithMaxAttempts(cfg.MaxRetries)
	}
	base := []llm.ClientOption{
		llm.WithRetry(retry),
		llm.WithCosts(costs),
		llm.WithTemperature(cfg.Temperature),
	}
	if cfg.TimeoutSeconds > 0 {
		base = append(base, llm.WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second))
	}
	if cfg.CircuitFailures > 0 {
		base = append(base, llm.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             cfg.Provider,
			FailureThreshold: cfg.CircuitFailures,
			Timeout:          time.Duration(cfg.CircuitCooldownSeconds) * time.Second,
		})))
	}
	return llm.NewClient(provider, cfg.Model, append(base, opts...)...), nil
}

func createEmbedder(cfg config.LongTermConfig) (memory.Embedder, error) {
	switch cfg.Embedder {
	case "", "hash":
		return memory.NewHashEmbedder(cfg.EmbedderDimensions), nil
	case "ollama":
		return ollama.NewEmbedder(cfg.EmbedderBaseURL, cfg.EmbedderModel), nil
	default:
		return nil, kerrors.New(kerrors.CodeConfig, "unknown embedder "+cfg.Embedder, nil).
			WithContext("key", "memory.long_term.embedder")
	}
}

// createBackend returns the similarity store backend and, for backends
// holding a connection, the closer that releases it.
func createBackend(cfg config.LongTermConfig) (memory.Backend, io.Closer, error) {
	embedder, err := createEmbedder(cfg)
	if err != nil {
		return nil, nil, err
	}
	switch cfg.Backend {
	case "sqlite":
		return sqlite.NewBackend(cfg.DataDir, embedder), nil, nil
	case "qdrant":
		b, err := qdrant.New(cfg.QdrantAddr, embedder)
		if err != nil {
			return nil, nil, kerrors.New(kerrors.CodeMemory, "connect qdrant", err).
				WithContext("addr", cfg.QdrantAddr)
		}
		return b, b, nil
	case "memory":
		return memory.NewInMemoryBackend(embedder), nil, nil
	default:
		return nil, nil, kerrors.New(kerrors.CodeConfig, "unknown long-term backend "+cfg.Backend, nil).
			WithContext("key", "memory.long_term.backend")
	}
}

// createOutputFilter returns nil when redaction is disabled.
func createOutputFilter(rt config.RuntimeConfig) (guardrails.Filter, error) {
	if rt.RedactPII == "" {
		return nil, nil
	}
	types := make([]guardrails.PIIType, len(rt.RedactPIITypes))
	for i, t := range rt.RedactPIITypes {
		types[i] = guardrails.PIIType(t)
	}
	f, err := guardrails.NewPIIFilter(guardrails.PIIMode(rt.RedactPII), types...)
	if err != nil {
		return nil, kerrors.Wrap(err).WithContext("key", "runtime.redact_pii_types")
	}
	return f, nil
}
