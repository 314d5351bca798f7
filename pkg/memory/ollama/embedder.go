// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

// Package ollama embeds text through a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	kerrors "github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/memory"
)

const (
	// DefaultBaseURL is the local Ollama endpoint.
	DefaultBaseURL = "http://localhost:11434"
	// DefaultModel is used when no embedding model is configured.
	DefaultModel = "nomic-embed-text"
	// DefaultCacheSize bounds the number of remembered embeddings.
	DefaultCacheSize = 1024
)

// Embedder implements memory.Embedder on the /api/embed endpoint.
// Vectors are cached by text: role recovery and duplicate checks embed
// the same message contents again and again.
type Embedder struct {
	baseURL string
	model   string
	http    *http.Client
	cache   *lru.Cache[string, []float32]
}

var _ memory.Embedder = (*Embedder)(nil)

// NewEmbedder returns an embedder for model on the server at baseURL.
func NewEmbedder(baseURL, model string) *Embedder {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	cache, _ := lru.New[string, []float32](DefaultCacheSize)
	return &Embedder{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    &http.Client{Timeout: time.Minute},
		cache:   cache,
	}
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns the unit-length embedding of text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := e.cache.Get(text); ok {
		return vec, nil
	}

	payload, err := json.Marshal(embedRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, e.fail("encode embed request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, e.fail("build embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, e.fail("call ollama", err).WithRecoverable(true)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, e.fail(fmt.Sprintf("ollama returned %s", resp.Status), nil).
			WithRecoverable(resp.StatusCode >= 500)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, e.fail("decode embed response", err)
	}
	if len(out.Embeddings) == 0 || len(out.Embeddings[0]) == 0 {
		return nil, e.fail("empty embedding", nil)
	}

	vec := memory.Normalize(out.Embeddings[0])
	e.cache.Add(text, vec)
	return vec, nil
}

func (e *Embedder) fail(msg string, cause error) *kerrors.Error {
	return kerrors.New(kerrors.CodeMemory, msg, cause).WithContext("model", e.model)
}
