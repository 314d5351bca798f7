// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"maps"
	"sync"
)

// InMemoryBackend keeps one VectorIndex per owner for the lifetime of the
// process. Stores survive Close, so a later Load by the same owner sees
// what was added, which makes it a drop-in backend for tests and demos.
type InMemoryBackend struct {
	mu       sync.Mutex
	embedder Embedder
	owners   map[string]*VectorIndex
}

var _ Backend = (*InMemoryBackend)(nil)

// NewInMemoryBackend creates an empty in-process backend.
func NewInMemoryBackend(embedder Embedder) *InMemoryBackend {
	if embedder == nil {
		embedder = NewHashEmbedder(0)
	}
	return &InMemoryBackend{embedder: embedder, owners: make(map[string]*VectorIndex)}
}

// Load returns the owner's store when it holds at least one document.
func (b *InMemoryBackend) Load(_ context.Context, owner string) (SimilarityStore, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ix, ok := b.owners[owner]
	if !ok || ix.Len() == 0 {
		return nil, false, nil
	}
	return &inMemoryStore{index: ix}, true, nil
}

// Create returns the owner's store, creating an empty one if needed.
func (b *InMemoryBackend) Create(_ context.Context, owner string) (SimilarityStore, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ix, ok := b.owners[owner]
	if !ok {
		ix = NewVectorIndex(b.embedder)
		b.owners[owner] = ix
	}
	return &inMemoryStore{index: ix}, nil
}

// Drop forgets everything stored for owner.
func (b *InMemoryBackend) Drop(_ context.Context, owner string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.owners, owner)
	return nil
}

type inMemoryStore struct {
	index *VectorIndex
}

func (s *inMemoryStore) AddText(ctx context.Context, id, text string, metadata map[string]string) error {
	vec, err := s.index.Embed(ctx, text)
	if err != nil {
		return err
	}
	s.index.Put(Document{ID: id, Text: text, Metadata: maps.Clone(metadata)}, vec)
	return nil
}

func (s *inMemoryStore) SearchSimilarWithScore(ctx context.Context, query string, k int) ([]ScoredDocument, error) {
	vec, err := s.index.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.index.Search(vec, k), nil
}

func (s *inMemoryStore) Documents(context.Context) ([]Document, error) {
	return s.index.Documents(), nil
}

func (s *inMemoryStore) Delete(_ context.Context, id string) error {
	s.index.Remove(id)
	return nil
}

func (s *inMemoryStore) Persist(context.Context) error { return nil }

func (s *inMemoryStore) Close() error { return nil }
