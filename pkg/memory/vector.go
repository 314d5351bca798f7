// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"sort"
	"sync"
)

// Document is a text entry of a similarity store with its string metadata.
type Document struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// ScoredDocument is a search hit. Score is a distance: lower means more
// similar. Stores report the squared Euclidean distance between
// L2-normalized embeddings, so scores range over [0, 4].
type ScoredDocument struct {
	Document
	Score float64 `json:"score"`
}

// SimilarityStore is a persistent, vector-indexed document store owned by
// a single role.
type SimilarityStore interface {
	// AddText indexes text under id, replacing any previous entry with that id.
	AddText(ctx context.Context, id, text string, metadata map[string]string) error
	// SearchSimilarWithScore returns up to k documents ordered by ascending distance.
	SearchSimilarWithScore(ctx context.Context, query string, k int) ([]ScoredDocument, error)
	// Documents returns every stored document.
	Documents(ctx context.Context) ([]Document, error)
	// Delete removes the document with id. Unknown ids are ignored.
	Delete(ctx context.Context, id string) error
	// Persist flushes pending writes.
	Persist(ctx context.Context) error
	// Close flushes and releases the store.
	Close() error
}

// Backend opens the similarity store of an owner.
type Backend interface {
	// Load opens the persisted store of owner. The boolean is false when
	// nothing was persisted for owner yet.
	Load(ctx context.Context, owner string) (SimilarityStore, bool, error)
	// Create opens an empty store for owner, creating it if needed.
	Create(ctx context.Context, owner string) (SimilarityStore, error)
	// Drop deletes everything persisted for owner.
	Drop(ctx context.Context, owner string) error
}

// Embedder defines the interface for converting text to vectors.
type Embedder interface {
	// Embed converts a text string into a vector.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is a brute-force nearest neighbour index over normalized
// embeddings. Stores that keep their vectors in process build on it.
type VectorIndex struct {
	mu       sync.RWMutex
	embedder Embedder
	entries  []indexEntry
}

type indexEntry struct {
	doc    Document
	vector []float32
}

// NewVectorIndex returns an empty index embedding text with embedder.
func NewVectorIndex(embedder Embedder) *VectorIndex {
	return &VectorIndex{embedder: embedder}
}

// Embed returns the normalized embedding of text.
func (ix *VectorIndex) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return Normalize(vec), nil
}

// Put stores doc with its vector, replacing an entry with the same id.
func (ix *VectorIndex) Put(doc Document, vector []float32) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for i := range ix.entries {
		if ix.entries[i].doc.ID == doc.ID {
			ix.entries[i] = indexEntry{doc: doc, vector: vector}
			return
		}
	}
	ix.entries = append(ix.entries, indexEntry{doc: doc, vector: vector})
}

// Remove deletes the entry with id and reports whether it existed.
func (ix *VectorIndex) Remove(id string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for i := range ix.entries {
		if ix.entries[i].doc.ID == id {
			ix.entries = append(ix.entries[:i], ix.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Search returns the k entries closest to vector, nearest first.
func (ix *VectorIndex) Search(vector []float32, k int) []ScoredDocument {
	ix.mu.RLock()
	hits := make([]ScoredDocument, 0, len(ix.entries))
	for _, e := range ix.entries {
		hits = append(hits, ScoredDocument{Document: e.doc, Score: SquaredL2(vector, e.vector)})
	}
	ix.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score < hits[j].Score })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Documents returns the indexed documents in insertion order.
func (ix *VectorIndex) Documents() []Document {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	docs := make([]Document, len(ix.entries))
	for i, e := range ix.entries {
		docs[i] = e.doc
	}
	return docs
}

// Len returns the number of entries.
func (ix *VectorIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}
