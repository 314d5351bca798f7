// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	kerrors "github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/message"
)

// countingBackend counts documents written through its stores.
type countingBackend struct {
	*InMemoryBackend
	writes atomic.Int64
}

func (b *countingBackend) Load(ctx context.Context, owner string) (SimilarityStore, bool, error) {
	store, ok, err := b.InMemoryBackend.Load(ctx, owner)
	if store != nil {
		store = &countingStore{SimilarityStore: store, writes: &b.writes}
	}
	return store, ok, err
}

func (b *countingBackend) Create(ctx context.Context, owner string) (SimilarityStore, error) {
	store, err := b.InMemoryBackend.Create(ctx, owner)
	if err != nil {
		return nil, err
	}
	return &countingStore{SimilarityStore: store, writes: &b.writes}, nil
}

type countingStore struct {
	SimilarityStore
	writes *atomic.Int64
}

func (s *countingStore) AddText(ctx context.Context, id, text string, metadata map[string]string) error {
	s.writes.Add(1)
	return s.SimilarityStore.AddText(ctx, id, text, metadata)
}

func newLongTerm(backend Backend) *LongTerm {
	return NewLongTerm(NewStorage(backend), nil)
}

func TestLongTermAddBeforeRecovery(t *testing.T) {
	lt := newLongTerm(NewInMemoryBackend(nil))
	err := lt.Add(context.Background(), msg("early", actX))
	if !kerrors.HasCode(err, kerrors.CodeMemory) {
		t.Fatalf("expected memory error, got %v", err)
	}
}

func TestLongTermRecovery(t *testing.T) {
	ctx := context.Background()
	backend := &countingBackend{InMemoryBackend: NewInMemoryBackend(nil)}
	watch := []message.ActionType{actX}

	first := newLongTerm(backend)
	if err := first.Recover(ctx, "role-7", watch); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if first.Initialized() || first.Count() != 0 {
		t.Fatal("first run must start uninitialized and empty")
	}

	for i := 0; i < 5; i++ {
		if err := first.Add(ctx, msg(fmt.Sprintf("requirement number %d about topic %d", i, i*7), actX)); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	// Unwatched messages stay short-term only.
	if err := first.Add(ctx, msg("scratch note", actY)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := backend.writes.Load(); got != 5 {
		t.Fatalf("expected 5 mirrored writes, got %d", got)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second := newLongTerm(backend)
	if err := second.Recover(ctx, "role-7", watch); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if !second.Initialized() {
		t.Fatal("expected initialized store after restart")
	}
	if second.Count() != 5 {
		t.Fatalf("expected 5 recovered messages, got %d", second.Count())
	}
	assertContents(t, second.GetByAction(actX)[:1], "requirement number 0 about topic 0")
	if got := backend.writes.Load(); got != 5 {
		t.Fatalf("recovery must not re-mirror, got %d writes", got)
	}

	// Other owners are isolated.
	other := newLongTerm(backend)
	if err := other.Recover(ctx, "role-8", watch); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if other.Initialized() || other.Count() != 0 {
		t.Fatal("expected empty memory for a different owner")
	}
}

func TestLongTermSemanticNews(t *testing.T) {
	ctx := context.Background()
	lt := newLongTerm(NewInMemoryBackend(nil))
	if err := lt.Recover(ctx, "Bob(Engineer)", []message.ActionType{actX}); err != nil {
		t.Fatalf("recover: %v", err)
	}

	seen := message.New("Write a snake game in Go", message.WithRole("BOSS"), message.WithCauseBy(actX))
	if err := lt.Add(ctx, seen); err != nil {
		t.Fatalf("add: %v", err)
	}

	// Unrelated persisted neighbours must not rescue a near duplicate.
	for _, c := range []string{"Review the quarterly budget spreadsheet", "Deploy the staging cluster to production"} {
		if err := lt.Add(ctx, message.New(c, message.WithRole("PM"), message.WithCauseBy(actX))); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	nearDup := message.New("write a SNAKE game in go!", message.WithRole("Boss"), message.WithCauseBy(actX))
	novel := message.New("Design the database schema for user accounts", message.WithRole("BOSS"), message.WithCauseBy(actX))
	if nearDup.Equal(seen) {
		t.Fatal("test messages must differ structurally")
	}

	news, err := lt.FindNews(ctx, []message.Message{seen, nearDup, novel}, 0)
	if err != nil {
		t.Fatalf("find news: %v", err)
	}
	assertContents(t, news, novel.Content)
}

func TestLongTermFindNewsBeforeStoreExists(t *testing.T) {
	ctx := context.Background()
	lt := newLongTerm(NewInMemoryBackend(nil))
	if err := lt.Recover(ctx, "fresh", []message.ActionType{actX}); err != nil {
		t.Fatalf("recover: %v", err)
	}
	a, b := msg("same words", actY), msg("same words!", actY)
	news, err := lt.FindNews(ctx, []message.Message{a, b}, 0)
	if err != nil {
		t.Fatalf("find news: %v", err)
	}
	// Without a store only structural novelty applies.
	assertContents(t, news, "same words", "same words!")
}

func TestLongTermFindNewsCapsToK(t *testing.T) {
	ctx := context.Background()
	lt := newLongTerm(NewInMemoryBackend(nil))
	if err := lt.Recover(ctx, "capped", []message.ActionType{actX}); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if err := lt.Add(ctx, msg("kick off the project", actX)); err != nil {
		t.Fatalf("add: %v", err)
	}
	observed := []message.Message{
		msg("alpha release notes", actX),
		msg("beta pricing table", actX),
		msg("gamma deployment plan", actX),
	}
	news, err := lt.FindNews(ctx, observed, 2)
	if err != nil {
		t.Fatalf("find news: %v", err)
	}
	assertContents(t, news, "beta pricing table", "gamma deployment plan")
}

func TestLongTermDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	backend := NewInMemoryBackend(nil)
	lt := newLongTerm(backend)
	if err := lt.Recover(ctx, "cleaner", []message.ActionType{actX}); err != nil {
		t.Fatalf("recover: %v", err)
	}
	keep, drop := msg("keep this design note", actX), msg("drop this design draft", actX)
	_ = lt.AddBatch(ctx, []message.Message{keep, drop})

	if err := lt.Delete(ctx, drop); err != nil {
		t.Fatalf("delete: %v", err)
	}
	store, ok, _ := backend.Load(ctx, "cleaner")
	if !ok {
		t.Fatal("expected persisted store")
	}
	docs, _ := store.Documents(ctx)
	if len(docs) != 1 || docs[0].ID != keep.ID() {
		t.Fatalf("expected only the kept document, got %+v", docs)
	}

	if err := lt.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if lt.Initialized() || lt.Count() != 0 {
		t.Fatal("expected uninitialized empty memory after clear")
	}
	if _, ok, _ := backend.Load(ctx, "cleaner"); ok {
		t.Fatal("expected persisted store to be dropped")
	}

	// Adding after a clear starts a fresh store.
	if err := lt.Add(ctx, keep); err != nil {
		t.Fatalf("add after clear: %v", err)
	}
	if !lt.Initialized() {
		t.Fatal("expected store to be recreated")
	}
}

func TestStorageThresholdBoundary(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(NewInMemoryBackend(nil), WithThreshold(0.5))
	if _, err := s.Recover(ctx, "edge"); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if dup, _ := s.IsNearDuplicate(ctx, msg("anything", actX)); dup {
		t.Fatal("no store means no duplicates")
	}
	if err := s.Add(ctx, msg("alpha beta", actX)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if dup, _ := s.IsNearDuplicate(ctx, msg("alpha beta", actY)); !dup {
		t.Fatal("identical text must be a near duplicate")
	}
	if dup, _ := s.IsNearDuplicate(ctx, msg("gamma delta", actX)); dup {
		t.Fatal("disjoint text must not be a near duplicate")
	}
}

// fixedScoreBackend serves one store whose every hit has the same score.
type fixedScoreBackend struct{ score float64 }

func (b fixedScoreBackend) Load(context.Context, string) (SimilarityStore, bool, error) {
	return fixedScoreStore(b), true, nil
}

func (b fixedScoreBackend) Create(context.Context, string) (SimilarityStore, error) {
	return fixedScoreStore(b), nil
}

func (fixedScoreBackend) Drop(context.Context, string) error { return nil }

type fixedScoreStore struct{ score float64 }

func (fixedScoreStore) AddText(context.Context, string, string, map[string]string) error { return nil }

func (s fixedScoreStore) SearchSimilarWithScore(context.Context, string, int) ([]ScoredDocument, error) {
	return []ScoredDocument{{Document: Document{ID: "only"}, Score: s.score}}, nil
}

func (fixedScoreStore) Documents(context.Context) ([]Document, error) { return nil, nil }
func (fixedScoreStore) Delete(context.Context, string) error          { return nil }
func (fixedScoreStore) Persist(context.Context) error                 { return nil }
func (fixedScoreStore) Close() error                                  { return nil }

func TestStorageScoreAtThresholdIsKept(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		score float64
		dup   bool
	}{
		{score: 0.25, dup: false},
		{score: 0.2500001, dup: false},
		{score: 0.2499999, dup: true},
		{score: 0, dup: true},
	}
	for _, tt := range tests {
		s := NewStorage(fixedScoreBackend{score: tt.score}, WithThreshold(0.25))
		if _, err := s.Recover(ctx, "edge"); err != nil {
			t.Fatalf("recover: %v", err)
		}
		dup, err := s.IsNearDuplicate(ctx, msg("candidate", actX))
		if err != nil {
			t.Fatalf("score %v: %v", tt.score, err)
		}
		if dup != tt.dup {
			t.Errorf("score %v: expected near duplicate %v, got %v", tt.score, tt.dup, dup)
		}
	}
}

// failingLoadBackend fails every Load after the first.
type failingLoadBackend struct {
	*InMemoryBackend
	loads int
}

func (b *failingLoadBackend) Load(ctx context.Context, owner string) (SimilarityStore, bool, error) {
	b.loads++
	if b.loads > 1 {
		return nil, false, fmt.Errorf("disk unavailable")
	}
	return b.InMemoryBackend.Load(ctx, owner)
}

func TestLongTermFailedRecoverKeepsWatch(t *testing.T) {
	ctx := context.Background()
	lt := newLongTerm(&failingLoadBackend{InMemoryBackend: NewInMemoryBackend(nil)})
	if err := lt.Recover(ctx, "first", []message.ActionType{actX}); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if err := lt.Recover(ctx, "second", []message.ActionType{actY}); !kerrors.HasCode(err, kerrors.CodeMemory) {
		t.Fatalf("expected memory error, got %v", err)
	}
	lt.mu.Lock()
	watch, owner := lt.watch, lt.owner
	lt.mu.Unlock()
	if owner != "first" || len(watch) != 1 || watch[0] != actX {
		t.Fatalf("failed recovery changed state: owner=%q watch=%v", owner, watch)
	}
}
