// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	kerrors "github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/message"
)

const (
	// DefaultThreshold is the distance under which two texts count as the same news.
	DefaultThreshold = 0.1
	// DefaultSearchK is the number of neighbours consulted per candidate.
	DefaultSearchK = 4

	// MetadataMessage holds the serialized message of a mirrored document.
	MetadataMessage = "message"
	// MetadataCreatedAt holds the mirror time in zero-padded unix nanoseconds.
	MetadataCreatedAt = "created_at"
)

// Storage is the owner-keyed view of a Backend used by LongTerm.
// The store is opened by Recover and created lazily on the first Add when
// nothing was persisted before.
type Storage struct {
	mu        sync.Mutex
	backend   Backend
	threshold float64
	searchK   int
	logger    *slog.Logger

	owner string
	store SimilarityStore
}

// StorageOption configures a Storage.
type StorageOption func(*Storage)

// WithThreshold sets the near-duplicate distance threshold.
func WithThreshold(threshold float64) StorageOption {
	return func(s *Storage) {
		if threshold > 0 {
			s.threshold = threshold
		}
	}
}

// WithSearchK sets how many neighbours are consulted per candidate.
func WithSearchK(k int) StorageOption {
	return func(s *Storage) {
		if k > 0 {
			s.searchK = k
		}
	}
}

// WithStorageLogger sets the logger.
func WithStorageLogger(logger *slog.Logger) StorageOption {
	return func(s *Storage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStorage wraps backend.
func NewStorage(backend Backend, opts ...StorageOption) *Storage {
	s := &Storage{
		backend:   backend,
		threshold: DefaultThreshold,
		searchK:   DefaultSearchK,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Owner returns the owner set by Recover.
func (s *Storage) Owner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// Threshold returns the near-duplicate distance threshold.
func (s *Storage) Threshold() float64 { return s.threshold }

// Initialized reports whether a similarity store is open.
func (s *Storage) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store != nil
}

// Recover opens the persisted store of owner and returns its messages in
// the order they were mirrored. It returns no messages and leaves the
// storage uninitialized when nothing was persisted for owner.
func (s *Storage) Recover(ctx context.Context, owner string) ([]message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("closing previous similarity store", "owner", s.owner, "error", err)
		}
		s.store = nil
	}
	s.owner = owner

	store, found, err := s.backend.Load(ctx, owner)
	if err != nil {
		return nil, kerrors.New(kerrors.CodeMemory, "load similarity store", err).
			WithContext("owner", owner)
	}
	if !found {
		return nil, nil
	}
	s.store = store

	docs, err := store.Documents(ctx)
	if err != nil {
		return nil, kerrors.New(kerrors.CodeMemory, "list persisted documents", err).
			WithContext("owner", owner)
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].Metadata[MetadataCreatedAt] < docs[j].Metadata[MetadataCreatedAt]
	})

	msgs := make([]message.Message, 0, len(docs))
	for _, doc := range docs {
		raw, ok := doc.Metadata[MetadataMessage]
		if !ok {
			s.logger.Warn("skipping persisted document without message", "owner", owner, "id", doc.ID)
			continue
		}
		msg, err := message.Unmarshal([]byte(raw))
		if err != nil {
			return nil, kerrors.Wrap(err).WithContext("owner", owner).WithContext("id", doc.ID)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Add mirrors msg into the similarity store and persists it.
func (s *Storage) Add(ctx context.Context, msg message.Message) error {
	data, err := message.Marshal(msg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		store, err := s.backend.Create(ctx, s.owner)
		if err != nil {
			return kerrors.New(kerrors.CodeMemory, "create similarity store", err).
				WithContext("owner", s.owner)
		}
		s.store = store
	}

	metadata := map[string]string{
		MetadataMessage:   string(data),
		MetadataCreatedAt: fmt.Sprintf("%020d", time.Now().UnixNano()),
	}
	if err := s.store.AddText(ctx, msg.ID(), msg.Content, metadata); err != nil {
		return kerrors.New(kerrors.CodeMemory, "mirror message", err).
			WithContext("owner", s.owner).
			WithContext("cause_by", string(msg.CauseBy))
	}
	if err := s.store.Persist(ctx); err != nil {
		return kerrors.New(kerrors.CodeMemory, "persist similarity store", err).
			WithContext("owner", s.owner)
	}
	s.logger.Debug("mirrored message into long-term memory", "owner", s.owner, "cause_by", msg.CauseBy)
	return nil
}

// IsNearDuplicate reports whether any of the nearest persisted neighbours of
// msg lies strictly closer than the threshold.
func (s *Storage) IsNearDuplicate(ctx context.Context, msg message.Message) (bool, error) {
	s.mu.Lock()
	store := s.store
	s.mu.Unlock()
	if store == nil {
		return false, nil
	}

	hits, err := store.SearchSimilarWithScore(ctx, msg.Content, s.searchK)
	if err != nil {
		return false, kerrors.New(kerrors.CodeMemory, "search similarity store", err).
			WithContext("owner", s.owner)
	}
	for _, hit := range hits {
		if hit.Score < s.threshold {
			return true, nil
		}
	}
	return false, nil
}

// Delete removes the mirrored document of msg.
func (s *Storage) Delete(ctx context.Context, msg message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return nil
	}
	if err := s.store.Delete(ctx, msg.ID()); err != nil {
		return kerrors.New(kerrors.CodeMemory, "delete mirrored message", err).
			WithContext("owner", s.owner)
	}
	return s.store.Persist(ctx)
}

// Clean drops everything persisted for the owner and closes the store.
func (s *Storage) Clean(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("closing similarity store", "owner", s.owner, "error", err)
		}
		s.store = nil
	}
	if s.owner == "" {
		return nil
	}
	if err := s.backend.Drop(ctx, s.owner); err != nil {
		return kerrors.New(kerrors.CodeMemory, "drop similarity store", err).
			WithContext("owner", s.owner)
	}
	return nil
}

// Close flushes and releases the store.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return nil
	}
	err := s.store.Close()
	s.store = nil
	return err
}
