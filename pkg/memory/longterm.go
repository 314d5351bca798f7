// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	kerrors "github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/message"
)

// SemanticDedup decides whether a message repeats something already
// persisted, even when it is not structurally equal to it.
type SemanticDedup interface {
	Initialized() bool
	IsNearDuplicate(ctx context.Context, msg message.Message) (bool, error)
}

var _ SemanticDedup = (*Storage)(nil)

// LongTerm is a short-term Memory whose watched messages are mirrored into
// a Storage. News that is a near duplicate of persisted content is dropped.
//
// A LongTerm must be recovered for its owner before it accepts messages.
type LongTerm struct {
	*Memory

	storage *Storage
	logger  *slog.Logger

	mu        sync.Mutex
	owner     string
	watch     []message.ActionType
	recovered bool
}

var _ Store = (*LongTerm)(nil)

// NewLongTerm returns an unrecovered long-term memory backed by storage.
func NewLongTerm(storage *Storage, logger *slog.Logger) *LongTerm {
	if logger == nil {
		logger = slog.Default()
	}
	return &LongTerm{Memory: New(), storage: storage, logger: logger}
}

// Recover replays what was persisted for owner into the short-term memory
// and sets the action types whose messages get mirrored from now on.
// Replayed messages are not mirrored again. Recovering the same owner twice
// only updates the watch set.
func (lt *LongTerm) Recover(ctx context.Context, owner string, watch []message.ActionType) error {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if lt.recovered && lt.owner == owner {
		lt.watch = slices.Clone(watch)
		return nil
	}

	msgs, err := lt.storage.Recover(ctx, owner)
	if err != nil {
		return err
	}
	if !lt.storage.Initialized() {
		lt.logger.Warn("long-term memory is empty, this may be the first run", "owner", owner)
	} else {
		lt.logger.Info("recovered long-term memory", "owner", owner, "messages", len(msgs))
	}

	_ = lt.Memory.Clear(ctx)
	for _, msg := range msgs {
		lt.Memory.add(msg)
	}
	lt.owner = owner
	lt.watch = slices.Clone(watch)
	lt.recovered = true
	return nil
}

// Recovered reports whether Recover has completed.
func (lt *LongTerm) Recovered() bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.recovered
}

// Initialized reports whether a similarity store is open.
func (lt *LongTerm) Initialized() bool {
	return lt.storage.Initialized()
}

// Storage returns the backing storage.
func (lt *LongTerm) Storage() *Storage { return lt.storage }

// Add stores msg and mirrors it when its action type is watched.
func (lt *LongTerm) Add(ctx context.Context, msg message.Message) error {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if !lt.recovered {
		return kerrors.New(kerrors.CodeMemory, "long-term memory used before recovery", nil).
			WithContext("cause_by", string(msg.CauseBy))
	}
	if !lt.Memory.add(msg) {
		return nil
	}
	if msg.CauseBy == message.ActionNone || !slices.Contains(lt.watch, msg.CauseBy) {
		return nil
	}
	return lt.storage.Add(ctx, msg)
}

// AddBatch adds msgs in order, stopping at the first error.
func (lt *LongTerm) AddBatch(ctx context.Context, msgs []message.Message) error {
	for _, msg := range msgs {
		if err := lt.Add(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// FindNews filters the short-term news through the similarity store and
// returns the last k survivors (all of them when k is 0).
func (lt *LongTerm) FindNews(ctx context.Context, observed []message.Message, k int) ([]message.Message, error) {
	news, err := lt.Memory.FindNews(ctx, observed, k)
	if err != nil {
		return nil, err
	}
	if !lt.storage.Initialized() {
		return news, nil
	}

	var kept []message.Message
	for _, msg := range news {
		dup, err := lt.storage.IsNearDuplicate(ctx, msg)
		if err != nil {
			return nil, err
		}
		if dup {
			lt.logger.Debug("dropping near-duplicate news", "owner", lt.owner, "cause_by", msg.CauseBy)
			continue
		}
		kept = append(kept, msg)
	}
	return tail(kept, k), nil
}

// Delete removes msg from memory and, best effort, from the store.
func (lt *LongTerm) Delete(ctx context.Context, msg message.Message) error {
	if !lt.Memory.remove(msg) {
		return nil
	}
	if err := lt.storage.Delete(ctx, msg); err != nil {
		lt.logger.Warn("removing mirrored message", "owner", lt.owner, "error", err)
	}
	return nil
}

// Clear empties the memory and drops the persisted store. Later adds
// start a fresh store for the same owner.
func (lt *LongTerm) Clear(ctx context.Context) error {
	if err := lt.Memory.Clear(ctx); err != nil {
		return err
	}
	return lt.storage.Clean(ctx)
}

// Close flushes and releases the store.
func (lt *LongTerm) Close() error {
	return lt.storage.Close()
}
