// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory provides the message memories used by roles and
// environments: a deduplicated, action-indexed short-term Memory and a
// LongTerm memory that mirrors watched messages into a persistent
// similarity store and suppresses semantically repeated news.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/jllopis/agora/pkg/message"
)

// NoveltyFilter finds the messages of observed that are new relative to
// the most recent k remembered messages (all of them when k is 0).
type NoveltyFilter interface {
	FindNews(ctx context.Context, observed []message.Message, k int) ([]message.Message, error)
}

// Store is the memory contract a role depends on.
type Store interface {
	NoveltyFilter

	Add(ctx context.Context, msg message.Message) error
	AddBatch(ctx context.Context, msgs []message.Message) error
	Get(k int) []message.Message
	GetByAction(t message.ActionType) []message.Message
	GetByActions(types []message.ActionType) []message.Message
	Delete(ctx context.Context, msg message.Message) error
	Clear(ctx context.Context) error
	Count() int
}

// Memory is the short-term store: messages in arrival order plus an index
// by producing action. Adding a message that is already stored is a no-op.
// Memory is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	storage []message.Message
	index   map[message.ActionType][]message.Message
	seen    map[string]struct{}
}

var _ Store = (*Memory)(nil)

// New returns an empty memory.
func New() *Memory {
	return &Memory{
		index: make(map[message.ActionType][]message.Message),
		seen:  make(map[string]struct{}),
	}
}

// Add stores msg unless an equal message is already present.
func (m *Memory) Add(_ context.Context, msg message.Message) error {
	m.add(msg)
	return nil
}

// add reports whether msg was stored.
func (m *Memory) add(msg message.Message) bool {
	fp := msg.Fingerprint()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[fp]; ok {
		return false
	}
	m.seen[fp] = struct{}{}
	m.storage = append(m.storage, msg)
	if msg.CauseBy != message.ActionNone {
		m.index[msg.CauseBy] = append(m.index[msg.CauseBy], msg)
	}
	return true
}

// AddBatch adds msgs in order.
func (m *Memory) AddBatch(ctx context.Context, msgs []message.Message) error {
	for _, msg := range msgs {
		if err := m.Add(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the last k messages in arrival order, or all of them when k
// is 0 (or larger than the memory).
func (m *Memory) Get(k int) []message.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return tail(m.storage, k)
}

// GetByAction returns the messages produced by action type t.
func (m *Memory) GetByAction(t message.ActionType) []message.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clone(m.index[t])
}

// GetByActions concatenates the index entries of types in the given order.
// Unknown types are skipped.
func (m *Memory) GetByActions(types []message.ActionType) []message.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []message.Message
	for _, t := range types {
		out = append(out, m.index[t]...)
	}
	return out
}

// GetByRole returns every message sent under the role label.
func (m *Memory) GetByRole(role string) []message.Message {
	return m.filter(func(msg message.Message) bool { return msg.Role == role })
}

// GetByContent returns every message whose content contains substr.
func (m *Memory) GetByContent(substr string) []message.Message {
	return m.filter(func(msg message.Message) bool { return strings.Contains(msg.Content, substr) })
}

// TryRemember recalls the messages mentioning keyword.
func (m *Memory) TryRemember(keyword string) []message.Message {
	return m.GetByContent(keyword)
}

// Contains reports whether an equal message is stored.
func (m *Memory) Contains(msg message.Message) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.seen[msg.Fingerprint()]
	return ok
}

// Count returns the number of stored messages.
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.storage)
}

// FindNews returns, in observed order, the observed messages absent from
// Get(k). Duplicates in observed are kept.
func (m *Memory) FindNews(_ context.Context, observed []message.Message, k int) ([]message.Message, error) {
	baseline := make(map[string]struct{})
	for _, msg := range m.Get(k) {
		baseline[msg.Fingerprint()] = struct{}{}
	}

	var news []message.Message
	for _, msg := range observed {
		if _, ok := baseline[msg.Fingerprint()]; ok {
			continue
		}
		news = append(news, msg)
	}
	return news, nil
}

// Delete removes msg from storage and from its action index.
// Deleting an absent message is a no-op.
func (m *Memory) Delete(_ context.Context, msg message.Message) error {
	m.remove(msg)
	return nil
}

// remove reports whether msg was present.
func (m *Memory) remove(msg message.Message) bool {
	fp := msg.Fingerprint()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[fp]; !ok {
		return false
	}
	delete(m.seen, fp)
	m.storage = without(m.storage, fp)
	if msg.CauseBy != message.ActionNone {
		entries := without(m.index[msg.CauseBy], fp)
		if len(entries) == 0 {
			delete(m.index, msg.CauseBy)
		} else {
			m.index[msg.CauseBy] = entries
		}
	}
	return true
}

// Clear empties storage and index.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storage = nil
	m.index = make(map[message.ActionType][]message.Message)
	m.seen = make(map[string]struct{})
	return nil
}

func (m *Memory) filter(keep func(message.Message) bool) []message.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []message.Message
	for _, msg := range m.storage {
		if keep(msg) {
			out = append(out, msg)
		}
	}
	return out
}

func tail(msgs []message.Message, k int) []message.Message {
	if k <= 0 || k >= len(msgs) {
		return clone(msgs)
	}
	return clone(msgs[len(msgs)-k:])
}

func clone(msgs []message.Message) []message.Message {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]message.Message, len(msgs))
	copy(out, msgs)
	return out
}

func without(msgs []message.Message, fp string) []message.Message {
	out := msgs[:0:0]
	for _, msg := range msgs {
		if msg.Fingerprint() != fp {
			out = append(out, msg)
		}
	}
	return out
}
