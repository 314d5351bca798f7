// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlite provides a file-backed similarity store on SQLite.
// Each owner gets its own database under <dataDir>/role_mem/<owner>/.
// Vectors are kept in memory for search and written through on Persist.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	kerrors "github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/memory"

	_ "modernc.org/sqlite"
)

const (
	dbFile        = "memory.db"
	documentTable = "memory_documents"
)

// Backend stores one SQLite database per owner.
type Backend struct {
	dataDir  string
	embedder memory.Embedder
}

var _ memory.Backend = (*Backend)(nil)

// NewBackend creates a backend rooted at dataDir.
func NewBackend(dataDir string, embedder memory.Embedder) *Backend {
	if embedder == nil {
		embedder = memory.NewHashEmbedder(0)
	}
	return &Backend{dataDir: dataDir, embedder: embedder}
}

// OwnerDir returns the directory holding owner's database. Owners that
// would resolve outside their own directory under role_mem are refused.
func (b *Backend) OwnerDir(owner string) (string, error) {
	name := sanitize(owner)
	if name == "." || name == ".." || !filepath.IsLocal(name) || name != filepath.Base(name) {
		return "", kerrors.New(kerrors.CodeConfig, "invalid memory owner", nil).
			WithContext("owner", owner)
	}
	return filepath.Join(b.dataDir, "role_mem", name), nil
}

// Owners lists the owners that have a database on disk.
func (b *Backend) Owners() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(b.dataDir, "role_mem"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var owners []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(b.dataDir, "role_mem", e.Name(), dbFile)); err == nil {
			owners = append(owners, e.Name())
		}
	}
	return owners, nil
}

// Load opens owner's database. It reports false when the file is missing
// or holds no documents.
func (b *Backend) Load(ctx context.Context, owner string) (memory.SimilarityStore, bool, error) {
	dir, err := b.OwnerDir(owner)
	if err != nil {
		return nil, false, err
	}
	path := filepath.Join(dir, dbFile)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}

	store, err := b.open(ctx, path)
	if err != nil {
		return nil, false, err
	}
	if store.index.Len() == 0 {
		_ = store.db.Close()
		return nil, false, nil
	}
	return store, true, nil
}

// Create opens owner's database, creating the file if needed.
func (b *Backend) Create(ctx context.Context, owner string) (memory.SimilarityStore, error) {
	dir, err := b.OwnerDir(owner)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	return b.open(ctx, filepath.Join(dir, dbFile))
}

// Drop removes owner's database directory.
func (b *Backend) Drop(_ context.Context, owner string) error {
	dir, err := b.OwnerDir(owner)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

func (b *Backend) open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; SQLite serializes anyway.
	db.SetMaxOpenConns(1)

	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	store := &Store{
		db:      db,
		index:   memory.NewVectorIndex(b.embedder),
		pending: make(map[string]pendingRow),
		deleted: make(map[string]struct{}),
	}
	if err := store.load(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			text TEXT NOT NULL,
			metadata_json BLOB NOT NULL,
			vector BLOB NOT NULL
		);`, documentTable),
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure sqlite schema: %w", err)
		}
	}
	return nil
}

// Store is the SQLite similarity store of one owner.
type Store struct {
	mu      sync.Mutex
	db      *sql.DB
	index   *memory.VectorIndex
	pending map[string]pendingRow
	order   []string
	deleted map[string]struct{}
}

var _ memory.SimilarityStore = (*Store)(nil)

type pendingRow struct {
	doc    memory.Document
	vector []float32
}

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT id, text, metadata_json, vector FROM %s ORDER BY seq", documentTable))
	if err != nil {
		return fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			doc      memory.Document
			metadata []byte
			blob     []byte
		)
		if err := rows.Scan(&doc.ID, &doc.Text, &metadata, &blob); err != nil {
			return fmt.Errorf("scan document: %w", err)
		}
		if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
			return fmt.Errorf("decode metadata of %s: %w", doc.ID, err)
		}
		s.index.Put(doc, decodeVector(blob))
	}
	return rows.Err()
}

// AddText embeds text and stages the document until the next Persist.
func (s *Store) AddText(ctx context.Context, id, text string, metadata map[string]string) error {
	vec, err := s.index.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed text: %w", err)
	}
	doc := memory.Document{ID: id, Text: text, Metadata: metadata}
	s.index.Put(doc, vec)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[id]; !ok {
		s.order = append(s.order, id)
	}
	s.pending[id] = pendingRow{doc: doc, vector: vec}
	delete(s.deleted, id)
	return nil
}

// SearchSimilarWithScore returns the k nearest documents by squared L2 distance.
func (s *Store) SearchSimilarWithScore(ctx context.Context, query string, k int) ([]memory.ScoredDocument, error) {
	vec, err := s.index.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.index.Search(vec, k), nil
}

// Documents returns all documents in insertion order, staged ones included.
func (s *Store) Documents(context.Context) ([]memory.Document, error) {
	return s.index.Documents(), nil
}

// Delete removes id from the index and stages its deletion.
func (s *Store) Delete(_ context.Context, id string) error {
	s.index.Remove(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	// The id may also be persisted already, so the row delete is staged either way.
	delete(s.pending, id)
	s.deleted[id] = struct{}{}
	return nil
}

// Persist writes staged documents and deletions in one transaction.
func (s *Store) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 && len(s.deleted) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, id := range s.order {
		row, ok := s.pending[id]
		if !ok {
			continue
		}
		metadata, err := json.Marshal(row.doc.Metadata)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("encode metadata of %s: %w", id, err)
		}
		_, err = tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (id, text, metadata_json, vector) VALUES (?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET text = excluded.text, metadata_json = excluded.metadata_json, vector = excluded.vector`, documentTable),
			id, row.doc.Text, metadata, encodeVector(row.vector))
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("write document %s: %w", id, err)
		}
	}
	for id := range s.deleted {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", documentTable), id); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("delete document %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.pending = make(map[string]pendingRow)
	s.order = nil
	s.deleted = make(map[string]struct{})
	return nil
}

// Close persists staged changes and closes the database.
func (s *Store) Close() error {
	err := s.Persist(context.Background())
	if cerr := s.db.Close(); err == nil {
		err = cerr
	}
	return err
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec
}

// sanitize keeps owner ids like "Alice(Engineer)" readable while making
// them safe as a single path element.
func sanitize(owner string) string {
	if owner == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, owner)
}
