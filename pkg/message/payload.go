// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"
	kerrors "github.com/jllopis/agora/pkg/errors"
)

// Payload is the structured result attached to a message: a schema id and
// the canonical JSON value validated against that schema.
type Payload struct {
	SchemaID string          `json:"schema_id"`
	Value    json.RawMessage `json:"value"`
}

// Equal compares schema id and canonical bytes. Two nil payloads are equal.
func (p *Payload) Equal(other *Payload) bool {
	if p == nil || other == nil {
		return p == nil && other == nil
	}
	return p.SchemaID == other.SchemaID && bytes.Equal(p.Value, other.Value)
}

// Decode unmarshals the payload value into v.
func (p *Payload) Decode(v any) error {
	if p == nil {
		return kerrors.New(kerrors.CodeSchema, "decode empty payload", nil)
	}
	if err := json.Unmarshal(p.Value, v); err != nil {
		return kerrors.New(kerrors.CodeSchema, "decode payload", err).
			WithContext("schema_id", p.SchemaID)
	}
	return nil
}

// Registry holds compiled JSON schemas keyed by id.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*jsonschema.Schema
}

// NewRegistry returns an empty schema registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*jsonschema.Schema)}
}

// Register compiles schema and stores it under id, replacing any previous one.
func (r *Registry) Register(id string, schema []byte) error {
	compiled, err := jsonschema.NewCompiler().Compile(schema)
	if err != nil {
		return kerrors.New(kerrors.CodeSchema, "compile schema", err).
			WithContext("schema_id", id)
	}
	r.mu.Lock()
	r.schemas[id] = compiled
	r.mu.Unlock()
	return nil
}

// Has reports whether a schema is registered under id.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.schemas[id]
	return ok
}

// NewPayload encodes value, validates it against the schema registered
// under id and returns the payload. Raw JSON may be passed as
// json.RawMessage or []byte.
func (r *Registry) NewPayload(id string, value any) (*Payload, error) {
	r.mu.RLock()
	schema, ok := r.schemas[id]
	r.mu.RUnlock()
	if !ok {
		return nil, kerrors.New(kerrors.CodeSchema, "unknown schema", nil).
			WithContext("schema_id", id)
	}

	var raw []byte
	switch v := value.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, kerrors.New(kerrors.CodeSchema, "encode payload", err).
				WithContext("schema_id", id)
		}
		raw = encoded
	}

	var canonical bytes.Buffer
	if err := json.Compact(&canonical, raw); err != nil {
		return nil, kerrors.New(kerrors.CodeSchema, "payload is not valid JSON", err).
			WithContext("schema_id", id)
	}

	var decoded any
	if err := json.Unmarshal(canonical.Bytes(), &decoded); err != nil {
		return nil, kerrors.New(kerrors.CodeSchema, "decode payload", err).
			WithContext("schema_id", id)
	}
	result := schema.Validate(decoded)
	if !result.Valid {
		return nil, kerrors.New(kerrors.CodeSchema, "payload does not match schema",
			fmt.Errorf("%v", result.Errors)).
			WithContext("schema_id", id)
	}

	return &Payload{SchemaID: id, Value: json.RawMessage(canonical.Bytes())}, nil
}
