// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

// Package message defines the immutable unit of communication exchanged by
// roles through an environment.
package message

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	kerrors "github.com/jllopis/agora/pkg/errors"
)

// ActionType tags the kind of action that produced a message.
// Roles watch action types and memories index messages by them.
type ActionType string

const (
	// ActionNone marks messages that no action produced.
	ActionNone ActionType = ""
	// UserRequirement tags externally injected requirements.
	UserRequirement ActionType = "UserRequirement"
)

// DefaultRole is the sender label used when none is given.
const DefaultRole = "user"

// idNamespace scopes the name-based message identifiers.
var idNamespace = uuid.MustParse("6f1d3c2a-8f4e-5b7a-9c3d-2e1f0a9b8c7d")

// Message is a unit of inter-role communication.
// Treat it as a value: copy it, never mutate a message another party holds.
type Message struct {
	Content      string     `json:"content"`
	Payload      *Payload   `json:"payload,omitempty"`
	Role         string     `json:"role"`
	CauseBy      ActionType `json:"cause_by"`
	SentFrom     string     `json:"sent_from"`
	SendTo       string     `json:"send_to"`
	RestrictedTo string     `json:"restricted_to"`
}

// Option configures a message built with New.
type Option func(*Message)

// WithRole sets the sender label.
func WithRole(role string) Option {
	return func(m *Message) { m.Role = role }
}

// WithCauseBy sets the producing action type.
func WithCauseBy(t ActionType) Option {
	return func(m *Message) { m.CauseBy = t }
}

// WithPayload attaches a validated structured payload.
func WithPayload(p *Payload) Option {
	return func(m *Message) { m.Payload = p }
}

// WithSentFrom sets the sender address.
func WithSentFrom(from string) Option {
	return func(m *Message) { m.SentFrom = from }
}

// WithSendTo sets the recipient. Empty means broadcast.
func WithSendTo(to string) Option {
	return func(m *Message) { m.SendTo = to }
}

// WithRestrictedTo sets the restriction label.
func WithRestrictedTo(to string) Option {
	return func(m *Message) { m.RestrictedTo = to }
}

// New builds a message with the default "user" role.
func New(content string, opts ...Option) Message {
	m := Message{Content: content, Role: DefaultRole}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Equal reports whether every attribute of m and other matches.
func (m Message) Equal(other Message) bool {
	if m.Content != other.Content ||
		m.Role != other.Role ||
		m.CauseBy != other.CauseBy ||
		m.SentFrom != other.SentFrom ||
		m.SendTo != other.SendTo ||
		m.RestrictedTo != other.RestrictedTo {
		return false
	}
	return m.Payload.Equal(other.Payload)
}

// Fingerprint returns a hex SHA-256 digest over all attributes.
// Two messages are Equal iff their fingerprints match.
func (m Message) Fingerprint() string {
	h := sha256.New()
	// Length-prefix every field so that concatenations cannot collide.
	for _, field := range []string{
		m.Content, m.Role, string(m.CauseBy), m.SentFrom, m.SendTo, m.RestrictedTo,
	} {
		fmt.Fprintf(h, "%d:%s;", len(field), field)
	}
	if m.Payload != nil {
		fmt.Fprintf(h, "p%d:%s;%d:", len(m.Payload.SchemaID), m.Payload.SchemaID, len(m.Payload.Value))
		h.Write(m.Payload.Value)
	} else {
		h.Write([]byte("-"))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ID returns a stable name-based identifier derived from the fingerprint.
func (m Message) ID() string {
	return uuid.NewSHA1(idNamespace, []byte(m.Fingerprint())).String()
}

// String renders "<role>: <content>".
func (m Message) String() string {
	return fmt.Sprintf("%s: %s", m.Role, m.Content)
}

// Marshal encodes m into its stable JSON form.
func Marshal(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, kerrors.New(kerrors.CodeInternal, "encode message", err)
	}
	return data, nil
}

// Unmarshal decodes a message previously encoded with Marshal.
func Unmarshal(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, kerrors.New(kerrors.CodeMemory, "decode message", err)
	}
	return m, nil
}
