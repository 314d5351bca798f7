// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package team

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jllopis/agora/pkg/action"
	kerrors "github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/llm"
	"github.com/jllopis/agora/pkg/message"
	"github.com/jllopis/agora/pkg/resilience"
	"github.com/jllopis/agora/pkg/role"
)

// Manifest describes a team in YAML.
type Manifest struct {
	Name       string            `yaml:"name"`
	Idea       string            `yaml:"idea,omitempty"`
	Investment float64           `yaml:"investment,omitempty"`
	Rounds     int               `yaml:"rounds,omitempty"`
	Schemas    map[string]string `yaml:"schemas,omitempty"`
	Roles      []RoleSpec        `yaml:"roles"`
}

// RoleSpec describes one role of a manifest.
type RoleSpec struct {
	Name        string       `yaml:"name"`
	Profile     string       `yaml:"profile"`
	Goal        string       `yaml:"goal,omitempty"`
	Constraints string       `yaml:"constraints,omitempty"`
	Desc        string       `yaml:"desc,omitempty"`
	Watch       []string     `yaml:"watch,omitempty"`
	Actions     []ActionSpec `yaml:"actions"`
}

// ActionSpec describes a prompt action. Instruction is a text/template
// over action.PromptData; Schema names an entry of Manifest.Schemas.
type ActionSpec struct {
	Type        string `yaml:"type"`
	Instruction string `yaml:"instruction,omitempty"`
	Schema      string `yaml:"schema,omitempty"`
}

// ParseManifest decodes and validates a YAML manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, kerrors.New(kerrors.CodeConfig, "empty team manifest", nil)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, kerrors.New(kerrors.CodeConfig, "parse team manifest", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadManifest reads the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	if strings.TrimSpace(path) == "" {
		return nil, kerrors.New(kerrors.CodeConfig, "team manifest path is required", nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, kerrors.New(kerrors.CodeConfig, "read team manifest", err).WithContext("path", path)
	}
	return ParseManifest(data)
}

// Validate checks that roles have unique profiles and usable actions.
func (m *Manifest) Validate() error {
	if m == nil {
		return kerrors.New(kerrors.CodeConfig, "team manifest is nil", nil)
	}
	if len(m.Roles) == 0 {
		return kerrors.New(kerrors.CodeConfig, "team manifest has no roles", nil)
	}
	if m.Investment < 0 {
		return kerrors.New(kerrors.CodeConfig, "investment must not be negative", nil).
			WithContext("key", "investment")
	}
	profiles := make(map[string]bool, len(m.Roles))
	for i, r := range m.Roles {
		if r.Profile == "" {
			return kerrors.New(kerrors.CodeConfig, fmt.Sprintf("role %d has no profile", i), nil)
		}
		if profiles[r.Profile] {
			return kerrors.New(kerrors.CodeConfig, "duplicate role profile", nil).
				WithContext("profile", r.Profile)
		}
		profiles[r.Profile] = true
		if len(r.Actions) == 0 {
			return kerrors.New(kerrors.CodeConfig, "role has no actions", nil).
				WithContext("profile", r.Profile)
		}
		for _, a := range r.Actions {
			if a.Type == "" {
				return kerrors.New(kerrors.CodeConfig, "action type is required", nil).
					WithContext("profile", r.Profile)
			}
			if a.Schema != "" {
				if _, ok := m.Schemas[a.Schema]; !ok {
					return kerrors.New(kerrors.CodeConfig, "action references an unknown schema", nil).
						WithContext("profile", r.Profile).
						WithContext("action", a.Type).
						WithContext("schema", a.Schema)
				}
			}
		}
	}
	return nil
}

// BuildConfig carries what Build wires into roles and actions.
type BuildConfig struct {
	// LLM serves both state selection and prompt actions.
	LLM *llm.Client
	// Registry receives the manifest schemas. A new one is made when nil.
	Registry *message.Registry
	// Retry overrides the structured output retry policy.
	Retry *resilience.RetryConfig
	// ActionOptions are appended to every action.
	ActionOptions []action.Option
	// RoleOptions are appended to every role.
	RoleOptions []role.Option
}

// Build registers the manifest schemas and returns its roles in order.
func (m *Manifest) Build(cfg BuildConfig) ([]*role.Role, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	reg := cfg.Registry
	if reg == nil {
		reg = message.NewRegistry()
	}
	for id, schema := range m.Schemas {
		if err := reg.Register(id, []byte(schema)); err != nil {
			return nil, err
		}
	}

	actionOpts := []action.Option{action.WithLLM(cfg.LLM), action.WithSchemas(reg)}
	if cfg.Retry != nil {
		actionOpts = append(actionOpts, action.WithRetry(*cfg.Retry))
	}
	actionOpts = append(actionOpts, cfg.ActionOptions...)

	roles := make([]*role.Role, 0, len(m.Roles))
	for _, spec := range m.Roles {
		actions := make([]action.Action, 0, len(spec.Actions))
		for _, as := range spec.Actions {
			a, err := action.NewPrompt(message.ActionType(as.Type), as.Instruction, as.Schema, actionOpts...)
			if err != nil {
				return nil, err
			}
			actions = append(actions, a)
		}
		watch := make([]message.ActionType, len(spec.Watch))
		for i, w := range spec.Watch {
			watch[i] = message.ActionType(w)
		}

		opts := []role.Option{
			role.WithActions(actions...),
			role.WithWatch(watch...),
			role.WithLLM(cfg.LLM),
		}
		opts = append(opts, cfg.RoleOptions...)
		r, err := role.New(role.Setting{
			Name:        spec.Name,
			Profile:     spec.Profile,
			Goal:        spec.Goal,
			Constraints: spec.Constraints,
			Desc:        spec.Desc,
		}, opts...)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, nil
}
