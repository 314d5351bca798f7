// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

// Package role implements the agent state machine. A round of a role is
// observe, think, act and publish: it pulls watched news from its
// environment, picks one of its actions (asking the LLM when it has more
// than one), runs it over its important memory and broadcasts the result.
package role

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/agora/pkg/action"
	"github.com/jllopis/agora/pkg/core"
	kerrors "github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/guardrails"
	"github.com/jllopis/agora/pkg/llm"
	"github.com/jllopis/agora/pkg/memory"
	"github.com/jllopis/agora/pkg/message"
	"github.com/jllopis/agora/pkg/telemetry"
)

// Setting is the identity of a role.
type Setting struct {
	Name        string
	Profile     string
	Goal        string
	Constraints string
	Desc        string
}

// String returns the role id, "name(profile)".
func (s Setting) String() string {
	return fmt.Sprintf("%s(%s)", s.Name, s.Profile)
}

// Environment is what a role needs from the environment it belongs to.
type Environment interface {
	Memory() *memory.Memory
	PublishMessage(ctx context.Context, msg message.Message) error
}

// Role is an agent with an identity, a list of actions and a private
// memory. Run and Handle are serialized per role.
type Role struct {
	setting Setting
	id      string

	llm           *llm.Client
	actions       []action.Action
	states        []string
	watch         []message.ActionType
	mem           memory.Store
	longTerm      *memory.LongTerm
	actionTimeout time.Duration
	filter        guardrails.Filter

	ltBackend   memory.Backend
	ltThreshold float64

	logger  *slog.Logger
	events  core.EventEmitter
	metrics *telemetry.RuntimeMetrics
	tracer  trace.Tracer

	mu    sync.Mutex
	env   Environment
	state int
	todo  action.Action
	news  []message.Message
}

// Option configures a Role.
type Option func(*Role) error

// WithActions sets the actions the role chooses from.
func WithActions(actions ...action.Action) Option {
	return func(r *Role) error {
		r.actions = append(r.actions, actions...)
		return nil
	}
}

// WithWatch adds action types whose messages the role observes.
func WithWatch(types ...message.ActionType) Option {
	return func(r *Role) error {
		r.addWatch(types)
		return nil
	}
}

// WithLLM sets the client used for state selection.
func WithLLM(client *llm.Client) Option {
	return func(r *Role) error {
		r.llm = client
		return nil
	}
}

// WithMemory replaces the private short-term memory.
func WithMemory(store memory.Store) Option {
	return func(r *Role) error {
		if store == nil {
			return kerrors.New(kerrors.CodeConfig, "memory store is nil", nil)
		}
		r.mem = store
		return nil
	}
}

// WithLongTermMemory backs the private memory with a similarity store on
// backend. A threshold of zero keeps memory.DefaultThreshold.
func WithLongTermMemory(backend memory.Backend, threshold float64) Option {
	return func(r *Role) error {
		if backend == nil {
			return kerrors.New(kerrors.CodeConfig, "long-term memory backend is nil", nil)
		}
		r.ltBackend = backend
		r.ltThreshold = threshold
		return nil
	}
}

// WithActionTimeout bounds every action run. Zero means no limit.
func WithActionTimeout(d time.Duration) Option {
	return func(r *Role) error {
		r.actionTimeout = d
		return nil
	}
}

// WithOutputFilter rewrites every action output before the role
// remembers and publishes it.
func WithOutputFilter(f guardrails.Filter) Option {
	return func(r *Role) error {
		r.filter = f
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Role) error {
		if logger != nil {
			r.logger = logger
		}
		return nil
	}
}

// WithEventEmitter sets the receiver of lifecycle events.
func WithEventEmitter(emitter core.EventEmitter) Option {
	return func(r *Role) error {
		if emitter != nil {
			r.events = emitter
		}
		return nil
	}
}

// WithMetrics sets the runtime metrics recorder.
func WithMetrics(metrics *telemetry.RuntimeMetrics) Option {
	return func(r *Role) error {
		r.metrics = metrics
		return nil
	}
}

// WithTracer overrides the global "agora/role" tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Role) error {
		if tracer != nil {
			r.tracer = tracer
		}
		return nil
	}
}

// New builds a role. The profile is required: environments register
// roles by it.
func New(setting Setting, opts ...Option) (*Role, error) {
	r := &Role{
		setting: setting,
		id:      setting.String(),
		mem:     memory.New(),
		logger:  slog.Default(),
		events:  core.NoopEventEmitter{},
		tracer:  otel.Tracer("agora/role"),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if setting.Profile == "" {
		return nil, kerrors.New(kerrors.CodeConfig, "role profile is required", nil).
			WithContext("name", setting.Name)
	}
	if r.ltBackend != nil {
		storage := memory.NewStorage(r.ltBackend,
			memory.WithThreshold(r.ltThreshold),
			memory.WithStorageLogger(r.logger),
		)
		r.longTerm = memory.NewLongTerm(storage, r.logger)
		r.mem = r.longTerm
	}
	r.InitActions(r.actions)
	return r, nil
}

// Reset drops every action and state.
func (r *Role) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
}

func (r *Role) reset() {
	r.actions = nil
	r.states = nil
	r.state = 0
	r.todo = nil
}

// InitActions replaces the actions, handing each one that wants it the
// role preamble.
func (r *Role) InitActions(actions []action.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()

	actions = slices.Clone(actions)
	r.reset()
	prefix := r.prefix()
	for i, a := range actions {
		if p, ok := a.(action.Prefixer); ok {
			p.SetPrefix(prefix, r.setting.Profile)
		}
		r.actions = append(r.actions, a)
		r.states = append(r.states, fmt.Sprintf("%d. %s", i, a.Type()))
	}
}

// Watch adds action types whose messages the role observes.
func (r *Role) Watch(types ...message.ActionType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addWatch(types)
}

func (r *Role) addWatch(types []message.ActionType) {
	for _, t := range types {
		if !slices.Contains(r.watch, t) {
			r.watch = append(r.watch, t)
		}
	}
}

// SetEnvironment attaches the role to env.
func (r *Role) SetEnvironment(env Environment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.env = env
}

// ID returns "name(profile)", the key of the role's persisted memory.
func (r *Role) ID() string { return r.id }

// Name returns the role name.
func (r *Role) Name() string { return r.setting.Name }

// Profile returns the role profile.
func (r *Role) Profile() string { return r.setting.Profile }

// Setting returns the role identity.
func (r *Role) Setting() Setting { return r.setting }

// Prefix returns the preamble given to actions and to state selection.
func (r *Role) Prefix() string { return r.prefix() }

func (r *Role) prefix() string {
	if r.setting.Desc != "" {
		return r.setting.Desc
	}
	return fmt.Sprintf(prefixTemplate, r.setting.Profile, r.setting.Name, r.setting.Goal, r.setting.Constraints)
}

// Memory returns the private memory.
func (r *Role) Memory() memory.Store { return r.mem }

// LongTerm returns the long-term memory, or nil.
func (r *Role) LongTerm() *memory.LongTerm { return r.longTerm }

// States returns the "i. ActionType" lines offered to the LLM.
func (r *Role) States() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.states)
}

// State returns the index of the last selected action.
func (r *Role) State() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Todo returns the last selected action, or nil.
func (r *Role) Todo() action.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.todo
}

// News returns what the last observation found.
func (r *Role) News() []message.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.news)
}

// WatchSet returns the watched action types in the order they were added.
func (r *Role) WatchSet() []message.ActionType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.watch)
}

// ImportantMemory returns the remembered messages of watched types.
func (r *Role) ImportantMemory() []message.Message {
	return r.mem.GetByActions(r.WatchSet())
}

// Close releases the long-term store, if any.
func (r *Role) Close() error {
	if r.longTerm == nil {
		return nil
	}
	return r.longTerm.Close()
}

// String returns the role id.
func (r *Role) String() string { return r.id }
