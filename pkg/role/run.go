// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package role

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/agora/pkg/action"
	"github.com/jllopis/agora/pkg/core"
	kerrors "github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/message"
	"github.com/jllopis/agora/pkg/resilience"
	"github.com/jllopis/agora/pkg/telemetry"
)

// Run plays one round. Explicit msgs are received and always trigger a
// reaction. Without them the role observes its environment and, when
// nothing new arrived, returns a nil message. The produced message is
// published to the environment.
func (r *Role) Run(ctx context.Context, msgs ...message.Message) (*message.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, span := r.startSpan(ctx, "role.run")
	defer span.End()

	if err := r.recoverMemory(ctx); err != nil {
		return nil, r.fail(ctx, span, err)
	}

	if len(msgs) > 0 {
		for _, m := range msgs {
			if err := r.mem.Add(ctx, m); err != nil {
				return nil, r.fail(ctx, span, err)
			}
		}
	} else {
		n, err := r.observe(ctx)
		if err != nil {
			return nil, r.fail(ctx, span, err)
		}
		if n == 0 {
			r.logger.DebugContext(ctx, "no news, waiting", "role", r.id)
			r.metrics.RecordRoleRun(ctx, r.setting.Profile, telemetry.OutcomeIdle)
			return nil, nil
		}
	}

	rsp, err := r.react(ctx)
	if err != nil {
		return nil, r.fail(ctx, span, err)
	}
	if err := r.publish(ctx, rsp); err != nil {
		return nil, r.fail(ctx, span, err)
	}
	r.metrics.RecordRoleRun(ctx, r.setting.Profile, telemetry.OutcomeActed)
	return &rsp, nil
}

// Handle receives msg and reacts to it without publishing.
func (r *Role) Handle(ctx context.Context, msg message.Message) (*message.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, span := r.startSpan(ctx, "role.handle")
	defer span.End()

	if err := r.recoverMemory(ctx); err != nil {
		return nil, r.fail(ctx, span, err)
	}
	if err := r.mem.Add(ctx, msg); err != nil {
		return nil, r.fail(ctx, span, err)
	}
	rsp, err := r.react(ctx)
	if err != nil {
		return nil, r.fail(ctx, span, err)
	}
	r.metrics.RecordRoleRun(ctx, r.setting.Profile, telemetry.OutcomeActed)
	return &rsp, nil
}

// Recv adds msg to the private memory unless it is already there.
func (r *Role) Recv(ctx context.Context, msg message.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.recoverMemory(ctx); err != nil {
		return err
	}
	return r.mem.Add(ctx, msg)
}

func (r *Role) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	runID, _ := core.RunID(ctx)
	return r.tracer.Start(ctx, name, trace.WithAttributes(
		telemetry.RoleAttributes(r.id, r.setting.Name, r.setting.Profile, runID, core.Round(ctx))...,
	))
}

// recoverMemory replays the long-term memory for this role and keeps its
// mirrored action types in step with the watch set.
func (r *Role) recoverMemory(ctx context.Context) error {
	if r.longTerm == nil {
		return nil
	}
	return r.longTerm.Recover(ctx, r.id, r.watch)
}

// observe computes the news among the watched environment messages, then
// receives every environment message. It returns the number of news.
func (r *Role) observe(ctx context.Context) (int, error) {
	if r.env == nil {
		return 0, nil
	}
	envMem := r.env.Memory()
	// Snapshot observed first so every observed message is also received.
	observed := envMem.GetByActions(r.watch)
	envMsgs := envMem.Get(0)

	news, err := r.mem.FindNews(ctx, observed, 0)
	if err != nil {
		return 0, err
	}
	r.news = news

	for _, m := range envMsgs {
		if err := r.mem.Add(ctx, m); err != nil {
			return 0, err
		}
	}

	if len(news) > 0 {
		previews := make([]string, len(news))
		for i, m := range news {
			previews[i] = m.Role + ": " + preview(m.Content, 20)
		}
		r.logger.DebugContext(ctx, "observed news", "role", r.id, "news", previews)
	}
	r.emit(ctx, core.EventRoleObserved, map[string]any{"news": len(news)})
	trace.SpanFromContext(ctx).SetAttributes(telemetry.MemoryAttributes(r.longTerm != nil, r.mem.Count())...)
	return len(news), nil
}

func (r *Role) react(ctx context.Context) (message.Message, error) {
	if err := r.think(ctx); err != nil {
		return message.Message{}, err
	}
	r.logger.DebugContext(ctx, "state selected", "role", r.id, "state", r.state, "action", r.todo.Type())
	return r.act(ctx)
}

// think selects the next action. A single action is chosen without
// asking the LLM; an unusable reply falls back to the first action.
func (r *Role) think(ctx context.Context) error {
	switch len(r.actions) {
	case 0:
		return kerrors.New(kerrors.CodeConfig, "role has no actions", nil).
			WithContext("profile", r.setting.Profile)
	case 1:
		r.setState(0)
		return nil
	}
	if r.llm == nil {
		return kerrors.New(kerrors.CodeConfig, "role with several actions needs an LLM client", nil).
			WithContext("profile", r.setting.Profile)
	}

	r.emit(ctx, core.EventRoleThinking, map[string]any{"states": len(r.states)})
	prompt := statePrompt(r.prefix(), r.mem.Get(0), r.states)
	reply, err := r.llm.Ask(ctx, prompt)
	if err != nil {
		return err
	}

	state, ok := parseState(reply, len(r.states))
	if !ok {
		invalid := kerrors.New(kerrors.CodeInvalidState, "invalid answer of state", nil).
			WithContext("profile", r.setting.Profile).
			WithContext("reply", reply).
			WithRecoverable(true)
		r.logger.WarnContext(ctx, "invalid answer of state, falling back to 0",
			"role", r.id,
			"profile", r.setting.Profile,
			"reply", reply,
		)
		r.metrics.RecordError(ctx, invalid, "role")
		state = 0
	}
	r.setState(state)
	return nil
}

func (r *Role) setState(state int) {
	r.state = state
	r.todo = r.actions[state]
}

// act runs the selected action over the important memory and remembers
// the result. Action errors are returned as CodeActionFailure.
func (r *Role) act(ctx context.Context) (message.Message, error) {
	todo := r.todo
	actionType := todo.Type()
	r.logger.InfoContext(ctx, "ready to act", "role", r.id, "action", actionType)

	history := r.mem.GetByActions(r.watch)
	start := time.Now()
	var out action.Output
	err := resilience.WithTimeout(ctx, r.actionTimeout, func(ctx context.Context) error {
		o, err := todo.Run(ctx, history)
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	elapsed := time.Since(start)
	r.metrics.RecordActionDuration(ctx, r.setting.Profile, string(actionType), elapsed, err == nil)
	trace.SpanFromContext(ctx).SetAttributes(telemetry.ActionAttributes(
		string(actionType), r.state, float64(elapsed.Microseconds())/1000, err == nil,
	)...)
	if err != nil {
		return message.Message{}, kerrors.New(kerrors.CodeActionFailure, "action run failed", err).
			WithContext("profile", r.setting.Profile).
			WithContext("action", string(actionType))
	}

	content := out.Content
	if r.filter != nil {
		if res := r.filter.Filter(ctx, content); res.Modified {
			r.logger.InfoContext(ctx, "action output filtered",
				"role", r.id,
				"action", actionType,
				"filter", r.filter.ID(),
				"redactions", len(res.Redactions),
				"types", res.Types(),
			)
			content = res.Content
		}
	}

	msg := message.New(content,
		message.WithRole(r.setting.Profile),
		message.WithCauseBy(actionType),
		message.WithPayload(out.Payload),
	)
	if err := r.mem.Add(ctx, msg); err != nil {
		return message.Message{}, err
	}
	r.emit(ctx, core.EventRoleActed, map[string]any{
		"action":   string(actionType),
		"state":    r.state,
		"duration": elapsed.String(),
	})
	return msg, nil
}

func (r *Role) publish(ctx context.Context, msg message.Message) error {
	if r.env == nil {
		return nil
	}
	if err := r.env.PublishMessage(ctx, msg); err != nil {
		return err
	}
	r.metrics.RecordPublished(ctx, r.setting.Profile, string(msg.CauseBy))
	r.emit(ctx, core.EventRolePublished, map[string]any{"cause_by": string(msg.CauseBy)})
	return nil
}

func (r *Role) fail(ctx context.Context, span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	r.logger.ErrorContext(ctx, "role run failed", "role", r.id, "error", err)
	r.metrics.RecordRoleRun(ctx, r.setting.Profile, telemetry.OutcomeFailed)
	r.metrics.RecordError(ctx, err, "role")
	r.emit(ctx, core.EventRoleError, map[string]any{
		"code":  string(kerrors.CodeOf(err)),
		"error": err.Error(),
	})
	return err
}

func (r *Role) emit(ctx context.Context, t core.EventType, payload map[string]any) {
	r.events.Emit(ctx, core.NewEvent(ctx, t, r.setting.Profile, payload))
}
