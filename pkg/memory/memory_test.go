// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/jllopis/agora/pkg/message"
)

const (
	actX message.ActionType = "X"
	actY message.ActionType = "Y"
)

func msg(content string, cause message.ActionType) message.Message {
	return message.New(content, message.WithCauseBy(cause))
}

func contents(msgs []message.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func assertContents(t *testing.T, got []message.Message, want ...string) {
	t.Helper()
	g := contents(got)
	if len(g) != len(want) {
		t.Fatalf("expected %v, got %v", want, g)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, g)
		}
	}
}

func TestAddIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := New()
	m1 := msg("hello", actX)

	_ = m.Add(ctx, m1)
	_ = m.Add(ctx, m1)
	_ = m.Add(ctx, msg("hello", actX))

	if m.Count() != 1 {
		t.Fatalf("expected 1 message, got %d", m.Count())
	}
	if got := m.GetByAction(actX); len(got) != 1 {
		t.Fatalf("expected 1 indexed message, got %d", len(got))
	}
}

func TestIndexAndGet(t *testing.T) {
	ctx := context.Background()
	m := New()
	_ = m.AddBatch(ctx, []message.Message{msg("msg1", actX), msg("msg2", actX), msg("msg3", actY)})

	assertContents(t, m.GetByAction(actX), "msg1", "msg2")
	assertContents(t, m.Get(0), "msg1", "msg2", "msg3")
	assertContents(t, m.Get(2), "msg2", "msg3")
	assertContents(t, m.Get(10), "msg1", "msg2", "msg3")
	if got := m.GetByAction("unknown"); len(got) != 0 {
		t.Fatalf("expected no messages, got %v", contents(got))
	}
}

func TestGetByActionsFollowsTypeOrder(t *testing.T) {
	ctx := context.Background()
	m := New()
	_ = m.AddBatch(ctx, []message.Message{
		msg("b1", actY),
		msg("a1", actX),
		msg("b2", actY),
		msg("a2", actX),
		msg("none", message.ActionNone),
	})

	assertContents(t, m.GetByActions([]message.ActionType{actX, actY}), "a1", "a2", "b1", "b2")
	assertContents(t, m.GetByActions([]message.ActionType{"missing", actY}), "b1", "b2")
	if got := m.GetByAction(message.ActionNone); len(got) != 0 {
		t.Fatal("messages without cause must not be indexed")
	}
}

func TestFindNews(t *testing.T) {
	ctx := context.Background()
	m1, m2, m3 := msg("m1", actX), msg("m2", actX), msg("m3", actX)

	tests := []struct {
		name     string
		stored   []message.Message
		observed []message.Message
		k        int
		want     []string
	}{
		{"trailing window", []message.Message{m1, m2}, []message.Message{m1, m2, m3}, 1, []string{"m1", "m3"}},
		{"whole memory", []message.Message{m1, m2}, []message.Message{m1, m2, m3}, 0, []string{"m3"}},
		{"order preserved", nil, []message.Message{m3, m1, m2}, 0, []string{"m3", "m1", "m2"}},
		{"duplicates kept", []message.Message{m1}, []message.Message{m2, m2, m1}, 0, []string{"m2", "m2"}},
		{"nothing new", []message.Message{m1, m2}, []message.Message{m2, m1}, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			_ = m.AddBatch(ctx, tt.stored)
			news, err := m.FindNews(ctx, tt.observed, tt.k)
			if err != nil {
				t.Fatalf("find news: %v", err)
			}
			assertContents(t, news, tt.want...)
		})
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	m := New()
	a, b := msg("a", actX), msg("b", actX)
	_ = m.AddBatch(ctx, []message.Message{a, b})

	_ = m.Delete(ctx, a)
	assertContents(t, m.Get(0), "b")
	assertContents(t, m.GetByAction(actX), "b")
	if m.Contains(a) {
		t.Fatal("deleted message still reported as contained")
	}

	// Absent messages are ignored.
	_ = m.Delete(ctx, msg("ghost", actY))
	if m.Count() != 1 {
		t.Fatalf("expected 1 message, got %d", m.Count())
	}

	// A deleted message can be added again.
	_ = m.Add(ctx, a)
	assertContents(t, m.Get(0), "b", "a")
}

func TestClearAndQueries(t *testing.T) {
	ctx := context.Background()
	m := New()
	_ = m.AddBatch(ctx, []message.Message{
		message.New("design the API", message.WithRole("Architect"), message.WithCauseBy(actX)),
		message.New("write the tests", message.WithRole("QA"), message.WithCauseBy(actY)),
	})

	assertContents(t, m.GetByRole("QA"), "write the tests")
	assertContents(t, m.GetByContent("API"), "design the API")
	assertContents(t, m.TryRemember("tests"), "write the tests")

	_ = m.Clear(ctx)
	if m.Count() != 0 || len(m.GetByAction(actX)) != 0 {
		t.Fatal("expected empty memory after clear")
	}
}

func TestGetReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := New()
	_ = m.Add(ctx, msg("original", actX))

	got := m.Get(0)
	got[0].Content = "mutated"
	assertContents(t, m.Get(0), "original")
}

func TestConcurrentAdd(t *testing.T) {
	ctx := context.Background()
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				// Half of the messages are shared between workers.
				_ = m.Add(ctx, msg(fmt.Sprintf("shared-%d", j), actX))
				_ = m.Add(ctx, msg(fmt.Sprintf("w%d-%d", worker, j), actY))
			}
		}(i)
	}
	wg.Wait()

	if got := m.Count(); got != 50+8*50 {
		t.Fatalf("expected %d messages, got %d", 50+8*50, got)
	}
	if got := len(m.GetByAction(actX)); got != 50 {
		t.Fatalf("expected 50 shared messages, got %d", got)
	}
}
