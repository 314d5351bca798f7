// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"math"
	"testing"
)

func TestHashEmbedderNormalized(t *testing.T) {
	e := NewHashEmbedder(64)
	vec, err := e.Embed(context.Background(), "The quick brown fox")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 64 {
		t.Fatalf("expected 64 dimensions, got %d", len(vec))
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Fatalf("expected unit vector, got norm %f", norm)
	}
}

func TestHashEmbedderDistances(t *testing.T) {
	ctx := context.Background()
	e := NewHashEmbedder(0)
	a, _ := e.Embed(ctx, "Write a snake game")
	b, _ := e.Embed(ctx, "write A snake, game!")
	c, _ := e.Embed(ctx, "quarterly revenue forecast")

	if d := SquaredL2(a, b); d > 1e-9 {
		t.Fatalf("same words must embed identically, distance %f", d)
	}
	if d := SquaredL2(a, c); d < 1 {
		t.Fatalf("unrelated text must be far apart, distance %f", d)
	}
}

func TestVectorIndexSearch(t *testing.T) {
	ctx := context.Background()
	ix := NewVectorIndex(NewHashEmbedder(0))
	for _, text := range []string{"red apple", "green apple", "blue car"} {
		vec, _ := ix.Embed(ctx, text)
		ix.Put(Document{ID: text, Text: text}, vec)
	}
	query, _ := ix.Embed(ctx, "red apple")
	hits := ix.Search(query, 2)
	if len(hits) != 2 || hits[0].ID != "red apple" || hits[0].Score > 1e-9 {
		t.Fatalf("unexpected hits %+v", hits)
	}
	if hits[1].ID != "green apple" {
		t.Fatalf("expected partial match second, got %s", hits[1].ID)
	}

	if !ix.Remove("red apple") || ix.Remove("red apple") {
		t.Fatal("remove must report presence")
	}
	if ix.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", ix.Len())
	}
}
