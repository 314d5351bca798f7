// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package guardrails

import (
	"context"
	"strings"
	"testing"

	kerrors "github.com/jllopis/agora/pkg/errors"
)

func TestPIIFilterMask(t *testing.T) {
	f, err := NewPIIFilter(PIIMask)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		in   string
		want string
	}{
		{"mail bob@example.com now", "mail [EMAIL] now"},
		{"call 555-123-4567", "call [PHONE]"},
		{"ssn 123-45-6789", "ssn [SSN]"},
		{"card 4111 1111 1111 1111", "card [CREDIT_CARD]"},
		{"host 10.0.0.1 is up", "host [IP_ADDRESS] is up"},
		{"nothing personal", "nothing personal"},
	}
	for _, tc := range tests {
		res := f.Filter(context.Background(), tc.in)
		if res.Content != tc.want {
			t.Errorf("Filter(%q) = %q, want %q", tc.in, res.Content, tc.want)
		}
		if res.Modified != (tc.in != tc.want) {
			t.Errorf("Filter(%q) modified = %v", tc.in, res.Modified)
		}
	}
}

func TestPIIFilterModes(t *testing.T) {
	remove, _ := NewPIIFilter(PIIRemove, PIIEmail)
	if got := remove.Filter(context.Background(), "a bob@example.com b").Content; got != "a  b" {
		t.Fatalf("remove mode = %q", got)
	}

	hash, _ := NewPIIFilter(PIIHash, PIIEmail)
	first := hash.Filter(context.Background(), "bob@example.com").Content
	second := hash.Filter(context.Background(), "bob@example.com").Content
	if first != second || !strings.HasPrefix(first, "[EMAIL_") || strings.Contains(first, "bob") {
		t.Fatalf("hash mode = %q, %q", first, second)
	}
}

func TestPIIFilterOnlySelectedTypes(t *testing.T) {
	f, err := NewPIIFilter(PIIMask, PIIEmail)
	if err != nil {
		t.Fatal(err)
	}
	res := f.Filter(context.Background(), "bob@example.com 555-123-4567")
	if res.Content != "[EMAIL] 555-123-4567" {
		t.Fatalf("got %q", res.Content)
	}
	if len(res.Redactions) != 1 || res.Redactions[0].Type != "email" || res.Redactions[0].Position != 0 {
		t.Fatalf("redactions = %+v", res.Redactions)
	}
}

func TestNewPIIFilterRejectsUnknown(t *testing.T) {
	if _, err := NewPIIFilter("shred"); !kerrors.HasCode(err, kerrors.CodeConfig) {
		t.Fatalf("expected config error for mode, got %v", err)
	}
	if _, err := NewPIIFilter(PIIMask, "passport"); !kerrors.HasCode(err, kerrors.CodeConfig) {
		t.Fatalf("expected config error for type, got %v", err)
	}
}

type upper struct{}

func (upper) ID() string { return "upper" }
func (upper) Filter(_ context.Context, s string) Result {
	u := strings.ToUpper(s)
	return Result{Content: u, Modified: u != s, Redactions: []Redaction{{Type: "case"}}}
}

func TestChain(t *testing.T) {
	pii, _ := NewPIIFilter(PIIMask)
	res := Chain{pii, upper{}}.Filter(context.Background(), "ping bob@example.com")
	if res.Content != "PING [EMAIL]" || !res.Modified {
		t.Fatalf("chain = %+v", res)
	}
	if got := res.Types(); len(got) != 2 || got[0] != "email" || got[1] != "case" {
		t.Fatalf("types = %v", got)
	}
}
