// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package guardrails

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	kerrors "github.com/jllopis/agora/pkg/errors"
)

// PIIMode selects how a detected span is replaced.
type PIIMode string

const (
	// PIIMask replaces the span with a placeholder such as "[EMAIL]".
	PIIMask PIIMode = "mask"
	// PIIRemove drops the span.
	PIIRemove PIIMode = "remove"
	// PIIHash replaces the span with a short stable digest so repeated
	// values can still be correlated across messages.
	PIIHash PIIMode = "hash"
)

// PIIType names a kind of personal data.
type PIIType string

const (
	PIIEmail      PIIType = "email"
	PIIPhone      PIIType = "phone"
	PIISSN        PIIType = "ssn"
	PIICreditCard PIIType = "credit_card"
	PIIIPAddress  PIIType = "ip_address"
)

type piiRule struct {
	typ  PIIType
	re   *regexp.Regexp
	mask string
}

// Order matters: card numbers and SSNs also look like phone numbers.
var piiRules = []piiRule{
	{PIICreditCard, regexp.MustCompile(`\b[0-9]{4}[- ]?[0-9]{4}[- ]?[0-9]{4}[- ]?[0-9]{4}\b`), "[CREDIT_CARD]"},
	{PIISSN, regexp.MustCompile(`\b[0-9]{3}-[0-9]{2}-[0-9]{4}\b`), "[SSN]"},
	{PIIEmail, regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`), "[EMAIL]"},
	{PIIPhone, regexp.MustCompile(`\+?\(?[0-9]{3}\)?[-. ][0-9]{3}[-. ][0-9]{4}\b`), "[PHONE]"},
	{PIIIPAddress, regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`), "[IP_ADDRESS]"},
}

// PIIFilter replaces personal data in action output.
type PIIFilter struct {
	mode    PIIMode
	enabled map[PIIType]bool
}

// NewPIIFilter returns a filter for types, or for every known type when
// none is given.
func NewPIIFilter(mode PIIMode, types ...PIIType) (*PIIFilter, error) {
	switch mode {
	case PIIMask, PIIRemove, PIIHash:
	case "":
		mode = PIIMask
	default:
		return nil, kerrors.New(kerrors.CodeConfig, "unknown redaction mode", nil).
			WithContext("mode", string(mode))
	}
	f := &PIIFilter{mode: mode, enabled: make(map[PIIType]bool)}
	if len(types) == 0 {
		for _, r := range piiRules {
			f.enabled[r.typ] = true
		}
		return f, nil
	}
	for _, t := range types {
		if !knownPII(t) {
			return nil, kerrors.New(kerrors.CodeConfig, "unknown pii type", nil).
				WithContext("type", string(t))
		}
		f.enabled[t] = true
	}
	return f, nil
}

func knownPII(t PIIType) bool {
	for _, r := range piiRules {
		if r.typ == t {
			return true
		}
	}
	return false
}

// ID implements Filter.
func (f *PIIFilter) ID() string { return "pii" }

// Filter implements Filter.
func (f *PIIFilter) Filter(ctx context.Context, content string) Result {
	res := Result{Content: content}
	for _, r := range piiRules {
		if !f.enabled[r.typ] || ctx.Err() != nil {
			continue
		}
		matches := r.re.FindAllStringIndex(res.Content, -1)
		// Right to left keeps earlier offsets valid.
		for i := len(matches) - 1; i >= 0; i-- {
			start, end := matches[i][0], matches[i][1]
			repl := f.replacement(r, res.Content[start:end])
			res.Content = res.Content[:start] + repl + res.Content[end:]
			res.Redactions = append(res.Redactions, Redaction{
				Type:        string(r.typ),
				Replacement: repl,
				Position:    start,
			})
			res.Modified = true
		}
	}
	return res
}

func (f *PIIFilter) replacement(r piiRule, original string) string {
	switch f.mode {
	case PIIRemove:
		return ""
	case PIIHash:
		h := fnv.New32a()
		h.Write([]byte(original))
		return fmt.Sprintf("%s_%08X]", strings.TrimSuffix(r.mask, "]"), h.Sum32())
	default:
		return r.mask
	}
}
