// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package action

import (
	"regexp"
	"strings"
)

var (
	contentBlock = regexp.MustCompile(`(?s)\[CONTENT\](\s*\{.*?\}\s*)\[/CONTENT\]`)
	fencedJSON   = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
)

// ExtractContent returns the JSON object of an LLM reply: the first
// [CONTENT] block, else the first fenced JSON block, else the whole reply.
func ExtractContent(reply string) string {
	if m := contentBlock.FindStringSubmatch(reply); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := fencedJSON.FindStringSubmatch(reply); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(reply)
}
