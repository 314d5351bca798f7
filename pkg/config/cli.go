// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"strings"

	kerrors "github.com/jllopis/agora/pkg/errors"
)

type cliOptions struct {
	path    string
	profile string
}

type override struct {
	key   string
	value any
}

// parseCLIOverrides extracts the config flags from args. Flags accept
// both "--flag value" and "--flag=value".
func parseCLIOverrides(args []string) (cliOptions, []override, error) {
	var (
		opts      cliOptions
		overrides []override
	)
	for i := 0; i < len(args); i++ {
		name, value, hasValue := strings.Cut(args[i], "=")
		switch name {
		case "--config", "--profile", "--env", "--set":
		default:
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				return opts, nil, kerrors.New(kerrors.CodeConfig, "missing value for "+name, nil)
			}
			i++
			value = args[i]
		}

		switch name {
		case "--config":
			opts.path = value
		case "--profile", "--env":
			opts.profile = value
		case "--set":
			o, err := parseOverride(value)
			if err != nil {
				return opts, nil, err
			}
			overrides = append(overrides, o)
		}
	}
	return opts, overrides, nil
}

// parseOverride splits key=value. JSON objects and arrays are decoded;
// anything else stays a string for koanf to convert.
func parseOverride(raw string) (override, error) {
	key, value, ok := strings.Cut(raw, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return override{}, kerrors.New(kerrors.CodeConfig, "override must be key=value", nil).
			WithContext("override", raw)
	}
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			return override{key: key, value: decoded}, nil
		}
	}
	return override{key: key, value: value}, nil
}
