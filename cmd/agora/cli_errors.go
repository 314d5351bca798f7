// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	kerrors "github.com/jllopis/agora/pkg/errors"
)

// hintFor suggests the next step for a failure class.
func hintFor(err *kerrors.Error) string {
	switch err.Code {
	case kerrors.CodeConfig:
		if key, ok := err.Context["key"].(string); ok {
			return fmt.Sprintf("check %s in the config file, AGORA_* variables or --set", key)
		}
		return "check the config file, AGORA_* variables or --set"
	case kerrors.CodeBudgetExceeded:
		return "raise --investment or runtime.max_budget, or play fewer rounds"
	case kerrors.CodeLLM:
		return "check llm.provider, llm.base_url and llm.api_key"
	case kerrors.CodeMemory:
		return "check memory.long_term settings; 'agora memory clean <role-id>' drops a broken store"
	case kerrors.CodeTimeout:
		return "raise runtime.action_timeout_seconds or llm.timeout_seconds"
	case kerrors.CodeContextLost:
		return "the run was interrupted"
	case kerrors.CodeNotFound:
		return "run 'agora adapters list' to see the available names"
	default:
		return ""
	}
}

// FormatErrorCode returns a user-friendly name for error codes.
func FormatErrorCode(code kerrors.ErrorCode) string {
	switch code {
	case kerrors.CodeInternal:
		return "Internal Error"
	case kerrors.CodeConfig:
		return "Configuration Error"
	case kerrors.CodeActionFailure:
		return "Action Failure"
	case kerrors.CodeSchema:
		return "Schema Error"
	case kerrors.CodeInvalidState:
		return "Invalid State"
	case kerrors.CodeBudgetExceeded:
		return "Budget Exceeded"
	case kerrors.CodeMemory:
		return "Memory Error"
	case kerrors.CodeLLM:
		return "LLM Error"
	case kerrors.CodeTimeout:
		return "Timeout"
	case kerrors.CodeContextLost:
		return "Context Lost"
	case kerrors.CodeNotFound:
		return "Not Found"
	default:
		return string(code)
	}
}

type errorOutput struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

func describeError(err error) errorOutput {
	typed := kerrors.As(err)
	if typed == nil {
		return errorOutput{Code: "UNKNOWN", Message: err.Error()}
	}
	return errorOutput{
		Code:    string(typed.Code),
		Message: err.Error(),
		Hint:    hintFor(typed),
		Context: typed.Context,
	}
}

// printError prints err on stderr, as JSON when asked to.
func printError(err error, asJSON bool) {
	out := describeError(err)
	if asJSON {
		_ = writeJSON(os.Stderr, map[string]errorOutput{"error": out})
		return
	}
	name := out.Code
	if typed := kerrors.As(err); typed != nil {
		name = FormatErrorCode(typed.Code)
	}
	fmt.Fprintf(os.Stderr, "Error [%s]: %s\n", name, out.Message)
	if out.Hint != "" {
		fmt.Fprintf(os.Stderr, "  Hint: %s\n", out.Hint)
	}
}
