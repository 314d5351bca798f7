// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed errors for the agora runtime.
//
// Every failure that crosses a package boundary carries a Code so callers
// can tell fatal conditions (configuration, budget) from recovered ones
// (invalid state selection, schema retries) without string matching.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies runtime errors for logging, metrics and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeConfig indicates missing or invalid configuration. Fatal at startup.
	CodeConfig ErrorCode = "CONFIG_ERROR"

	// CodeActionFailure indicates an action invocation failed.
	CodeActionFailure ErrorCode = "ACTION_FAILURE"

	// CodeSchema indicates a structured payload did not match its schema.
	CodeSchema ErrorCode = "SCHEMA_ERROR"

	// CodeInvalidState indicates the LLM picked a state outside the action list.
	CodeInvalidState ErrorCode = "INVALID_STATE"

	// CodeBudgetExceeded indicates the running cost passed the configured ceiling.
	CodeBudgetExceeded ErrorCode = "BUDGET_EXCEEDED"

	// CodeMemory indicates a memory or similarity store error.
	CodeMemory ErrorCode = "MEMORY_ERROR"

	// CodeLLM indicates an LLM provider error.
	CodeLLM ErrorCode = "LLM_ERROR"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeContextLost indicates the context was canceled mid-operation.
	CodeContextLost ErrorCode = "CONTEXT_LOST"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"
)

// Error is a typed error with structured context.
// It implements the error interface and can be unwrapped with errors.As().
type Error struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Recoverable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *Error) MarshalJSON() ([]byte, error) {
	var cause string
	if e.Err != nil {
		cause = e.Err.Error()
	}
	return json.Marshal(&struct {
		Message     string                 `json:"message"`
		Code        string                 `json:"code"`
		Err         string                 `json:"error,omitempty"`
		Context     map[string]interface{} `json:"context,omitempty"`
		Recoverable bool                   `json:"recoverable"`
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         cause,
		Context:     e.Context,
		Recoverable: e.Recoverable,
	})
}

// New creates a new Error with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: msg,
		Err:     cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *Error) WithRecoverable(recoverable bool) *Error {
	e.Recoverable = recoverable
	return e
}

// RecoverableString returns "true" or "false" for metric attributes.
func (e *Error) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// As returns the first *Error in err's chain, or nil.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stderrors.As(err, &typed) {
		return typed
	}
	return nil
}

// Wrap converts any error into an *Error, keeping existing ones untouched.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	if typed := As(err); typed != nil {
		return typed
	}
	return New(CodeInternal, "wrapped error", err)
}

// HasCode reports whether any *Error in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var typed *Error
		if !stderrors.As(err, &typed) {
			return false
		}
		if typed.Code == code {
			return true
		}
		err = typed.Err
	}
	return false
}

// CodeOf returns the outermost code in err's chain, or CodeInternal.
func CodeOf(err error) ErrorCode {
	if typed := As(err); typed != nil {
		return typed.Code
	}
	return CodeInternal
}
