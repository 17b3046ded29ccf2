// Package errs implements the closed error taxonomy described in spec §7.
// Error is modeled directly on the teacher's toolerrors.ToolError: a message
// plus an optional wrapped cause, preserving errors.Is/As chains while
// remaining trivially serializable across the approval-result boundary
// (the orchestrator posts tool failures back to the agent runtime as JSON).
package errs

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind enumerates the closed set of error categories surfaced by the core.
type Kind string

const (
	// ValidationError indicates malformed or schema-violating tool arguments.
	ValidationError Kind = "validation_error"
	// NotFound indicates a missing entity (world, story, segment, asset).
	NotFound Kind = "not_found"
	// NotAuthorized indicates an ownership mismatch.
	NotAuthorized Kind = "not_authorized"
	// PathInvalid indicates a malformed foundation update path.
	PathInvalid Kind = "path_invalid"
	// ProviderUnavailable indicates an external AI/image provider failure.
	ProviderUnavailable Kind = "provider_unavailable"
	// AgentRuntimeUnavailable indicates a stream/runtime failure past retry.
	AgentRuntimeUnavailable Kind = "agent_runtime_unavailable"
	// TurnDiverged indicates the approval loop exceeded its iteration cap.
	TurnDiverged Kind = "turn_diverged"
	// Conflict indicates a concurrent update collision.
	Conflict Kind = "conflict"
	// Internal is the catch-all for unexpected failures.
	Internal Kind = "internal"
)

// Error is a structured failure carrying a Kind, a human-readable message,
// and an optional wrapped cause. It implements error, Unwrap, and JSON
// marshaling so it can travel as a tool-call approval-result payload.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Cause   *Error `json:"cause,omitempty"`
}

// New constructs an Error of the given kind with the provided message.
func New(kind Kind, message string) *Error {
	if message == "" {
		message = string(kind)
	}
	return &Error{Kind: kind, Message: message}
}

// Newf formats according to a format specifier and returns an Error of the
// given kind.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap constructs an Error of the given kind that wraps an underlying error.
// The cause is converted into an *Error chain (via From) so structure
// survives serialization.
func Wrap(kind Kind, message string, cause error) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &Error{Kind: kind, Message: message, Cause: From(cause)}
}

// From converts an arbitrary error into an *Error chain, preserving an
// existing *Error's Kind if found via errors.As, and defaulting to Internal
// otherwise.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: Internal, Message: err.Error(), Cause: From(errors.Unwrap(err))}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap returns the wrapped cause, supporting errors.Is/As chains.
func (e *Error) Unwrap() error {
	if e == nil || e.Cause == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether target shares this error's Kind. This lets callers
// write errors.Is(err, errs.New(errs.NotFound, "")) style checks, matching
// how the orchestrator classifies tool failures without string matching.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || t == nil || e == nil {
		return false
	}
	return e.Kind == t.Kind
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	for c := e; c != nil; c = c.Cause {
		if c.Kind == kind {
			return true
		}
	}
	return false
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and Internal
// otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind
	}
	return Internal
}

// MarshalJSON and UnmarshalJSON are implemented implicitly via the exported
// struct fields; Envelope is a convenience for approval-result encoding.

// Envelope is the JSON shape posted back to the agent runtime as a tool
// call's approval result when execution fails (spec §4.1, §7).
type Envelope struct {
	ToolCallID string `json:"tool_call_id"`
	Status     string `json:"status"`
	Error      *Error `json:"error"`
}

// NewEnvelope builds an error Envelope for the given tool call.
func NewEnvelope(toolCallID string, err error) Envelope {
	return Envelope{ToolCallID: toolCallID, Status: "error", Error: From(err)}
}

// MarshalEnvelope is a small helper used by the orchestrator when building
// the approval-result bundle posted back to the agent runtime.
func MarshalEnvelope(toolCallID string, err error) ([]byte, error) {
	return json.Marshal(NewEnvelope(toolCallID, err))
}
