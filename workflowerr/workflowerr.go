// Package workflowerr provides the structured error taxonomy used to report
// task and workflow failures. Errors preserve message and causal context
// while still implementing the standard error interface, so the taxonomy
// survives across errors.Is/As checks and across projection into the task
// store's error record.
package workflowerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for scheduling and retry decisions.
type Kind string

const (
	// KindValidation indicates malformed or missing workflow arguments.
	KindValidation Kind = "validation"
	// KindUpstreamTransient indicates a retryable upstream failure (e.g. a
	// 5xx or rate-limit response).
	KindUpstreamTransient Kind = "upstream_transient"
	// KindUpstreamTerminal indicates a non-retryable upstream failure (e.g.
	// a 4xx response other than rate-limiting).
	KindUpstreamTerminal Kind = "upstream_terminal"
	// KindTimeout indicates a step exceeded its allotted budget.
	KindTimeout Kind = "timeout"
	// KindCancelled indicates the task was cancelled before completion.
	KindCancelled Kind = "cancelled"
	// KindInternal indicates a defect in the orchestrator itself.
	KindInternal Kind = "internal"
)

// Error represents a structured workflow failure. Errors may be nested via
// Cause to retain diagnostics across steps and upstream calls.
type Error struct {
	// Step names the workflow step that produced the failure (e.g.
	// "search.create", "poll.idle", "collect.items"). Empty for errors
	// raised outside a specific step.
	Step string
	// Kind classifies the failure for scheduling and retry decisions.
	Kind Kind
	// Message is the human-readable summary of the failure.
	Message string
	// Recoverable indicates whether retrying the same step might succeed.
	Recoverable bool
	// Cause links to the underlying error, enabling error chains with
	// errors.Is/As.
	Cause *Error
}

// New constructs an Error with the given kind and message.
func New(kind Kind, step, message string) *Error {
	if message == "" {
		message = string(kind)
	}
	return &Error{Step: step, Kind: kind, Message: message, Recoverable: kind == KindUpstreamTransient}
}

// Wrap converts an arbitrary error into an Error chain, classifying the
// outermost error with kind and step. If err is already an *Error it is
// returned as the Cause, preserving its original classification.
func Wrap(kind Kind, step string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Step:        step,
		Kind:        kind,
		Message:     err.Error(),
		Recoverable: kind == KindUpstreamTransient,
		Cause:       FromError(err),
	}
}

// FromError converts an arbitrary error into an Error chain.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Message: err.Error(), Cause: FromError(errors.Unwrap(err))}
}

// Errorf formats according to a format specifier and returns the result as
// an Error of the given kind.
func Errorf(kind Kind, step, format string, args ...any) *Error {
	return New(kind, step, fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Step != "" {
		return fmt.Sprintf("%s: %s", e.Step, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error to support errors.Is/As.
func (e *Error) Unwrap() error {
	if e == nil || e.Cause == nil {
		return nil
	}
	return e.Cause
}

// IsCancelled reports whether err (or a cause in its chain) is a
// cancellation error.
func IsCancelled(err error) bool {
	var e *Error
	for errors.As(err, &e) {
		if e.Kind == KindCancelled {
			return true
		}
		err = e.Cause
	}
	return false
}
