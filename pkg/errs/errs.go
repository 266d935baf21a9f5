// Package errs defines the error taxonomy shared by every graphcore
// component: parser, model, graph, workflow, and the HTTP surface all
// wrap errors in one of these kinds so callers can branch on Kind
// instead of parsing messages.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies a class of error in the taxonomy.
type Kind string

const (
	KindParseError      Kind = "parse_error"
	KindInvalidQuery    Kind = "invalid_query"
	KindModelViolation  Kind = "model_violation"
	KindIncompleteGraph Kind = "incomplete_graph"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindTimeout         Kind = "timeout"
	KindCancelled       Kind = "cancelled"
	KindInternal        Kind = "internal"
)

// Error is the concrete error type carried through the system. Position
// is only meaningful for KindParseError.
type Error struct {
	Kind     Kind
	Message  string
	Position int
	Err      error
}

func (e *Error) Error() string {
	if e.Kind == KindParseError && e.Position >= 0 {
		return fmt.Sprintf("%s: %s (at position %d)", e.Kind, e.Message, e.Position)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, errs.New(KindNotFound, "")) to match on Kind alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Position: -1}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Position: -1, Err: err}
}

func ParseError(message string, position int) *Error {
	return &Error{Kind: KindParseError, Message: message, Position: position}
}

func InvalidQuery(message string) *Error {
	return New(KindInvalidQuery, message)
}

func ModelViolation(message string) *Error {
	return New(KindModelViolation, message)
}

func IncompleteGraph(message string) *Error {
	return New(KindIncompleteGraph, message)
}

func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

func Conflict(message string) *Error {
	return New(KindConflict, message)
}

func Timeout(message string) *Error {
	return New(KindTimeout, message)
}

func Cancelled(message string) *Error {
	return New(KindCancelled, message)
}

func Internal(message string, err error) *Error {
	return Wrap(KindInternal, message, err)
}

// KindOf extracts the Kind of err, defaulting to KindInternal for
// errors that were never classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
