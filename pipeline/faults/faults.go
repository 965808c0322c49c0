// Package faults classifies pipeline failures so the runtime can decide
// between dropping a record, redelivering a message or refusing to start.
package faults

import (
	"errors"
	"fmt"
)

// Kind identifies the failure class of an error
type Kind int

const (
	// KindParse marks a malformed tuple, record or resource id; the record is dropped
	KindParse Kind = iota + 1
	// KindOverflow marks a rendered record larger than the sink budget on its own
	KindOverflow
	// KindChunkingInvariant marks a computed zero-length chunk; the run aborts before the checkpoint advances
	KindChunkingInvariant
	// KindTransport marks an unreachable sink or a non-success response
	KindTransport
	// KindConfiguration marks missing or invalid settings detected at startup
	KindConfiguration
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindParse:
		return "parse"
	case KindOverflow:
		return "overflow"
	case KindChunkingInvariant:
		return "chunking_invariant"
	case KindTransport:
		return "transport"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Error wraps an error with its kind and the operation that failed
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error in %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Parse creates a parse error
func Parse(op string, format string, args ...any) error {
	return newError(KindParse, op, format, args...)
}

// Overflow creates an overflow error
func Overflow(op string, format string, args ...any) error {
	return newError(KindOverflow, op, format, args...)
}

// ChunkingInvariant creates a chunking invariant error
func ChunkingInvariant(op string, format string, args ...any) error {
	return newError(KindChunkingInvariant, op, format, args...)
}

// Transport creates a transport error
func Transport(op string, format string, args ...any) error {
	return newError(KindTransport, op, format, args...)
}

// Configuration creates a configuration error
func Configuration(op string, format string, args ...any) error {
	return newError(KindConfiguration, op, format, args...)
}

// Is reports whether any error in err's chain is a classified error of the given kind
func Is(err error, kind Kind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first classified error in err's chain, or 0
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// Retryable reports whether redelivering the work that produced err may succeed.
// Configuration and parse failures never heal on redelivery; unclassified errors
// (storage reads, queue hiccups) are treated as retryable.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindConfiguration, KindParse, KindOverflow:
		return false
	default:
		return true
	}
}
