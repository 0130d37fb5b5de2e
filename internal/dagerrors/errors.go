// Package dagerrors defines the typed error kinds raised by the commit
// graph query engine, following the same shape the rest of this project
// uses for structured, context-carrying errors.
package dagerrors

import (
	"fmt"
	"runtime"
	"strings"
)

// Kind classifies the failure so callers can branch on it without string
// matching.
type Kind int

const (
	// CodecError - a byte sequence is not a valid 20-byte oid.
	CodecError Kind = iota
	// UnexpectedZeroOid - a non-zero oid was required but the zero oid was given.
	UnexpectedZeroOid
	// IterationFailure - an underlying set iterator reported a backend error.
	IterationFailure
	// BackendError - a parent-resolution callback raised a genuine backend fault.
	BackendError
	// NoParents - get_only_parent_oid found zero parents.
	NoParents
	// MultipleParents - get_only_parent_oid found more than one parent.
	MultipleParents
	// IndexIO - opening or creating the persistent DAG directory failed.
	IndexIO
)

func (k Kind) String() string {
	switch k {
	case CodecError:
		return "CODEC_ERROR"
	case UnexpectedZeroOid:
		return "UNEXPECTED_ZERO_OID"
	case IterationFailure:
		return "ITERATION_FAILURE"
	case BackendError:
		return "BACKEND_ERROR"
	case NoParents:
		return "NO_PARENTS"
	case MultipleParents:
		return "MULTIPLE_PARENTS"
	case IndexIO:
		return "INDEX_IO"
	default:
		return "UNKNOWN"
	}
}

// Error is a structured error carrying the failing operation and a chain of
// context key/value pairs, in addition to the usual message and cause.
type Error struct {
	Kind       Kind
	Operation  string // which operation was in progress: open, sync, iterate, convert, ...
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace string
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Operation != "" {
		sb.WriteString(e.Operation)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&sb, ": %v", e.Cause)
	}
	return sb.String()
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithContext attaches a key/value pair to the error for diagnostics.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// DetailedString renders the error with its context and stack trace, useful
// for trace-level logging.
func (e *Error) DetailedString() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s\n", e.Kind, e.Error())
	for k, v := range e.Context {
		fmt.Fprintf(&sb, "  %s: %v\n", k, v)
	}
	if e.StackTrace != "" {
		fmt.Fprintf(&sb, "stack:\n%s", e.StackTrace)
	}
	return sb.String()
}

func captureStackTrace(skip int) string {
	var sb strings.Builder
	for i := skip; i < skip+8; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			break
		}
		fmt.Fprintf(&sb, "  %s:%d %s\n", file, line, fn.Name())
	}
	return sb.String()
}

// New creates a new error of the given kind for the named operation.
func New(kind Kind, operation, message string) *Error {
	return &Error{Kind: kind, Operation: operation, Message: message, StackTrace: captureStackTrace(2)}
}

// Newf is New with formatting.
func Newf(kind Kind, operation, format string, args ...interface{}) *Error {
	return New(kind, operation, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with a kind, operation, and message. Returns
// nil if err is nil, so call sites can write `return Wrap(err, ...)` freely.
func Wrap(err error, kind Kind, operation, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Operation: operation, Message: message, Cause: err, StackTrace: captureStackTrace(2)}
}

// Wrapf is Wrap with formatting.
func Wrapf(err error, kind Kind, operation, format string, args ...interface{}) *Error {
	return Wrap(err, kind, operation, fmt.Sprintf(format, args...))
}

// Convenience constructors for the kinds this module actually raises.

func NewCodecError(operation, message string) *Error {
	return New(CodecError, operation, message)
}

func NewCodecErrorf(operation, format string, args ...interface{}) *Error {
	return Newf(CodecError, operation, format, args...)
}

func NewUnexpectedZeroOid(operation string) *Error {
	return New(UnexpectedZeroOid, operation, "expected a non-zero oid, got the zero oid")
}

func WrapIteration(err error, operation string) *Error {
	return Wrap(err, IterationFailure, operation, "iterating commit set")
}

func WrapBackend(err error, operation, message string) *Error {
	return Wrap(err, BackendError, operation, message)
}

func NewNoParents(operation, message string) *Error {
	return New(NoParents, operation, message)
}

func NewMultipleParents(operation, message string) *Error {
	return New(MultipleParents, operation, message)
}

func WrapIndexIO(err error, operation, message string) *Error {
	return Wrap(err, IndexIO, operation, message)
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Kind == kind
}
