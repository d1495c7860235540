package errors

import (
	"errors"
	"fmt"
)

// Kind is the closed set of failure categories a component can report.
type Kind string

const (
	// KindSetup covers failures before the main loop: open, stream info,
	// decoder, renderer or writer initialization. Always fatal.
	KindSetup Kind = "SETUP_ERROR"
	// KindSeek covers invalid targets and unseekable streams. Recovered
	// locally by dropping the seek.
	KindSeek Kind = "SEEK_ERROR"
	// KindSynthesis covers a timestamp synthesizer that cannot be built.
	// Fatal at construction, never raised per packet.
	KindSynthesis Kind = "SYNTHESIS_ERROR"
	// KindTransientIO covers a single packet that failed to read, decode
	// or write. Recovered by skipping the packet.
	KindTransientIO Kind = "TRANSIENT_IO_ERROR"
	// KindStream is a run of transient failures escalated to fatal.
	KindStream Kind = "STREAM_ERROR"
)

// Error is an application error with operation context.
type Error struct {
	Kind    Kind
	Op      string // Operation that failed, e.g. "open", "seek", "write_packet"
	Path    string // Input or output path, if any
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Kind) + ": "
	if e.Op != "" {
		msg += e.Op + ": "
	}
	msg += e.Message
	if e.Path != "" {
		msg += fmt.Sprintf(" (path: %s)", e.Path)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(" (caused by: %v)", e.Err)
	}
	return msg
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithPath adds the path the operation worked on.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// Fatal reports whether the error must stop the stream.
func (e *Error) Fatal() bool {
	switch e.Kind {
	case KindSetup, KindSynthesis, KindStream:
		return true
	default:
		return false
	}
}

// New creates a new Error.
func New(kind Kind, op, message string) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
	}
}

// Wrap wraps an existing error.
func Wrap(err error, kind Kind, op, message string) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// Common error constructors.

// NewSetupError creates a setup error.
func NewSetupError(op, message string) *Error {
	return New(KindSetup, op, message)
}

// WrapSetupError wraps an error as setup error.
func WrapSetupError(err error, op, message string) *Error {
	return Wrap(err, KindSetup, op, message)
}

// NewSeekError creates a seek error.
func NewSeekError(message string) *Error {
	return New(KindSeek, "seek", message)
}

// WrapSeekError wraps an error as seek error.
func WrapSeekError(err error, message string) *Error {
	return Wrap(err, KindSeek, "seek", message)
}

// NewSynthesisError creates a synthesis error.
func NewSynthesisError(message string) *Error {
	return New(KindSynthesis, "synthesize", message)
}

// WrapTransientError wraps a per-packet failure.
func WrapTransientError(err error, op string) *Error {
	return Wrap(err, KindTransientIO, op, "packet skipped")
}

// GetError extracts an *Error from an error chain.
func GetError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind checks whether any *Error in the chain has the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := GetError(err)
	return ok && e.Kind == kind
}

// KindOf returns the kind of the first *Error in the chain, or "" if none.
func KindOf(err error) Kind {
	if e, ok := GetError(err); ok {
		return e.Kind
	}
	return ""
}
