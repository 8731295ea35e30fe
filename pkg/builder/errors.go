package builder

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a compile error for reporting and metrics.
type ErrorKind string

const (
	// ErrorKindConfig indicates an invalid or inconsistent configuration value.
	ErrorKindConfig ErrorKind = "config"

	// ErrorKindReference indicates an unknown reference target or an
	// unresolvable cross-service path.
	ErrorKindReference ErrorKind = "reference"

	// ErrorKindCycle indicates a cycle in the reference graph.
	ErrorKindCycle ErrorKind = "cycle"

	// ErrorKindBehavior indicates a malformed or unsupported behavior
	// statement.
	ErrorKindBehavior ErrorKind = "behavior"

	// ErrorKindSubstitution indicates a variable that resolved to a
	// non-scalar value.
	ErrorKindSubstitution ErrorKind = "substitution"

	// ErrorKindRequired indicates a required-value marker that survived to
	// validation.
	ErrorKindRequired ErrorKind = "required"

	// ErrorKindIO indicates a filesystem or network failure.
	ErrorKindIO ErrorKind = "io"

	// ErrorKindHook indicates a hook script failure or rejection.
	ErrorKindHook ErrorKind = "hook"

	// ErrorKindInternal indicates a bug in the compiler itself.
	ErrorKindInternal ErrorKind = "internal"
)

// BuildError represents a classified compile error with context.
type BuildError struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Service is the service or image name that caused the error, if
	// applicable.
	Service string `json:"service,omitempty"`

	// Line is the behavior line number the error originated from, counted
	// from 1. Zero when not line-scoped.
	Line int `json:"line,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}
	switch {
	case e.Service != "" && e.Line > 0:
		return fmt.Sprintf("[%s] %s (service=%s, line=%d)", e.Kind, msg, e.Service, e.Line)
	case e.Service != "":
		return fmt.Sprintf("[%s] %s (service=%s)", e.Kind, msg, e.Service)
	default:
		return fmt.Sprintf("[%s] %s", e.Kind, msg)
	}
}

// Unwrap returns the underlying error for error chain inspection.
func (e *BuildError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *BuildError) Is(target error) bool {
	t, ok := target.(*BuildError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewConfigError creates a new configuration error.
func NewConfigError(message string, err error) *BuildError {
	return &BuildError{Kind: ErrorKindConfig, Message: message, Err: err}
}

// NewReferenceError creates a new reference error.
func NewReferenceError(message string, err error) *BuildError {
	return &BuildError{Kind: ErrorKindReference, Message: message, Err: err}
}

// NewCycleError creates a new cycle error.
func NewCycleError(message string, err error) *BuildError {
	return &BuildError{Kind: ErrorKindCycle, Message: message, Err: err}
}

// NewBehaviorError creates a new behavior error.
func NewBehaviorError(message string, err error) *BuildError {
	return &BuildError{Kind: ErrorKindBehavior, Message: message, Err: err}
}

// NewSubstitutionError creates a new substitution error.
func NewSubstitutionError(message string, err error) *BuildError {
	return &BuildError{Kind: ErrorKindSubstitution, Message: message, Err: err}
}

// NewRequiredError creates a new required-value error.
func NewRequiredError(message string, err error) *BuildError {
	return &BuildError{Kind: ErrorKindRequired, Message: message, Err: err}
}

// NewIOError creates a new io error.
func NewIOError(message string, err error) *BuildError {
	return &BuildError{Kind: ErrorKindIO, Message: message, Err: err}
}

// NewHookError creates a new hook error.
func NewHookError(message string, err error) *BuildError {
	return &BuildError{Kind: ErrorKindHook, Message: message, Err: err}
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, err error) *BuildError {
	return &BuildError{Kind: ErrorKindInternal, Message: message, Err: err}
}

// WithService adds service context to an error.
func (e *BuildError) WithService(service string) *BuildError {
	e.Service = service
	return e
}

// WithLine adds behavior line context to an error.
func (e *BuildError) WithLine(line int) *BuildError {
	e.Line = line
	return e
}

// KindOf returns the classification of err, or ErrorKindInternal for
// unclassified errors.
func KindOf(err error) ErrorKind {
	var e *BuildError
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrorKindInternal
}

// IsCycle returns true if the error is classified as a cycle error.
func IsCycle(err error) bool {
	var e *BuildError
	if errors.As(err, &e) {
		return e.Kind == ErrorKindCycle
	}
	return false
}

// IsReference returns true if the error is classified as a reference error.
func IsReference(err error) bool {
	var e *BuildError
	if errors.As(err, &e) {
		return e.Kind == ErrorKindReference
	}
	return false
}
