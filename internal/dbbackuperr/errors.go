// Package dbbackuperr defines the typed error kinds the backup/restore core
// surfaces. Callers use errors.As to recover the concrete kind and
// errors.Is against the Kind sentinels for coarse-grained checks.
package dbbackuperr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error. Comparisons should use errors.Is against the
// exported sentinels below, not string matching.
type Kind string

const (
	ConnectionFailed            Kind = "connection_failed"
	PermissionDenied            Kind = "permission_denied"
	UnsupportedFeature          Kind = "unsupported_feature"
	ParseFailed                 Kind = "parse_failed"
	DependencyCycleUnresolvable Kind = "dependency_cycle_unresolvable"
	IOFailure                   Kind = "io_failure"
	CancellationRequested       Kind = "cancellation_requested"
	StatementExecutionFailed    Kind = "statement_execution_failed"
)

// Error is the concrete error type for every failure this module
// originates. Kind is stable and machine-checkable; Message is
// human-readable; Cause, when present, is the wrapped underlying error.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// StatementIndex and Statement are populated for ParseFailed and
	// StatementExecutionFailed errors, with statement index and truncated
	// text.
	StatementIndex int
	Statement      string
}

func (e *Error) Error() string {
	if e.Statement != "" {
		return fmt.Sprintf("%s: %s (statement #%d: %s)", e.Kind, e.Message, e.StatementIndex, truncate(e.Statement, 200))
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, dbbackuperr.New(kind, "")) match on Kind alone,
// and also lets callers match against the bare Kind sentinel values
// declared as package-level vars below.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New constructs a plain Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithStatement attaches statement context (index + truncated text) and
// returns the receiver for chaining.
func (e *Error) WithStatement(index int, statement string) *Error {
	e.StatementIndex = index
	e.Statement = truncate(statement, 200)
	return e
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

// Sentinels of each Kind for use with errors.Is, e.g.
// errors.Is(err, dbbackuperr.ErrParseFailed).
var (
	ErrConnectionFailed            = &Error{Kind: ConnectionFailed}
	ErrPermissionDenied            = &Error{Kind: PermissionDenied}
	ErrUnsupportedFeature          = &Error{Kind: UnsupportedFeature}
	ErrParseFailed                 = &Error{Kind: ParseFailed}
	ErrDependencyCycleUnresolvable = &Error{Kind: DependencyCycleUnresolvable}
	ErrIOFailure                   = &Error{Kind: IOFailure}
	ErrCancellationRequested       = &Error{Kind: CancellationRequested}
	ErrStatementExecutionFailed    = &Error{Kind: StatementExecutionFailed}
)
