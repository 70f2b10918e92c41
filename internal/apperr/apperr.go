// Package apperr carries the error kinds shared by the ledger and
// reconciliation services, so that HTTP handlers and the CLI can map a
// failure to the right status code or exit code without string-sniffing
// error messages.
package apperr

import "fmt"

// Kind classifies an error for the purpose of surfacing it to a caller.
type Kind string

const (
	Validation         Kind = "VALIDATION"
	NotFound           Kind = "NOT_FOUND"
	Conflict           Kind = "CONFLICT"
	InsufficientFunds  Kind = "INSUFFICIENT_FUNDS"
	SourceIO           Kind = "SOURCE_IO"
	Database           Kind = "DATABASE"
	Internal           Kind = "INTERNAL"
)

// Error wraps an underlying cause with a Kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a Kind-tagged error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap tags err with a Kind, preserving it as the unwrap target.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error; otherwise returns Internal.
func KindOf(err error) Kind {
	var ae *Error
	if ok := asError(err, &ae); ok {
		return ae.Kind
	}
	return Internal
}

func asError(err error, target **Error) bool {
	for err != nil {
		if ae, ok := err.(*Error); ok {
			*target = ae
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// ValidationErrors accumulates multiple rule violations, the way
// CommandValidator's ordered rule list accumulates every failing rule
// instead of stopping at the first one.
type ValidationErrors []string

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0]
}

// Empty reports whether no rule was violated.
func (e ValidationErrors) Empty() bool { return len(e) == 0 }
