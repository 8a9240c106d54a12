// Package minererr defines the closed set of error kinds the miner core
// distinguishes, so callers can decide log-and-continue vs abort-current-root
// without parsing error strings.
package minererr

import (
	"errors"
	"fmt"
)

// Kind is one of the error categories from the error handling design.
type Kind int

const (
	// Cancelled means an in-flight operation was cancelled; never retried,
	// never logged as a failure.
	Cancelled Kind = iota
	// NotSupported means an optional backend operation was invoked on a
	// backend that lacks it.
	NotSupported
	// TransientIO covers per-directory open and per-file stat failures;
	// logged as a warning, the affected entry is skipped.
	TransientIO
	// Corruption covers malformed store rows or truncated batches; the
	// affected batch is abandoned and the crawler moves to the next root.
	Corruption
	// ProgrammerError marks invariant violations. Callers should treat
	// this as a bug, not a runtime condition to recover from.
	ProgrammerError
	// Paused means the caller tried to progress a miner that is paused.
	Paused
	// InvalidCookie means resume was called with an unrecognized pause cookie.
	InvalidCookie
	// AlreadyPaused means a duplicate pause with an identical (application, reason).
	AlreadyPaused
)

func (k Kind) String() string {
	switch k {
	case Cancelled:
		return "cancelled"
	case NotSupported:
		return "not_supported"
	case TransientIO:
		return "transient_io"
	case Corruption:
		return "corruption"
	case ProgrammerError:
		return "programmer_error"
	case Paused:
		return "paused"
	case InvalidCookie:
		return "invalid_cookie"
	case AlreadyPaused:
		return "already_paused"
	default:
		return "unknown"
	}
}

// Error wraps a Kind with context and an optional cause, implementing
// errors.Is/errors.Unwrap so callers can match on Kind alone.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a *Error with the same Kind, so
// errors.Is(err, minererr.New(Cancelled, "")) works regardless of message.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// KindOf extracts the Kind from err, returning ok=false if err is not (or
// does not wrap) a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsCancelled is a convenience check used throughout the dispatch loop to
// suppress logging for cancelled operations.
func IsCancelled(err error) bool {
	k, ok := KindOf(err)
	return ok && k == Cancelled
}
