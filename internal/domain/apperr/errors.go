// Package apperr defines the typed error taxonomy returned by the approval
// core. Every error crossing a package boundary carries a Kind so callers can
// decide whether refetching and retrying is safe.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind string

const (
	KindInternal          Kind = "Internal"
	KindNotFound          Kind = "NotFound"
	KindInvalidTransition Kind = "InvalidTransition"
	KindForbidden         Kind = "Forbidden"
	KindStaleState        Kind = "StaleState"
	KindDomainSyncFailure Kind = "DomainSyncFailure"
	KindValidation        Kind = "ValidationError"
)

// Sentinels for errors.Is comparisons against a kind.
var (
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition, Message: "invalid transition"}
	ErrForbidden         = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrStaleState        = &Error{Kind: KindStaleState, Message: "stale state"}
	ErrDomainSyncFailure = &Error{Kind: KindDomainSyncFailure, Message: "domain sync failure"}
	ErrValidation        = &Error{Kind: KindValidation, Message: "validation error"}
)

// Error is the concrete error type.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "engine.Transition"
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels above work with
// errors.Is regardless of Op or Message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates an error of the given kind.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to cause. A cause that already carries a kind keeps it.
func Wrap(kind Kind, op string, cause error, message string) error {
	if cause == nil {
		return nil
	}
	var existing *Error
	if errors.As(cause, &existing) {
		kind = existing.Kind
	}
	return &Error{Kind: kind, Op: op, Message: message, Err: cause}
}

func NotFound(op, format string, args ...any) *Error {
	return New(KindNotFound, op, format, args...)
}

func InvalidTransition(op, format string, args ...any) *Error {
	return New(KindInvalidTransition, op, format, args...)
}

func Forbidden(op, format string, args ...any) *Error {
	return New(KindForbidden, op, format, args...)
}

func StaleState(op, format string, args ...any) *Error {
	return New(KindStaleState, op, format, args...)
}

func Validation(op, format string, args ...any) *Error {
	return New(KindValidation, op, format, args...)
}

// DomainSync wraps a domain-side failure. Stale-state causes are preserved so a
// lost compare-and-swap on the domain record stays retryable.
func DomainSync(op string, cause error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if cause == nil {
		return &Error{Kind: KindDomainSyncFailure, Op: op, Message: msg}
	}
	if KindOf(cause) == KindStaleState {
		return &Error{Kind: KindStaleState, Op: op, Message: msg, Err: cause}
	}
	return &Error{Kind: KindDomainSyncFailure, Op: op, Message: msg, Err: cause}
}

// KindOf returns the kind of the outermost *Error in the chain, or
// KindInternal for untyped errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Retryable reports whether a caller may refetch and retry.
func Retryable(err error) bool {
	return KindOf(err) == KindStaleState
}
