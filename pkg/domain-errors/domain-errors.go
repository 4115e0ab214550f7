package domainerrors

import (
	"errors"
	"time"
)

// Code represents a domain error category independent of transport layer.
// These codes describe what went wrong in admission and authentication terms, not HTTP terms.
type Code string

const (
	CodeNotFound           Code = "not_found"
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeValidation         Code = "validation_failed"
	CodeInternal           Code = "internal_error"
	CodeConflict           Code = "conflict"
	CodeInvariantViolation Code = "invariant_violation"
	CodeTimeout            Code = "timeout"

	// Admission and account-security outcomes. All of them are recoverable at
	// the boundary and map to a user-facing response.
	CodeRateLimited        Code = "rate_limited"        // transient, retry after RetryAfter
	CodeAccountLocked      Code = "account_locked"      // transient, retry after lockout expiry
	CodeInvalidCredentials Code = "invalid_credentials" // terminal for this attempt
	CodeUnauthenticated    Code = "unauthenticated"     // caller must re-authenticate
	CodeBackendUnavailable Code = "backend_unavailable" // store unreachable, callers fail closed
)

// Error wraps domain or infrastructure failures with a stable code.
// It is transport-agnostic and can be used across service, store, and other layers.
type Error struct {
	Code    Code
	Message string
	Err     error

	// RetryAfter is set for transient denials (rate limited, account locked).
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Retryable reports whether the caller may retry the same request later.
func (e *Error) Retryable() bool {
	switch e.Code {
	case CodeRateLimited, CodeAccountLocked, CodeBackendUnavailable:
		return true
	}
	return false
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// NewRetryable creates a transient denial that carries the time until a retry can succeed.
// Negative durations are clamped to zero.
func NewRetryable(code Code, msg string, retryAfter time.Duration) error {
	return &Error{Code: code, Message: msg, RetryAfter: max(retryAfter, 0)}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code is preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		// Preserve the original domain code, update message
		return &Error{Code: existing.Code, Message: msg, Err: err, RetryAfter: existing.RetryAfter}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the domain code of err, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// RetryAfterOf returns the retry hint carried by err, or zero.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}
