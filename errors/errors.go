// Package errors defines the coded error taxonomy shared by every ledger
// operation. Callers branch on the code, not on message text.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code classifies an error for callers. ErrCodeConcurrency is the only class
// a caller is expected to retry; everything else indicates a caller bug or a
// genuine business-rule breach and must surface unchanged.
type Code string

const (
	// ErrCodeValidation indicates malformed or out-of-range input.
	ErrCodeValidation Code = "VALIDATION"
	// ErrCodeInvariant indicates a broken accounting invariant (debits != credits).
	ErrCodeInvariant Code = "INVARIANT_VIOLATION"
	// ErrCodeState indicates the operation is invalid for the record's current status.
	ErrCodeState Code = "INVALID_STATE"
	// ErrCodeUnauthorized indicates the actor may not perform the action
	// (wrong approver, self-approval, invalid delegation target).
	ErrCodeUnauthorized Code = "UNAUTHORIZED"
	// ErrCodeNotFound indicates a missing scheme, workflow, level, request or voucher.
	ErrCodeNotFound Code = "NOT_FOUND"
	// ErrCodeDuplicate indicates an approval request is already in flight.
	ErrCodeDuplicate Code = "DUPLICATE_REQUEST"
	// ErrCodeConcurrency indicates a lock-wait timeout or deadlock; retryable.
	ErrCodeConcurrency Code = "CONCURRENCY_CONFLICT"
	// ErrCodeInternal indicates an unexpected store or infrastructure failure.
	ErrCodeInternal Code = "INTERNAL"
)

// Error carries a code, a human-readable message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Field   string // set by InvalidInput; empty otherwise
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with no cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. A nil err returns nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	// Keep the innermost domain code when one is already present.
	var coded *Error
	if stderrors.As(err, &coded) {
		return err
	}
	return &Error{Code: code, Message: message, cause: err}
}

// NotFound creates a standard missing-resource error.
func NotFound(resource, id string) error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s %q not found", resource, id)}
}

// InvalidInput creates a validation error for a named field.
func InvalidInput(field, message string) error {
	return &Error{Code: ErrCodeValidation, Field: field, Message: message}
}

// CodeOf extracts the code from an error chain, or ErrCodeInternal when the
// error carries no code.
func CodeOf(err error) Code {
	var coded *Error
	if stderrors.As(err, &coded) {
		return coded.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether the error chain carries the given code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsRetryable reports whether the caller may retry the operation.
func IsRetryable(err error) bool {
	return HasCode(err, ErrCodeConcurrency)
}
