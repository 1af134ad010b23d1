package engine

import (
	"errors"
	"fmt"
)

// Code classifies every failure a session command can produce.
type Code string

const (
	CodeNotFound        Code = "NOT_FOUND"
	CodeNotMember       Code = "NOT_MEMBER"
	CodeAlreadyMember   Code = "ALREADY_MEMBER"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeForbidden       Code = "FORBIDDEN"
	CodeRosterNotReady  Code = "ROSTER_NOT_READY"
	CodeAlreadyFinished Code = "ALREADY_FINISHED"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeConflict        Code = "CONFLICT"
	CodeInvariant       Code = "INVARIANT"
)

// Retryable reports whether the whole command may be safely re-issued.
func (c Code) Retryable() bool {
	return c == CodeConflict
}

// Error is the typed error returned by every engine and service operation.
type Error struct {
	Code       Code
	Message    string
	Violations []Violation
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error carrying the same code, so the sentinels below work
// with errors.Is regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrNotFound        = &Error{Code: CodeNotFound, Message: "session not found"}
	ErrNotMember       = &Error{Code: CodeNotMember, Message: "player is not in this session"}
	ErrAlreadyMember   = &Error{Code: CodeAlreadyMember, Message: "player already joined this session"}
	ErrInvalidState    = &Error{Code: CodeInvalidState, Message: "operation not allowed in current session state"}
	ErrForbidden       = &Error{Code: CodeForbidden, Message: "only the session creator can do this"}
	ErrRosterNotReady  = &Error{Code: CodeRosterNotReady, Message: "not enough ready players to start"}
	ErrAlreadyFinished = &Error{Code: CodeAlreadyFinished, Message: "session already finished"}
	ErrInvalidInput    = &Error{Code: CodeInvalidInput, Message: "invalid input"}
	ErrConflict        = &Error{Code: CodeConflict, Message: "session was modified concurrently, retry"}
	ErrInvariant       = &Error{Code: CodeInvariant, Message: "session data is corrupted"}
)

// Errorf builds an *Error of the given code with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new *Error of the given code.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the code from err, or "" when err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ViolationsOf returns the validation violations carried by err, if any.
func ViolationsOf(err error) []Violation {
	var e *Error
	if errors.As(err, &e) {
		return e.Violations
	}
	return nil
}
