package gfio

import (
	"errors"
	"fmt"
)

// Error represents a gfio error with an error code
type Error struct {
	Code    ErrorCode
	Message string
	Err     error // wrapped error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gfio: %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("gfio: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code, so that
// errors.Is(err, &Error{Code: ErrIO}) matches any I/O failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// ErrorCode classifies gfio errors
type ErrorCode int

const (
	// Success indicates the operation completed successfully
	Success ErrorCode = iota

	// ErrInvalid indicates an invalid argument: negative offsets or lengths,
	// or a range outside the file or mapping
	ErrInvalid

	// ErrInvalidState indicates the object cannot serve the call in its
	// current state: it is closed, or its sequential cursor is stale
	ErrInvalidState

	// ErrIO indicates an operating system or mapping failure
	ErrIO

	// ErrNotImplemented indicates a capability the backend does not offer
	ErrNotImplemented

	// ErrUnknown is returned by Code for errors that did not come from gfio
	ErrUnknown
)

var codeNames = map[ErrorCode]string{
	Success:           "success",
	ErrInvalid:        "invalid argument",
	ErrInvalidState:   "invalid state",
	ErrIO:             "I/O error",
	ErrNotImplemented: "not implemented",
	ErrUnknown:        "unknown error",
}

func (c ErrorCode) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("error code %d", int(c))
}

// NewError creates a new Error with the given code and message
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates a new Error wrapping another error
func WrapError(code ErrorCode, err error, format string, args ...any) *Error {
	e := NewError(code, format, args...)
	e.Err = err
	return e
}

// Code returns the error code from an error, or ErrUnknown if not a gfio error
func Code(err error) ErrorCode {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrUnknown
}

// IsInvalid returns true for invalid-argument and invalid-state errors.
// Both are caller mistakes; use IsInvalidState to tell them apart.
func IsInvalid(err error) bool {
	c := Code(err)
	return c == ErrInvalid || c == ErrInvalidState
}

// IsInvalidState returns true if the error is ErrInvalidState
func IsInvalidState(err error) bool {
	return Code(err) == ErrInvalidState
}

// IsIOError returns true if the error is ErrIO
func IsIOError(err error) bool {
	return Code(err) == ErrIO
}

// IsNotImplemented returns true if the error is ErrNotImplemented
func IsNotImplemented(err error) bool {
	return Code(err) == ErrNotImplemented
}

func errClosed(what string) *Error {
	return NewError(ErrInvalidState, "operation on closed %s", what)
}

func checkRange(offset, length int64) error {
	if offset < 0 {
		return NewError(ErrInvalid, "negative offset %d", offset)
	}
	if length < 0 {
		return NewError(ErrInvalid, "negative length %d", length)
	}
	return nil
}
