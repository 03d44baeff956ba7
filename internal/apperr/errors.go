package apperr

import (
	"errors"
	"fmt"
)

// Code identifies an error kind independent of its message.
type Code string

const (
	CodeNotFound        Code = "NOT_FOUND"
	CodeNotParticipant  Code = "NOT_PARTICIPANT"
	CodeContentMismatch Code = "CONTENT_MISMATCH"
	CodeValidation      Code = "VALIDATION"
	CodeConflict        Code = "CONFLICT"
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeInternal        Code = "INTERNAL"
)

// Error is the typed error returned by every core operation.
type Error struct {
	Code    Code              `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Cause   error             `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target carries the same code, so that
// errors.Is(err, apperr.ErrNotFound) matches any not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrNotFound        = &Error{Code: CodeNotFound, Message: "not found"}
	ErrNotParticipant  = &Error{Code: CodeNotParticipant, Message: "not a chat participant"}
	ErrContentMismatch = &Error{Code: CodeContentMismatch, Message: "content type does not match payload"}
	ErrValidation      = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrConflict        = &Error{Code: CodeConflict, Message: "conflict"}
	ErrUnauthenticated = &Error{Code: CodeUnauthenticated, Message: "unauthenticated"}
)

func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func NotFound(msg string) error {
	return New(CodeNotFound, msg)
}

func NotParticipant(msg string) error {
	return New(CodeNotParticipant, msg)
}

func Conflict(msg string, cause error) error {
	return Wrap(CodeConflict, msg, cause)
}

func Unauthenticated(msg string) error {
	return New(CodeUnauthenticated, msg)
}

func Internal(msg string, cause error) error {
	return Wrap(CodeInternal, msg, cause)
}

// Invalid builds a validation error carrying a single field detail.
func Invalid(field, msg string) error {
	return &Error{Code: CodeValidation, Message: msg, Fields: map[string]string{field: msg}}
}

// Validation builds a validation error carrying one detail per field.
func Validation(msg string, fields map[string]string) error {
	return &Error{Code: CodeValidation, Message: msg, Fields: fields}
}

// Mismatch builds a content mismatch error carrying a single field detail.
func Mismatch(field, msg string) error {
	return &Error{Code: CodeContentMismatch, Message: msg, Fields: map[string]string{field: msg}}
}

// CodeOf extracts the code of err, or CodeInternal when err is not typed.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
