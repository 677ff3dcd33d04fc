package domain

import (
	"errors"
	"fmt"
)

// Error codes surfaced in API envelopes and handler-summary logs.
const (
	CodeValidation           = "VALIDATION"
	CodeExpiredOrUnknownCode = "EXPIRED_OR_UNKNOWN_CODE"
	CodeMismatch             = "MISMATCH"
	CodeMalformedPayload     = "MALFORMED_PAYLOAD"
	CodeInvalidSignature     = "INVALID_SIGNATURE"
	CodeUpstreamUnavailable  = "UPSTREAM_UNAVAILABLE"
	CodeNotFoundUser         = "NOT_FOUND_USER"
)

// Error is the service error type. The code travels to API envelopes and is
// picked up by the router's summary logging via the Code method.
type Error struct {
	code    string
	message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the stable machine-readable error code.
func (e *Error) Code() string { return e.code }

func (e *Error) Unwrap() error { return e.cause }

// NewError builds an Error with an explicit code.
func NewError(code, message string, cause error) *Error {
	return &Error{code: code, message: message, cause: cause}
}

// ErrValidation reports invalid caller input.
func ErrValidation(message string) *Error {
	return &Error{code: CodeValidation, message: message}
}

// ErrExpiredOrUnknownCode reports a code that is absent from the ephemeral store.
func ErrExpiredOrUnknownCode() *Error {
	return &Error{code: CodeExpiredOrUnknownCode, message: "invalid or expired code"}
}

// ErrMismatch reports that the two sides of the handshake disagree.
func ErrMismatch() *Error {
	return &Error{code: CodeMismatch, message: "verification mismatch"}
}

// ErrMalformedPayload reports an unreadable stored code payload.
func ErrMalformedPayload(cause error) *Error {
	return &Error{code: CodeMalformedPayload, message: "malformed code payload", cause: cause}
}

// ErrInvalidSignature reports a failed HMAC check on the confirm call.
func ErrInvalidSignature() *Error {
	return &Error{code: CodeInvalidSignature, message: "invalid signature"}
}

// ErrUpstreamUnavailable reports a record store or backend failure.
func ErrUpstreamUnavailable(cause error) *Error {
	return &Error{code: CodeUpstreamUnavailable, message: "upstream unavailable", cause: cause}
}

// ErrNotFoundUser reports an unknown Telegram user in the record store.
func ErrNotFoundUser() *Error {
	return &Error{code: CodeNotFoundUser, message: "user not found"}
}

// CodeOf extracts the error code, or empty when err carries none.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}
