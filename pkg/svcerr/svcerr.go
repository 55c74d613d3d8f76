// Package svcerr provides the coded error values used by all PlanetHub
// services. This is a leaf package with no internal dependencies, designed
// to be imported by storage back-ends, the namespace layer, and the protocol
// layers without causing circular imports.
//
// Every user-visible failure carries a three-digit code modelled on HTTP
// semantics. The code is an internal tag; only the protocol layers render it
// onto the wire (as "NNN message"). Code never parses numeric prefixes back
// out of message strings.
package svcerr

import (
	"errors"
	"fmt"
)

// Well-known codes. The 6xx range is PlanetHub-specific (resource busy).
const (
	CodeBadRequest       = 400
	CodeUnauthorized     = 401
	CodePermissionDenied = 403
	CodeNotFound         = 404
	CodeNotADirectory    = 405
	CodeSequenceError    = 406
	CodeAlreadyExists    = 409
	CodePrecondition     = 412
	CodeFileTooLarge     = 413
	CodeUnsupportedType  = 415
	CodeInvalidFormat    = 422
	CodeInternal         = 500
	CodeResourceInUse    = 601
)

// Error is a service error carrying a numeric code and a message.
type Error struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%d %s", e.Code, e.Message)
}

// New creates an error with the given code and message.
func New(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with the given code and a formatted message.
func Newf(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Common constructors. Messages follow the classic wording of the hosting
// platform's wire protocol and are part of the external contract.

// BadRequest reports a malformed request or invalid value (400).
func BadRequest(message string) *Error { return New(CodeBadRequest, message) }

// Unauthorized reports invalid credentials (401).
func Unauthorized(message string) *Error { return New(CodeUnauthorized, message) }

// PermissionDenied reports a permission failure (403).
func PermissionDenied() *Error { return New(CodePermissionDenied, "Permission denied") }

// NotFound reports a missing file, user, or token (404).
func NotFound(message string) *Error { return New(CodeNotFound, message) }

// NotADirectory reports an operation applied to the wrong node type (405).
func NotADirectory() *Error { return New(CodeNotADirectory, "Not a directory") }

// AlreadyExists reports a name collision or occupied slot (409).
func AlreadyExists(message string) *Error { return New(CodeAlreadyExists, message) }

// Precondition reports an invalid identifier or wrong state (412).
func Precondition(message string) *Error { return New(CodePrecondition, message) }

// FileTooLarge reports a file exceeding the configured size limit (413).
func FileTooLarge() *Error { return New(CodeFileTooLarge, "File too large") }

// Internal reports a database or internal failure (500).
func Internal(message string) *Error { return New(CodeInternal, message) }

// CodeOf extracts the numeric code from err, or CodeInternal if err carries
// none. A nil error yields 0.
func CodeOf(err error) int {
	if err == nil {
		return 0
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeInternal
}

// Wire renders err for the wire as "NNN message". Errors without a code are
// rendered as "500 Internal error" so that internal details never leak.
func Wire(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Error()
	}
	return "500 Internal error"
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code int) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == code
}
