// Package errors provides standardized error codes for the status agent.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (status, controller, session, server, config)
//   - error: The specific error type within that domain
//
// These codes are stable and can be used by API clients for programmatic
// error handling. Human-readable messages are provided alongside codes.
package errors

import (
	"errors"
	"fmt"
)

// Error codes by domain.
const (
	// Status domain - snapshot file reading
	CodeStatusFileUnreadable = "status.file_unreadable" // Snapshot file could not be read

	// Controller domain - remote controller protocol
	CodeControllerAddress         = "controller.address_resolution" // Configured host/port is malformed
	CodeControllerConnect         = "controller.connect_failed"     // TCP connect failed
	CodeControllerAuth            = "controller.auth_failed"        // Key write/flush failed
	CodeControllerIO              = "controller.io"                 // Socket read/write failed
	CodeControllerTimeout         = "controller.timeout"            // Connect, auth or command timed out
	CodeControllerRejected        = "controller.rejected"           // Controller answered with a non-zero code
	CodeControllerInvalidResponse = "controller.invalid_response"   // Response had an unexpected shape
	CodeControllerInternal        = "controller.internal"           // Cached socket vanished under the lock

	// Session domain - PTY bridge
	CodeSessionSpawnFailed = "session.spawn_failed" // Failed to allocate PTY or spawn shell

	// Server domain - HTTP and WebSocket
	CodeServerUpgradeFailed  = "server.upgrade_failed"  // WebSocket upgrade failed
	CodeServerInvalidRequest = "server.invalid_request" // Malformed request body
	CodeServerRateLimited    = "server.rate_limited"    // Too many control requests

	// Config domain
	CodeConfigNotFound = "config.not_found" // Explicit config file missing
	CodeConfigInvalid  = "config.invalid"   // Config file or value could not be parsed

	// General domain - catch-all errors
	CodeUnknown  = "error.unknown"  // Unknown error
	CodeInternal = "error.internal" // Internal server error
)

// CodedError wraps an error with a stable error code.
// This allows errors to carry both a code for programmatic handling
// and a message for human consumption.
type CodedError struct {
	Code    string // Stable error code (e.g., "controller.timeout")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error.
// If the error is a CodedError, returns its code.
// Falls back to CodeUnknown for unrecognized errors.
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	return CodeUnknown
}

// GetMessage extracts a human-readable message from an error.
// If the error is a CodedError, returns its message.
// Otherwise, returns the error's Error() string.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}

	return err.Error()
}

// ToCodeAndMessage extracts both code and message from an error.
// This is the primary function for converting errors to client responses.
func ToCodeAndMessage(err error) (code, message string) {
	if err == nil {
		return "", ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code, coded.Message
	}

	return CodeUnknown, err.Error()
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// IsRetryable reports whether the error belongs to the connectivity class:
// the controller could not be reached or did not answer in time. The same
// request may succeed once the client reconnects.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case CodeControllerConnect, CodeControllerTimeout, CodeControllerIO, CodeControllerAuth:
		return true
	}
	return false
}

// FileUnreadable creates a "status.file_unreadable" error.
func FileUnreadable(path string, cause error) *CodedError {
	return Wrap(CodeStatusFileUnreadable, fmt.Sprintf("cannot read %s", path), cause)
}

// SpawnFailed creates a "session.spawn_failed" error.
func SpawnFailed(what string, cause error) *CodedError {
	return Wrap(CodeSessionSpawnFailed, fmt.Sprintf("failed to %s", what), cause)
}

// InvalidRequest creates a "server.invalid_request" error.
func InvalidRequest(reason string) *CodedError {
	return New(CodeServerInvalidRequest, reason)
}

// Internal creates an "error.internal" error.
func Internal(message string, cause error) *CodedError {
	return Wrap(CodeInternal, message, cause)
}
