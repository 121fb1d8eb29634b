package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Node-local error codes. Errors with these codes are recovered at the node
// boundary and converted into an error envelope.
const (
	ErrConfiguration ErrorCode = "CONFIGURATION"
	ErrCompilation   ErrorCode = "COMPILATION"
	ErrExecution     ErrorCode = "EXECUTION"
	ErrTimeout       ErrorCode = "TIMEOUT"
	ErrCircularDep   ErrorCode = "CIRCULAR_DEPENDENCY"
)

// Run-level error codes. These abort a run before or during scheduling.
const (
	ErrGraphCycle    ErrorCode = "GRAPH_CYCLE"
	ErrValidation    ErrorCode = "VALIDATION"
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrFanInStarved marks a node that never became ready because all upstream
// branches were not taken. It is informational, not a failure.
const ErrFanInStarved ErrorCode = "FAN_IN_STARVED"

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	NodeID     string    `json:"node_id,omitempty"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithNodeID tags the error with the node it originated from.
func (e *Error) WithNodeID(nodeID string) *Error {
	e.NodeID = nodeID
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// IsRecoverable reports whether the error is recovered at the node boundary
// (converted into an error envelope) rather than aborting the run.
func IsRecoverable(err error) bool {
	switch GetErrorCode(err) {
	case ErrConfiguration, ErrCompilation, ErrExecution, ErrTimeout, ErrCircularDep:
		return true
	}
	return false
}
