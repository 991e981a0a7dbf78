// Package errors provides standardized error handling for the search platform.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Query compilation errors
const (
	ErrCodeParseError      ErrorCode = "PARSE_ERROR"
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
)

// Search backend errors
const (
	ErrCodeBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	ErrCodeBulkPartialFailure ErrorCode = "BULK_PARTIAL_FAILURE"
)

// Message handling failure sources. These codes double as the
// failure-source classification consumed by the retry engine.
const (
	ErrCodeRPCError     ErrorCode = "RPC_ERROR"
	ErrCodeHTTPError    ErrorCode = "HTTP_ERROR"
	ErrCodeESTimeout    ErrorCode = "ES_TIMEOUT"
	ErrCodeESError      ErrorCode = "ES_ERROR"
	ErrCodeProcessError ErrorCode = "PROCESS_ERROR"
)

// Operational signals
const (
	ErrCodeQueueCapacityExceeded ErrorCode = "QUEUE_CAPACITY_EXCEEDED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// CodeOf extracts the ErrorCode from any error, unwrapping as needed.
// Returns PROCESS_ERROR for errors that carry no code.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ErrCodeProcessError
}

// IsRetryable reports whether an error is retryable by the SLA engine.
// Unclassified errors are not retryable.
func IsRetryable(err error) bool {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Retryable
	}
	return false
}

// IsParseError reports whether err is a mini-language parse failure,
// which compilers recover from by dropping the fragment.
func IsParseError(err error) bool {
	return CodeOf(err) == ErrCodeParseError
}

// IsInvalidArgument reports whether err is a mandatory-sub-key failure,
// which aborts the whole request.
func IsInvalidArgument(err error) bool {
	return CodeOf(err) == ErrCodeInvalidArgument
}

// ==========================
// 2. Error Constructors
// ==========================

// NewParseError creates a non-retryable mini-language parse error.
func NewParseError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeParseError,
		Message:   "Malformed mini-language token",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidArgumentError creates a non-retryable operator argument error.
func NewInvalidArgumentError(op, key string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidArgument,
		Message:   "Missing mandatory operator argument",
		Details:   fmt.Sprintf("operator: %s, key: %s", op, key),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewBackendUnavailableError creates a retryable search backend error.
func NewBackendUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeBackendUnavailable,
		Message:   "Search backend connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewBulkPartialFailureError reports the subset of a bulk write that failed.
func NewBulkPartialFailureError(failed []map[string]interface{}) *StandardError {
	return &StandardError{
		Code:      ErrCodeBulkPartialFailure,
		Message:   "Bulk operation partially failed",
		Details:   fmt.Sprintf("%d items failed", len(failed)),
		Retryable: false,
		Metadata:  map[string]interface{}{"failedItems": failed},
		Timestamp: time.Now().UTC(),
	}
}

// NewRPCError creates a retryable RPC source failure.
func NewRPCError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRPCError,
		Message:   "RPC call failed during message processing",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewHTTPError creates a retryable HTTP source failure.
func NewHTTPError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeHTTPError,
		Message:   "HTTP call failed during message processing",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewESTimeoutError creates a retryable Elasticsearch timeout failure.
func NewESTimeoutError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeESTimeout,
		Message:   "Elasticsearch request timed out",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewESError creates a retryable Elasticsearch failure.
func NewESError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeESError,
		Message:   "Elasticsearch request failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewProcessError creates a non-retryable in-process failure.
func NewProcessError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeProcessError,
		Message:   "Message processing failed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueueCapacityExceededError creates the advisory threshold alarm error.
// It is logged and alerted, never used for control flow.
func NewQueueCapacityExceededError(queue string, depth, limit int64) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueueCapacityExceeded,
		Message:   "Queue depth over configured threshold",
		Details:   fmt.Sprintf("queue: %s, depth: %d, limit: %d", queue, depth, limit),
		Retryable: false,
		Metadata:  map[string]interface{}{"queue": queue, "depth": depth, "limit": limit},
		Timestamp: time.Now().UTC(),
	}
}
