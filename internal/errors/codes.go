package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents internal error codes for sync operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Client errors
	ErrCodeInvalidArgument ErrorCode = 1000
	ErrCodeNotFound        ErrorCode = 1001

	// Remote errors
	ErrCodeRemoteUnavailable ErrorCode = 2000
	ErrCodeRetryExhausted    ErrorCode = 2001
	ErrCodeBatchCommitFailed ErrorCode = 2002
	ErrCodeRemoteRejected    ErrorCode = 2003

	// Local errors
	ErrCodeFallbackFailed ErrorCode = 3000
	ErrCodeInternal       ErrorCode = 3001
)

// SyncError represents a structured error with code and context
type SyncError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *SyncError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *SyncError) WithDetail(key string, value interface{}) *SyncError {
	e.Details[key] = value
	return e
}

// NewSyncError creates a new SyncError
func NewSyncError(code ErrorCode, message string, cause error) *SyncError {
	return &SyncError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// Convenience constructors for common errors

func InvalidArgument(message string, cause error) *SyncError {
	return NewSyncError(ErrCodeInvalidArgument, message, cause)
}

func NotFound(collection, id string) *SyncError {
	return NewSyncError(ErrCodeNotFound, fmt.Sprintf("document not found: %s/%s", collection, id), nil).
		WithDetail("collection", collection).
		WithDetail("id", id)
}

func RemoteUnavailable(message string, cause error) *SyncError {
	return NewSyncError(ErrCodeRemoteUnavailable, message, cause)
}

func RetryExhausted(key string, attempts int, cause error) *SyncError {
	return NewSyncError(ErrCodeRetryExhausted, fmt.Sprintf("retries exhausted for %s after %d attempts", key, attempts), cause).
		WithDetail("key", key).
		WithDetail("attempts", attempts)
}

func BatchCommitFailed(operations int, cause error) *SyncError {
	return NewSyncError(ErrCodeBatchCommitFailed, fmt.Sprintf("atomic commit of %d operations rejected", operations), cause).
		WithDetail("operations", operations)
}

func RemoteRejected(message string, cause error) *SyncError {
	return NewSyncError(ErrCodeRemoteRejected, message, cause)
}

func FallbackFailed(message string, cause error) *SyncError {
	return NewSyncError(ErrCodeFallbackFailed, message, cause)
}

func InternalError(message string, cause error) *SyncError {
	return NewSyncError(ErrCodeInternal, message, cause)
}

// IsSyncError checks if an error is a SyncError
func IsSyncError(err error) bool {
	var se *SyncError
	return errors.As(err, &se)
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// IsNotFound reports whether err carries ErrCodeNotFound
func IsNotFound(err error) bool {
	return GetCode(err) == ErrCodeNotFound
}
