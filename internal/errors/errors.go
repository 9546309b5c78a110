// Package errors defines the stable error codes used across the srcaudit
// store and tools. Expected conditions (a missing file, lock contention)
// travel as ordinary values carrying one of these codes, never as panics.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// FileNotFound indicates a path could not be resolved or statted on disk
	FileNotFound ErrorCode = "FILE_NOT_FOUND"
	// StoreBusy indicates lock contention that exhausted the retry budget
	StoreBusy ErrorCode = "STORE_BUSY"
	// StoreCorrupt indicates a permanent store failure (schema mismatch, I/O)
	StoreCorrupt ErrorCode = "STORE_CORRUPT"
	// StoreMissing indicates no database file was found in the directory tree
	StoreMissing ErrorCode = "STORE_MISSING"
	// PatchMismatch indicates on-disk text no longer matches the recorded finding
	PatchMismatch ErrorCode = "PATCH_MISMATCH"
	// InternalError indicates an unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// AuditError represents a srcaudit error with a stable code and message
type AuditError struct {
	Code    ErrorCode
	Message string
	cause   error
}

// New creates a new AuditError
func New(code ErrorCode, message string, cause error) *AuditError {
	return &AuditError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Newf creates a new AuditError with a formatted message
func Newf(code ErrorCode, cause error, format string, args ...interface{}) *AuditError {
	return New(code, fmt.Sprintf(format, args...), cause)
}

// Error implements the error interface
func (e *AuditError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AuditError) Unwrap() error {
	return e.cause
}

// CodeOf extracts the error code from err, or InternalError if it does not
// carry one.
func CodeOf(err error) ErrorCode {
	var ae *AuditError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return InternalError
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
