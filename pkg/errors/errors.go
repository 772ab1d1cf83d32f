package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents different types of errors in the system
type ErrorType string

const (
	// ErrorTypeNotFound indicates a resource was not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeValidation indicates a malformed input, rejected before any I/O
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeConflict indicates a slot or booking overlaps an existing busy interval
	ErrorTypeConflict ErrorType = "CONFLICT"

	// ErrorTypeAuth indicates an expired or invalid provider credential
	ErrorTypeAuth ErrorType = "AUTH"

	// ErrorTypeStorage indicates the authoritative event store is unavailable
	ErrorTypeStorage ErrorType = "STORAGE"

	// ErrorTypePartialSource indicates a single provider or calendar failed;
	// always recovered locally, never surfaced to callers on its own
	ErrorTypePartialSource ErrorType = "PARTIAL_SOURCE"

	// ErrorTypeExternal indicates an error from an external service
	ErrorTypeExternal ErrorType = "EXTERNAL"

	// ErrorTypeInternal indicates an internal error
	ErrorTypeInternal ErrorType = "INTERNAL"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error

	// Conflict details: the busy interval that blocked the operation.
	ConflictStart time.Time
	ConflictEnd   time.Time
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// IsType reports whether err is an AppError of the given type.
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewConflictError creates a conflict error identifying the busy interval
// that overlapped, so callers can present a better alternative.
func NewConflictError(message string, busyStart, busyEnd time.Time) *AppError {
	return &AppError{
		Type:          ErrorTypeConflict,
		Message:       message,
		ConflictStart: busyStart,
		ConflictEnd:   busyEnd,
	}
}

// NewAuthError creates a new credential error
func NewAuthError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeAuth,
		Message: message,
		Err:     err,
	}
}

// NewStorageError creates a new storage error
func NewStorageError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeStorage,
		Message: message,
		Err:     err,
	}
}

// NewPartialSourceError creates a recoverable per-source failure
func NewPartialSourceError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypePartialSource,
		Message: message,
		Err:     err,
	}
}

// NewExternalError creates a new external service error
func NewExternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeExternal,
		Message: message,
		Err:     err,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}
