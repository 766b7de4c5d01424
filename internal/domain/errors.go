// Package domain defines core types, interfaces, and errors for the table manager.
package domain

import "fmt"

// NotFoundError indicates a resource was not found. Tables owned by another
// principal are reported with this error too.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate table or column name).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// UnauthorizedError indicates a missing or invalid identity token.
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string { return e.Message }

// SourceUnavailableError indicates the external row source could not be
// reached or returned a payload that could not be interpreted.
// Permanent marks failures that retrying cannot fix (bad credentials,
// unknown spreadsheet, malformed payload).
type SourceUnavailableError struct {
	Message   string
	Err       error
	Permanent bool
}

func (e *SourceUnavailableError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrUnauthorized creates an UnauthorizedError with a formatted message.
func ErrUnauthorized(format string, args ...interface{}) *UnauthorizedError {
	return &UnauthorizedError{Message: fmt.Sprintf(format, args...)}
}

// ErrSourceUnavailable wraps err as a SourceUnavailableError.
func ErrSourceUnavailable(err error, format string, args ...interface{}) *SourceUnavailableError {
	return &SourceUnavailableError{Message: fmt.Sprintf(format, args...), Err: err}
}
