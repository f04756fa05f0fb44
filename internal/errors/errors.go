package errors

import (
	"fmt"
)

// QuarryError is the structured error type for quarry.
// It provides rich context for error handling, logging, and user presentation.
type QuarryError struct {
	// Code is the unique error code (e.g., "ERR_403_INVALID_QUERY").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *QuarryError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *QuarryError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with QuarryError.
func (e *QuarryError) Is(target error) bool {
	if t, ok := target.(*QuarryError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *QuarryError) WithDetail(key, value string) *QuarryError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *QuarryError) WithSuggestion(suggestion string) *QuarryError {
	e.Suggestion = suggestion
	return e
}

// New creates a new QuarryError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string) *QuarryError {
	return &QuarryError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a QuarryError wrapping an existing error with context.
func Wrap(err error, code string, message string) *QuarryError {
	if err == nil {
		return nil
	}
	qe := New(code, message)
	qe.Cause = err
	return qe
}

// ConfigError creates a configuration-related error.
func ConfigError(message string) *QuarryError {
	return New(ErrCodeConfigInvalid, message)
}

// NetworkError creates a network-related error.
// Network errors are typically retryable.
func NetworkError(message string) *QuarryError {
	return New(ErrCodeNetworkTimeout, message)
}

// ValidationError creates a validation-related error.
func ValidationError(message string) *QuarryError {
	return New(ErrCodeInvalidInput, message)
}

// InternalError creates an internal error.
func InternalError(message string) *QuarryError {
	return New(ErrCodeInternal, message)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a QuarryError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if qe, ok := err.(*QuarryError); ok {
		return qe.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if qe, ok := err.(*QuarryError); ok {
		return qe.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a QuarryError.
// Returns empty string if not a QuarryError.
func GetCode(err error) string {
	if qe, ok := err.(*QuarryError); ok {
		return qe.Code
	}
	return ""
}

// GetCategory extracts the category from a QuarryError.
// Returns empty string if not a QuarryError.
func GetCategory(err error) Category {
	if qe, ok := err.(*QuarryError); ok {
		return qe.Category
	}
	return ""
}
