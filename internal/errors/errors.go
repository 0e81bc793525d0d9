package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeConfiguration represents configuration errors (unknown provider,
	// missing token). Fatal, never retried.
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeValidation represents validation errors (malformed plan, spec
	// failing schema validation). Fatal, reported with the specific violation.
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeTransient represents transient I/O errors (SSH connect failure,
	// provider API failure, timeouts). Retryable by the caller.
	ErrorTypeTransient ErrorType = "transient"
	// ErrorTypeExternal represents non-zero exits from external tools
	// (terraform, remote commands).
	ErrorTypeExternal ErrorType = "external"
	// ErrorTypeInternal represents internal errors
	ErrorTypeInternal ErrorType = "internal"
)

// Error is a structured error carrying the pipeline error taxonomy
type Error struct {
	Type      ErrorType              `json:"type"`
	Message   string                 `json:"message"`
	Cause     error                  `json:"-"`
	ExitCode  int                    `json:"exit_code,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a key/value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new Error of the given type
func New(errorType ErrorType, message string) *Error {
	return &Error{
		Type:      errorType,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Wrap wraps an existing error with a type and message
func Wrap(err error, errorType ErrorType, message string) *Error {
	return &Error{
		Type:      errorType,
		Message:   message,
		Cause:     err,
		Timestamp: time.Now(),
	}
}

// NewConfiguration creates a configuration error
func NewConfiguration(format string, args ...interface{}) *Error {
	return New(ErrorTypeConfiguration, fmt.Sprintf(format, args...))
}

// NewValidation creates a validation error
func NewValidation(format string, args ...interface{}) *Error {
	return New(ErrorTypeValidation, fmt.Sprintf(format, args...))
}

// NewTransient creates a transient I/O error
func NewTransient(format string, args ...interface{}) *Error {
	return New(ErrorTypeTransient, fmt.Sprintf(format, args...))
}

// NewExternal creates an external-tool error carrying the tool's exit code
func NewExternal(exitCode int, format string, args ...interface{}) *Error {
	e := New(ErrorTypeExternal, fmt.Sprintf(format, args...))
	e.ExitCode = exitCode
	return e
}

func isType(err error, t ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == t
	}
	return false
}

// IsConfiguration reports whether err is a configuration error
func IsConfiguration(err error) bool { return isType(err, ErrorTypeConfiguration) }

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool { return isType(err, ErrorTypeValidation) }

// IsTransient reports whether err is a transient I/O error
func IsTransient(err error) bool { return isType(err, ErrorTypeTransient) }

// IsExternal reports whether err is an external-tool error
func IsExternal(err error) bool { return isType(err, ErrorTypeExternal) }

// ExitCode extracts the external tool exit code from err, or fallback if none
func ExitCode(err error, fallback int) int {
	var e *Error
	if errors.As(err, &e) && e.ExitCode != 0 {
		return e.ExitCode
	}
	return fallback
}

// Mask replaces every occurrence of the given secrets in s with "***".
// Command strings that embed tokens must pass through here before being
// surfaced in errors or logs.
func Mask(s string, secrets ...string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, "***")
	}
	return s
}
