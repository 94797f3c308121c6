// Package errors provides structured error handling for pingscan operations.
// It defines error codes and error types carrying the target or configuration
// field that caused them. Probe failures are not errors: they are recorded as
// data in scan results.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeCanceled      ErrorCode = "CANCELED"
	CodeTargetInvalid ErrorCode = "TARGET_INVALID"
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeQueueFull     ErrorCode = "QUEUE_FULL"
	CodeUnauthorized  ErrorCode = "UNAUTHORIZED"
)

// ScanError represents an error raised while building or running a scan.
type ScanError struct {
	Code    ErrorCode
	Message string
	Target  string
	Cause   error
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Target != "" {
		msg = fmt.Sprintf("%s (target: %s)", msg, e.Target)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// NewScanError creates a new scan error with the specified code and message.
func NewScanError(code ErrorCode, message string) *ScanError {
	return &ScanError{Code: code, Message: message}
}

// NewScanErrorWithTarget creates a scan error for a specific target.
func NewScanErrorWithTarget(code ErrorCode, message, target string) *ScanError {
	return &ScanError{Code: code, Message: message, Target: target}
}

// WrapScanError wraps an existing error as a scan error.
func WrapScanError(code ErrorCode, message string, err error) *ScanError {
	return &ScanError{Code: code, Message: message, Cause: err}
}

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Value   interface{}
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Field != "" {
		msg = fmt.Sprintf("%s (field: %s)", msg, e.Field)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a new configuration error.
func NewConfigError(code ErrorCode, message string) *ConfigError {
	return &ConfigError{Code: code, Message: message}
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(code ErrorCode, message, field string, value interface{}) *ConfigError {
	return &ConfigError{Code: code, Message: message, Field: field, Value: value}
}

// WrapConfigError wraps an existing error as a configuration error.
func WrapConfigError(code ErrorCode, message string, err error) *ConfigError {
	return &ConfigError{Code: code, Message: message, Cause: err}
}

// GetCode extracts the error code from an error chain if it has one.
func GetCode(err error) ErrorCode {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Code
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return cfgErr.Code
	}
	return CodeUnknown
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}

// IsFatal reports whether an error should abort the command that produced it.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case CodeConfiguration, CodeValidation, CodeTargetInvalid:
		return true
	default:
		return false
	}
}

// ErrMissingProber is returned when a scan plan names a protocol that has no
// registered prober.
func ErrMissingProber(protocol string) *ConfigError {
	return NewConfigFieldError(CodeConfiguration,
		fmt.Sprintf("no prober registered for protocol %q", protocol), "services", protocol)
}

// ErrInvalidTarget creates an error for an unparsable host specification.
func ErrInvalidTarget(target string, cause error) *ScanError {
	return &ScanError{Code: CodeTargetInvalid, Message: "invalid target specification", Target: target, Cause: cause}
}

// ErrConfigInvalid creates an error for invalid configuration.
func ErrConfigInvalid(field string, value interface{}) *ConfigError {
	return NewConfigFieldError(CodeValidation, "invalid configuration value", field, value)
}

// ErrNotFound creates an error for an unknown scan identifier.
func ErrNotFound(id string) *ScanError {
	return NewScanErrorWithTarget(CodeNotFound, "scan not found", id)
}

// ErrScheduleNotFound creates an error for an unknown schedule name.
func ErrScheduleNotFound(name string) *ScanError {
	return NewScanErrorWithTarget(CodeNotFound, "schedule not found", name)
}

// ErrProfileNotFound creates an error for an unknown scan profile name.
func ErrProfileNotFound(name string) *ScanError {
	return NewScanErrorWithTarget(CodeNotFound, "profile not found", name)
}

// ErrUnauthorized creates an error for a request without a valid API key.
func ErrUnauthorized(message string) *ScanError {
	return NewScanError(CodeUnauthorized, message)
}
