// Package errors provides structured error handling for nmapdeck operations.
// It defines error codes for the scan pipeline (input, dependency, execution
// and parse failures) and typed errors that carry those codes with context.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeCanceled      ErrorCode = "CANCELED"
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeRateLimited   ErrorCode = "RATE_LIMITED"

	// Input errors: caller mistakes, reported before nmap is touched.
	CodeMissingTargets ErrorCode = "MISSING_TARGETS"
	CodeInvalidTargets ErrorCode = "INVALID_TARGETS"

	// Dependency errors.
	CodeToolNotInstalled ErrorCode = "TOOL_NOT_INSTALLED"

	// Execution errors.
	CodeToolError          ErrorCode = "TOOL_ERROR"
	CodeProcessError       ErrorCode = "PROCESS_ERROR"
	CodeNoStructuredOutput ErrorCode = "NO_STRUCTURED_OUTPUT"

	// Parse errors.
	CodeMalformedOutput ErrorCode = "MALFORMED_OUTPUT"

	// Storage errors.
	CodeStorage       ErrorCode = "STORAGE"
	CodeFileNotFound  ErrorCode = "FILE_NOT_FOUND"
	CodeFileWrite     ErrorCode = "FILE_WRITE"
	CodeStoreConnect  ErrorCode = "STORE_CONNECTION"
	CodeStoreQuery    ErrorCode = "STORE_QUERY"
	CodeStoreTimedOut ErrorCode = "STORE_TIMEOUT"
)

// ScanError represents an error that occurred somewhere in the scan pipeline.
type ScanError struct {
	Code     ErrorCode
	Message  string
	Target   string
	ExitCode int
	Cause    error
	Context  map[string]interface{}
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("[%s] %s (target: %s)", e.Code, e.Message, e.Target)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *ScanError) WithContext(key string, value interface{}) *ScanError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithExitCode records the exit status of the process that produced the error.
func (e *ScanError) WithExitCode(code int) *ScanError {
	e.ExitCode = code
	return e
}

// NewScanError creates a new scan error with the specified code and message.
func NewScanError(code ErrorCode, message string) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// NewScanErrorWithTarget creates a scan error for a specific target.
func NewScanErrorWithTarget(code ErrorCode, message, target string) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Target:  target,
		Context: make(map[string]interface{}),
	}
}

// WrapScanError wraps an existing error as a scan error.
func WrapScanError(code ErrorCode, message string, err error) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

// StoreError represents history store failures.
type StoreError struct {
	Code      ErrorCode
	Message   string
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("[%s] %s (operation: %s)", e.Code, e.Message, e.Operation)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// WrapStoreError wraps an existing error as a store error.
func WrapStoreError(code ErrorCode, operation string, err error) *StoreError {
	return &StoreError{
		Code:      code,
		Message:   "History store operation failed",
		Operation: operation,
		Cause:     err,
	}
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
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(code ErrorCode, message, field string, value interface{}) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Field:   field,
		Value:   value,
	}
}

// IsCode checks if an error, or any error it wraps, has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}

// GetCode extracts the error code from an error chain if it has one.
func GetCode(err error) ErrorCode {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Code
	}
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Code
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return cfgErr.Code
	}
	return CodeUnknown
}

// IsInputError reports whether err is a caller mistake rather than an
// environment or execution failure.
func IsInputError(err error) bool {
	switch GetCode(err) {
	case CodeMissingTargets, CodeInvalidTargets, CodeValidation:
		return true
	default:
		return false
	}
}

// Common error creation functions

// ErrMissingTargets is returned when the target text is empty.
func ErrMissingTargets() *ScanError {
	return NewScanError(CodeMissingTargets, "No targets provided")
}

// ErrInvalidTargets is returned when no token in the target text survived validation.
func ErrInvalidTargets(input string) *ScanError {
	return NewScanErrorWithTarget(CodeInvalidTargets, "No valid targets found", input)
}

// ErrToolNotInstalled is returned when the scanner binary cannot be resolved.
func ErrToolNotInstalled(binary string, err error) *ScanError {
	e := WrapScanError(CodeToolNotInstalled,
		fmt.Sprintf("%s not found in PATH. Please install nmap.", binary), err)
	return e.WithContext("binary", binary)
}

// ErrMalformedOutput is returned when scanner output is not well-formed XML.
func ErrMalformedOutput(err error) *ScanError {
	msg := "malformed scan output"
	if err != nil {
		msg = err.Error()
	}
	return WrapScanError(CodeMalformedOutput, msg, err)
}

// ErrConfigInvalid creates an error for invalid configuration.
func ErrConfigInvalid(field string, value interface{}) *ConfigError {
	return NewConfigFieldError(CodeValidation, "Invalid configuration value", field, value)
}
