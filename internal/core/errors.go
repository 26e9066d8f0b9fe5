package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Invalid input
	ErrCatSymtab     ErrorCategory = "symtab"     // Symbol table build/query failure
	ErrCatResolution ErrorCategory = "resolution" // Address-to-symbol resolution failure
	ErrCatCapture    ErrorCategory = "capture"    // Stack capture failure
	ErrCatCodec      ErrorCategory = "codec"      // Wire encode/decode failure
	ErrCatStorage    ErrorCategory = "storage"    // Report persistence failure
	ErrCatExec       ErrorCategory = "exec"       // External tool invocation failure
	ErrCatNotFound   ErrorCategory = "not_found"  // Resource not found
	ErrCatFatal      ErrorCategory = "fatal"      // Termination pipeline condition
	ErrCatInternal   ErrorCategory = "internal"   // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrSymtab creates a symbol-table error. Symbol table failures are sticky:
// once the table fails to build it stays failed, so these never retry.
func ErrSymtab(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatSymtab,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrResolution creates a resolution error. Resolution degrades per-frame
// rather than failing a whole capture, so these mark the frames a caller may
// want to re-resolve once symbols become available.
func ErrResolution(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatResolution,
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// ErrCapture creates a capture error.
func ErrCapture(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatCapture,
		Code:      "CAPTURE_FAILED",
		Message:   message,
		Retryable: false,
	}
}

// ErrCodec creates a wire codec error.
func ErrCodec(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatCodec,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrStorage creates a report persistence error.
func ErrStorage(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatStorage,
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// ErrExec creates an external tool invocation error.
func ErrExec(tool, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatExec,
		Code:      "TOOL_FAILED",
		Message:   fmt.Sprintf("%s: %s", tool, message),
		Retryable: false,
		Details: map[string]interface{}{
			"tool": tool,
		},
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      "NOT_FOUND",
		Message:   fmt.Sprintf("%s not found: %s", resource, id),
		Retryable: false,
	}
}

// ErrFatal creates a termination pipeline error.
func ErrFatal(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatFatal,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// Predefined error codes
const (
	CodeSymtabBuildFailed  = "SYMTAB_BUILD_FAILED"
	CodeSymtabToolMissing  = "SYMTAB_TOOL_MISSING"
	CodeSymtabEmpty        = "SYMTAB_EMPTY"
	CodeAddressUnresolved  = "ADDRESS_UNRESOLVED"
	CodeLineInfoMissing    = "LINE_INFO_MISSING"
	CodeReportNotFound     = "REPORT_NOT_FOUND"
	CodeStoreCorrupted     = "STORE_CORRUPTED"
	CodeTerminateReentered = "TERMINATE_REENTERED"

	// Validation error codes
	CodeInvalidConfig  = "INVALID_CONFIG"
	CodeInvalidAddress = "INVALID_ADDRESS"
	CodeInvalidScope   = "INVALID_SCOPE"
	CodeInvalidDepth   = "INVALID_DEPTH"

	// Codec error codes
	CodeTruncatedPayload   = "TRUNCATED_PAYLOAD"
	CodeUnsupportedVersion = "UNSUPPORTED_VERSION"
	CodeUnknownPayloadKind = "UNKNOWN_PAYLOAD_KIND"
)
