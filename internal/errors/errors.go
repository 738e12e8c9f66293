// Package errors provides a lightweight structured error type (PipelineError)
// for category-based classification of release-pipeline failures in the CLI
// and trigger daemon.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory represents the category of a pipeline error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// Credential provisioning errors
	CategorySecrets ErrorCategory = "secrets"

	// Step execution errors
	CategoryExec    ErrorCategory = "exec"
	CategoryTimeout ErrorCategory = "timeout"

	// Post-stage artifact collection errors
	CategoryCapture ErrorCategory = "capture"

	// Concurrency gate errors
	CategoryGate ErrorCategory = "gate"

	// Runtime and infrastructure errors
	CategoryCancelled ErrorCategory = "cancelled"
	CategoryDaemon    ErrorCategory = "daemon"
	CategoryInternal  ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops the owning stage
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Recorded, pipeline continues
)

// ErrorCode identifies a specific failure within a category. Codes are the
// stable names reported to callers and asserted in tests; messages are prose.
type ErrorCode string

const (
	CodeMissingCredential   ErrorCode = "MissingCredential"
	CodeDuplicateCredential ErrorCode = "DuplicateCredential"
	CodeStepExecution       ErrorCode = "StepExecutionError"
	CodeTimeout             ErrorCode = "Timeout"
	CodeCapture             ErrorCode = "CaptureError"
	CodeInvalidLease        ErrorCode = "InvalidLease"
	CodeLeaseTimeout        ErrorCode = "LeaseTimeout"
	CodeCancelled           ErrorCode = "Cancelled"
)

// PipelineError is a structured error with category, severity, and context
type PipelineError struct {
	Category ErrorCategory `json:"category"`
	Code     ErrorCode     `json:"code,omitempty"`
	Severity ErrorSeverity `json:"severity"`
	Message  string        `json:"message"`
	Cause    error         `json:"cause,omitempty"`
	Context  ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for PipelineError
type ContextFields map[string]any

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *PipelineError) WithContext(key string, value any) *PipelineError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// WithCode tags the error with a taxonomy code
func (e *PipelineError) WithCode(code ErrorCode) *PipelineError {
	e.Code = code
	return e
}

// New creates a new PipelineError
func New(category ErrorCategory, severity ErrorSeverity, message string) *PipelineError {
	return &PipelineError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new PipelineError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *PipelineError {
	return &PipelineError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Category == category
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal
// if the chain holds no PipelineError
func GetCategory(err error) ErrorCategory {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return CategoryInternal
}

// IsCode checks if an error carries a specific taxonomy code
func IsCode(err error, code ErrorCode) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}
