package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can branch on the class of
// problem instead of string-matching messages.
type ErrorKind int

const (
	KindNone        ErrorKind = iota // No error
	KindExtraction                   // Could not read element attributes or context
	KindParse                        // Malformed selector, page source or cache file
	KindNotFound                     // Element or cache entry does not exist
	KindValidation                   // Candidate failed verification
	KindPersistence                  // Cache load/save/backup failure
	KindTimeout                      // Budget exhausted
)

// String returns the string representation of ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindExtraction:
		return "extraction"
	case KindParse:
		return "parse"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindPersistence:
		return "persistence"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is a structured error with a kind, machine-readable code and
// optional context details.
type Error struct {
	Kind    ErrorKind
	Code    string                 // Machine-readable code: element_not_found, schema_mismatch, etc.
	Message string                 // Human-readable message
	Details map[string]interface{} // Additional context
	Cause   error                  // Underlying error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithCause returns a copy of the error with the given cause
func (e *Error) WithCause(cause error) *Error {
	return &Error{
		Kind:    e.Kind,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *Error) WithMessage(msg string) *Error {
	return &Error{
		Kind:    e.Kind,
		Code:    e.Code,
		Message: msg,
		Details: e.Details,
		Cause:   e.Cause,
	}
}

// WithDetails returns a copy of the error with additional details
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	merged := make(map[string]interface{})
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &Error{
		Kind:    e.Kind,
		Code:    e.Code,
		Message: e.Message,
		Details: merged,
		Cause:   e.Cause,
	}
}

// KindOf extracts the ErrorKind from err, or KindNone for nil and
// untyped errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNone
}

// Predefined errors
var (
	ErrElementNotFound = &Error{
		Kind:    KindNotFound,
		Code:    "element_not_found",
		Message: "element not found",
	}
	ErrEntryNotFound = &Error{
		Kind:    KindNotFound,
		Code:    "cache_entry_not_found",
		Message: "cache entry not found",
	}
	ErrStaleNode = &Error{
		Kind:    KindExtraction,
		Code:    "stale_node",
		Message: "node is no longer part of the element tree",
	}
	ErrAttributeRead = &Error{
		Kind:    KindExtraction,
		Code:    "attribute_read_failed",
		Message: "could not read element attributes",
	}
	ErrInvalidSelector = &Error{
		Kind:    KindParse,
		Code:    "invalid_selector",
		Message: "selector document is malformed",
	}
	ErrInvalidPageSource = &Error{
		Kind:    KindParse,
		Code:    "invalid_page_source",
		Message: "page source is malformed",
	}
	ErrSchemaMismatch = &Error{
		Kind:    KindPersistence,
		Code:    "schema_mismatch",
		Message: "cache file schema version is not supported",
	}
	ErrCacheCorrupt = &Error{
		Kind:    KindPersistence,
		Code:    "cache_corrupt",
		Message: "cache file could not be decoded",
	}
	ErrValidationFailed = &Error{
		Kind:    KindValidation,
		Code:    "validation_failed",
		Message: "candidate did not match the expected element",
	}
	ErrNotPredictable = &Error{
		Kind:    KindValidation,
		Code:    "pattern_not_predictable",
		Message: "pattern does not support prediction",
	}
	ErrTimeout = &Error{
		Kind:    KindTimeout,
		Code:    "timeout",
		Message: "operation timed out",
	}
)

// NewError creates a new Error with the given parameters
func NewError(kind ErrorKind, code, message string) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}
