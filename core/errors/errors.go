// Package errors provides standardized error types and helpers for versemap.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common cases
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrInternal indicates an internal system error
	ErrInternal = errors.New("internal error")
	// ErrUnsupported indicates an unsupported operation or format
	ErrUnsupported = errors.New("unsupported")
	// ErrNoMappingPath indicates no compiled table exists for a tradition pair
	ErrNoMappingPath = errors.New("no mapping path")
)

// Causes of row-local corpus failures. All of them unwrap to ErrInvalidInput.
var (
	ErrMalformedRow      = fmt.Errorf("malformed row: %w", ErrInvalidInput)
	ErrUnknownTradition  = fmt.Errorf("unknown tradition: %w", ErrInvalidInput)
	ErrUnknownRuleKind   = fmt.Errorf("unknown rule kind: %w", ErrInvalidInput)
	ErrUnknownBook       = fmt.Errorf("unknown book: %w", ErrInvalidInput)
	ErrInvalidNumber     = fmt.Errorf("invalid number: %w", ErrInvalidInput)
	ErrRangeOrder        = fmt.Errorf("range end precedes start: %w", ErrInvalidInput)
	ErrVerseZero         = fmt.Errorf("verse 0 not used by tradition: %w", ErrInvalidInput)
	ErrCardinality       = fmt.Errorf("rule kind does not match range cardinality: %w", ErrInvalidInput)
	ErrUnresolvedOverlap = fmt.Errorf("overlap cannot be resolved: %w", ErrInvalidInput)
)

// NotFoundError represents a resource not found error with context
type NotFoundError struct {
	Resource string // Type of resource (e.g., "table", "book")
	ID       string // Identifier of the resource
	Err      error  // Underlying error, if any
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNotFound
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string // Field name that failed validation
	Value   string // Value that failed validation (may be redacted)
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// IOError represents an I/O operation error with context
type IOError struct {
	Operation string // Operation being performed (e.g., "read", "write", "open")
	Path      string // File/resource path involved
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// ParseError represents a parsing or deserialization error
type ParseError struct {
	Format  string // Format being parsed (e.g., "YAML", "table")
	Path    string // File path, if applicable
	Message string // Error details
	Err     error  // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to parse %s at %s: %s", e.Format, e.Path, e.Message)
	}
	return fmt.Sprintf("failed to parse %s: %s", e.Format, e.Message)
}

func (e *ParseError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// UnsupportedError represents an unsupported feature or format
type UnsupportedError struct {
	Feature string // Feature or format that is unsupported
	Reason  string // Why it's not supported
	Err     error  // Underlying error, if any
}

func (e *UnsupportedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported %s: %s", e.Feature, e.Reason)
	}
	return fmt.Sprintf("unsupported %s", e.Feature)
}

func (e *UnsupportedError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrUnsupported
}

// RowError is a row-local corpus failure. The row is skipped and parsing
// continues.
type RowError struct {
	Row    int    // 1-based line number of the logical row
	Column string // Column name, empty when the whole row is at fault
	Raw    string // Raw row text
	Err    error  // Cause
}

func (e *RowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("row %d, column %s: %v", e.Row, e.Column, e.Err)
	}
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// ConsistencyError reports a rule the normalizer refused to compile.
type ConsistencyError struct {
	Row    int    // Corpus row of the offending rule
	Rule   string // Rule description
	Reason string // Why it was excluded
	Err    error  // Cause
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("rule at row %d (%s): %s", e.Row, e.Rule, e.Reason)
}

func (e *ConsistencyError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// IntegrityError means a compiled table still has overlapping entries. It is
// an invariant violation: the table for Pair is not published.
type IntegrityError struct {
	Pair      string   // Tradition pair, e.g. "Masoretic->Vulgate"
	Conflicts []string // One line per overlapping entry pair
}

func (e *IntegrityError) Error() string {
	if len(e.Conflicts) == 0 {
		return fmt.Sprintf("table %s failed integrity check", e.Pair)
	}
	return fmt.Sprintf("table %s has %d conflict(s): %s",
		e.Pair, len(e.Conflicts), strings.Join(e.Conflicts, "; "))
}

func (e *IntegrityError) Unwrap() error {
	return ErrInternal
}

// NoMappingPathError is returned when no table was compiled for a pair.
type NoMappingPathError struct {
	From string
	To   string
}

func (e *NoMappingPathError) Error() string {
	return fmt.Sprintf("no mapping path from %s to %s", e.From, e.To)
}

func (e *NoMappingPathError) Unwrap() error {
	return ErrNoMappingPath
}

// Helper functions for creating common errors

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// NewValidation creates a ValidationError
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewIO creates an IOError
func NewIO(operation, path string, err error) *IOError {
	return &IOError{
		Operation: operation,
		Path:      path,
		Err:       err,
	}
}

// NewParse creates a ParseError
func NewParse(format, path, message string) *ParseError {
	return &ParseError{
		Format:  format,
		Path:    path,
		Message: message,
	}
}

// NewUnsupported creates an UnsupportedError
func NewUnsupported(feature, reason string) *UnsupportedError {
	return &UnsupportedError{
		Feature: feature,
		Reason:  reason,
	}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
