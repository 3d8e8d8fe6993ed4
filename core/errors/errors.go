// Package errors provides standardized error types and helpers for ParashaDeck.
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
	// ErrUnsupported indicates an unsupported operation or format
	ErrUnsupported = errors.New("unsupported")
	// ErrMalformedRange indicates a range expression matched no supported grammar
	ErrMalformedRange = errors.New("malformed range")
	// ErrEmptyResult indicates a resolved range produced zero verses
	ErrEmptyResult = errors.New("empty result")
	// ErrMixedGrammar indicates a range list mixed flat and chapter-qualified forms
	ErrMixedGrammar = errors.New("mixed range grammar")
	// ErrUpstream indicates the remote text source failed or returned an error payload
	ErrUpstream = errors.New("upstream failure")
)

// NotFoundError represents a resource not found error with context
type NotFoundError struct {
	Resource string // Type of resource (e.g., "calendar item", "deck", "job")
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
	Operation string // Operation being performed (e.g., "read", "write", "fetch")
	Path      string // File path or URL involved
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
	Format  string // Format being parsed (e.g., "JSON", "TOML", "ODP")
	Path    string // File path or URL, if applicable
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

// MalformedRangeError reports a range expression that matched none of the
// supported grammars, or matched one but violated its ordering rules.
type MalformedRangeError struct {
	Expr   string // Expression as supplied by the caller
	Reason string // What was wrong with it
	Err    error  // Underlying parser error, if any
}

func (e *MalformedRangeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("malformed range %q: %s", e.Expr, e.Reason)
	}
	return fmt.Sprintf("malformed range %q", e.Expr)
}

func (e *MalformedRangeError) Unwrap() error {
	if e.Err != nil {
		return errors.Join(ErrMalformedRange, e.Err)
	}
	return ErrMalformedRange
}

// EmptyResultError reports a range that resolved to zero verses after all
// backfill attempts.
type EmptyResultError struct {
	Book  string
	Range string
}

func (e *EmptyResultError) Error() string {
	ref := strings.TrimSpace(e.Book + " " + e.Range)
	if ref == "" {
		return "no verses resolved"
	}
	return fmt.Sprintf("no verses resolved for %s", ref)
}

func (e *EmptyResultError) Unwrap() error {
	return ErrEmptyResult
}

// MixedGrammarError reports a multi-range request that combines legacy flat
// offsets with chapter-qualified expressions.
type MixedGrammarError struct {
	Flat      []string // Flat expressions found in the request
	Qualified []string // Chapter-qualified expressions found in the request
}

func (e *MixedGrammarError) Error() string {
	return fmt.Sprintf("cannot mix flat ranges (%s) with chapter-qualified ranges (%s)",
		strings.Join(e.Flat, ", "), strings.Join(e.Qualified, ", "))
}

func (e *MixedGrammarError) Unwrap() error {
	return ErrMixedGrammar
}

// UpstreamError represents a failure reported by (or while talking to) the
// remote text source.
type UpstreamError struct {
	URL        string // Request URL
	StatusCode int    // HTTP status, 0 when the request never completed
	Message    string // Upstream error text, if any
	Err        error  // Underlying transport error, if any
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("upstream error for %s: %s", e.URL, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("upstream error for %s: status %d", e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("upstream error for %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("upstream error for %s", e.URL)
}

func (e *UpstreamError) Unwrap() error {
	if e.Err != nil {
		return errors.Join(ErrUpstream, e.Err)
	}
	return ErrUpstream
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

// NewMalformedRange creates a MalformedRangeError
func NewMalformedRange(expr, reason string) *MalformedRangeError {
	return &MalformedRangeError{
		Expr:   expr,
		Reason: reason,
	}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
