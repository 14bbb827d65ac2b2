package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Schema error codes.
const (
	ErrCodeInvalidDefinition = "INVALID_DEFINITION"
	ErrCodeInvalidExpression = "INVALID_EXPRESSION"
	ErrCodeDuplicateName     = "DUPLICATE_NAME"
	ErrCodeInvalidDefault    = "INVALID_DEFAULT"
	ErrCodeDanglingReference = "DANGLING_REFERENCE"
	ErrCodeDependencyCycle   = "DEPENDENCY_CYCLE"
)

// SchemaError is a fatal defect in an option definition. It is raised before
// any resolution takes place and always names the offending path.
// nolint:revive // SchemaError reads better than schema.Error at call sites
type SchemaError struct {
	// Code classifies the defect.
	Code string `json:"code"`

	// Message is the human-readable description.
	Message string `json:"message"`

	// Path is the option path the defect was found at.
	Path string `json:"path,omitempty"`

	// Text is the malformed source text, if any.
	Text string `json:"text,omitempty"`

	// Cycle is the full dependency loop for DEPENDENCY_CYCLE errors,
	// starting and ending at the same path.
	Cycle []string `json:"cycle,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	var sb strings.Builder
	sb.WriteString("schema error")
	if e.Path != "" {
		fmt.Fprintf(&sb, " at %s", e.Path)
	}
	fmt.Fprintf(&sb, ": %s", e.Message)
	if len(e.Cycle) > 0 {
		fmt.Fprintf(&sb, ": %s", strings.Join(e.Cycle, " -> "))
	}
	if e.Text != "" {
		fmt.Fprintf(&sb, " (in %q)", e.Text)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

// Unwrap returns the underlying error.
func (e *SchemaError) Unwrap() error {
	return e.Err
}

// Is matches another *SchemaError with the same code, so callers can test
// errors.Is(err, &SchemaError{Code: ErrCodeDependencyCycle}).
func (e *SchemaError) Is(target error) bool {
	t, ok := target.(*SchemaError)
	if !ok {
		return false
	}
	return t.Code == "" || e.Code == t.Code
}

// NewSchemaError creates a schema error with the given code.
func NewSchemaError(code, message string, err error) *SchemaError {
	return &SchemaError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithPath sets the offending option path.
func (e *SchemaError) WithPath(path string) *SchemaError {
	e.Path = path
	return e
}

// WithText sets the offending source text.
func (e *SchemaError) WithText(text string) *SchemaError {
	e.Text = text
	return e
}

// WithCycle records the dependency loop.
func (e *SchemaError) WithCycle(cycle []string) *SchemaError {
	e.Cycle = cycle
	return e
}

// IsSchemaError reports whether err is, or wraps, a *SchemaError.
func IsSchemaError(err error) bool {
	var e *SchemaError
	return errors.As(err, &e)
}

// CodeOf returns the code of the *SchemaError in err's chain, or "".
func CodeOf(err error) string {
	var e *SchemaError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
