package models

import (
	"errors"
	"fmt"
	"strings"
)

// Violation rules reported by the validator.
const (
	RuleMissing     = "missing"
	RuleType        = "type"
	RuleEmpty       = "empty"
	RuleDate        = "date"
	RuleURL         = "url"
	RuleUndecodable = "undecodable"
)

// Sentinel errors for the processing taxonomy.
var (
	ErrSchemaViolation = errors.New("schema violation")
	ErrMapping         = errors.New("mapping error")
	ErrIO              = errors.New("io failure")
)

// Violation is a single broken rule for one field.
type Violation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// SchemaViolation lists every rule a record broke. The record is skipped.
type SchemaViolation struct {
	Source     string      `json:"source"`
	Violations []Violation `json:"violations"`
}

func (e *SchemaViolation) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Field, v.Message))
	}

	return fmt.Sprintf("%s in source %q: %s", ErrSchemaViolation, e.Source, strings.Join(parts, "; "))
}

// Is makes errors.Is(err, ErrSchemaViolation) match.
func (e *SchemaViolation) Is(target error) bool {
	return target == ErrSchemaViolation
}

// HasField reports whether any violation cites field.
func (e *SchemaViolation) HasField(field string) bool {
	for _, v := range e.Violations {
		if v.Field == field {
			return true
		}
	}

	return false
}

// MappingError means a source configuration cannot produce a canonical field.
// It aborts processing of that source only.
type MappingError struct {
	Source string
	Field  string
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("%s: source %q field %q: %s", ErrMapping, e.Source, e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrMapping) match.
func (e *MappingError) Is(target error) bool {
	return target == ErrMapping
}

// IOFailure wraps a read or write failure on one file.
type IOFailure struct {
	Op   string
	Path string
	Err  error
}

func (e *IOFailure) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrIO, e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *IOFailure) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrIO) match.
func (e *IOFailure) Is(target error) bool {
	return target == ErrIO
}
