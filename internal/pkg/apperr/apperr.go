// Package apperr holds the error kinds shared by every service package.
// Services declare their own sentinels on top of these so handlers can map
// any of them onto an HTTP status with errors.Is.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrInvalid      = errors.New("invalid input")
)

// NotFound returns a sentinel like "contact not found" that matches ErrNotFound.
func NotFound(what string) error { return fmt.Errorf("%s %w", what, ErrNotFound) }

// Invalid returns a sentinel that matches ErrInvalid.
func Invalid(msg string) error { return fmt.Errorf("%w: %s", ErrInvalid, msg) }

// Conflict returns a sentinel that matches ErrConflict.
func Conflict(msg string) error { return fmt.Errorf("%w: %s", ErrConflict, msg) }

// ValidationError collects per-field problems.
type ValidationError struct {
	Fields map[string]string
}

// NewValidation starts an empty ValidationError.
func NewValidation() *ValidationError {
	return &ValidationError{Fields: map[string]string{}}
}

// Add records a problem for field. The first message per field wins.
func (v *ValidationError) Add(field, msg string) {
	if _, ok := v.Fields[field]; !ok {
		v.Fields[field] = msg
	}
}

// Err returns v when it holds problems, nil otherwise.
func (v *ValidationError) Err() error {
	if v == nil || len(v.Fields) == 0 {
		return nil
	}
	return v
}

func (v *ValidationError) Error() string {
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + v.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is(err, ErrInvalid) match validation failures.
func (v *ValidationError) Unwrap() error { return ErrInvalid }
