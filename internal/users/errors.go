package users

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gymflow/gymflow/internal/platform/httpx"
)

var (
	// ErrNotFound is returned when no user has the requested id.
	ErrNotFound = fmt.Errorf("user %w", httpx.ErrNotFound)
	// ErrValidation marks input that fails the user schema.
	ErrValidation = httpx.ErrValidation
)

// ValidationError reports schema violations keyed by JSON field name.
type ValidationError struct {
	Fields map[string]string `json:"errors"`
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// FieldErrors exposes the per-field messages to the HTTP layer.
func (e *ValidationError) FieldErrors() map[string]string {
	if e == nil {
		return nil
	}
	return e.Fields
}
