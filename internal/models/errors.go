package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrSlotConflict         = errors.New("time slot is no longer available")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrTerminalState        = errors.New("status is terminal")
	ErrPreconditionFailed   = errors.New("precondition failed")
	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrReferenceUnavailable = errors.New("reference data unavailable")
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every rejected field of a request.
type ValidationError struct {
	Fields []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

// OrNil returns nil when no field was rejected, so callers can return it directly.
func (e *ValidationError) OrNil() error {
	if e == nil || !e.HasErrors() {
		return nil
	}
	return e
}

func NewValidationError(field, message string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, message)
	return v
}

func notFound(kind string, id any) error {
	return fmt.Errorf("%w: %s %v", ErrNotFound, kind, id)
}
