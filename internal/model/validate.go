package model

import (
	"fmt"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ValidateEvent checks that an event decoded from the API has the shape the
// rest of the pipeline relies on. It returns a *ValidationError or nil.
func ValidateEvent(e *Event) error {
	var ve ValidationError

	if e.ID <= 0 {
		ve.Errors = append(ve.Errors, FieldError{Field: "id", Message: "must be positive"})
	}
	if strings.TrimSpace(string(e.Action)) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "action", Message: "is required"})
	}
	if !e.Status.IsValid() {
		ve.Errors = append(ve.Errors, FieldError{Field: "status", Message: fmt.Sprintf("unknown status %q", e.Status)})
	}
	if e.Created.IsZero() {
		ve.Errors = append(ve.Errors, FieldError{Field: "created", Message: "is required"})
	}
	if pc := e.PercentComplete; pc != nil && (*pc < 0 || *pc > 100) {
		ve.Errors = append(ve.Errors, FieldError{Field: "percent_complete", Message: "must be between 0 and 100"})
	}
	if e.Entity != nil && e.Entity.Type == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "entity.type", Message: "is required when entity is set"})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
