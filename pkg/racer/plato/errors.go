package plato

import "fmt"

// FieldError names the offending configuration field, matching the
// "pointer to offending field" policy of the error handling design.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("plato: field %q: %s", e.Field, e.Reason)
}

func fieldError(field, reason string) error {
	return &FieldError{Field: field, Reason: reason}
}
