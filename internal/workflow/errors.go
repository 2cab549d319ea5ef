package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError rejects a malformed mission payload before any write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid mission: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ValidationErrors collects several field failures.
type ValidationErrors struct {
	Errors []error
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d validation errors: %s", len(e.Errors), strings.Join(msgs, "; "))
}

func (e *ValidationErrors) Add(field, reason string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Reason: reason})
}

func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Err returns nil when nothing was collected.
func (e *ValidationErrors) Err() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

// IsValidation reports whether err is (or wraps) a validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	var ves *ValidationErrors
	return errors.As(err, &ve) || errors.As(err, &ves)
}
