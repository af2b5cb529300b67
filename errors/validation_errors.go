// errors/validation_errors.go
package errors

import (
	"fmt"
	"strings"
)

// FieldError describes one rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// ValidationError aggregates every field failure of one validation call.
type ValidationError struct {
	Resource  string
	Operation string
	Errors    []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return fmt.Sprintf("validation failed for %s %s: %s", e.Resource, e.Operation, strings.Join(msgs, "; "))
}

// Is lets errors.Is(err, &SembleError{Category: CategoryValidation}) match.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*SembleError)
	if !ok {
		return false
	}
	return t.Category == CategoryValidation && (t.Code == "" || t.Code == CodeValidationFailed)
}

// Fields returns the names of the rejected fields in order.
func (e *ValidationError) Fields() []string {
	fields := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		fields = append(fields, fe.Field)
	}
	return fields
}

// PermissionError is returned when a permission check denies an operation.
type PermissionError struct {
	Resource         string
	Operation        string
	UserID           string
	RestrictedFields []string
	Reason           string
}

func (e *PermissionError) Error() string {
	if len(e.RestrictedFields) > 0 {
		return fmt.Sprintf("permission denied for %s on %s: %s (fields: %s)",
			e.Operation, e.Resource, e.Reason, strings.Join(e.RestrictedFields, ", "))
	}
	return fmt.Sprintf("permission denied for %s on %s: %s", e.Operation, e.Resource, e.Reason)
}

func (e *PermissionError) Is(target error) bool {
	t, ok := target.(*SembleError)
	if !ok {
		return false
	}
	return t.Category == CategoryPermission
}
