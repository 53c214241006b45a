package domain

import "fmt"

// ValidationError reports malformed input. It is always surfaced to the
// caller and never retried internally.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Msg: msg}
}

// InvalidTransitionError reports an illegal delivery status change. Both the
// current and the requested status are named.
type InvalidTransitionError struct {
	From DeliveryStatus
	To   DeliveryStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

// DependencyUnavailableError reports that a backing store could not be
// reached. The dependency name is for operators; handlers must not leak it
// to end users.
type DependencyUnavailableError struct {
	Dependency string
	Err        error
}

func (e *DependencyUnavailableError) Error() string {
	return fmt.Sprintf("dependency %s unavailable: %v", e.Dependency, e.Err)
}

func (e *DependencyUnavailableError) Unwrap() error { return e.Err }
