package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no payment exists for the given intent id.
var ErrNotFound = errors.New("payment not found")

// ValidationError reports malformed or missing input on a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// InvalidStateError reports an operation that is not legal from the
// payment's current status.
type InvalidStateError struct {
	From PaymentStatus
	To   PaymentStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid payment state transition: %s -> %s", e.From, e.To)
}
