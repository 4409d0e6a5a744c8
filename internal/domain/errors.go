package domain

import "fmt"

// InvalidStateError: a transition was attempted from a state that does not permit it.
type InvalidStateError struct {
	Action string
	From   string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s from state %s", e.Action, e.From)
}

// PreconditionFailedError: inputs are well-formed but a required prior condition is unmet
// (documents not all verified, GPS/OTP not both passed, OTP attempts exhausted).
type PreconditionFailedError struct {
	Reason string
}

func (e *PreconditionFailedError) Error() string { return e.Reason }

// ValidationError: malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NotFoundError: a referenced id does not exist.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string { return e.Resource + " not found" }

// ConcurrencyConflictError: optimistic version check failed; the caller must refetch and retry.
type ConcurrencyConflictError struct {
	Resource string
}

func (e *ConcurrencyConflictError) Error() string {
	return "concurrent update on " + e.Resource + ", refetch and retry"
}
