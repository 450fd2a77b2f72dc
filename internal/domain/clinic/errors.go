// Package clinic holds the shared domain error taxonomy and the read-only
// directory lookups owned by the portal CRUD layer.
package clinic

import "fmt"

// NotFoundError indicates a referenced entity is absent. Terminal for the call.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// ValidationError indicates missing or malformed input. The caller must
// correct and resubmit; nothing is retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + e.Reason
}

// TransportError indicates the broker could not acknowledge a publish. It is
// surfaced to the caller immediately; the doctor UI resubmits.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("broker unavailable during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
