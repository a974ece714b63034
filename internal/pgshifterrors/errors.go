// Package pgshifterrors contains typed errors shared across the migration
// engine and its drivers. Code that accumulates several independent
// failures (e.g., terminally failed work items) should wrap them in a
// multierror.Error from github.com/hashicorp/go-multierror.
package pgshifterrors

import (
	"fmt"
)

// ErrInvalidArgument indicates that a supplied argument was invalid, e.g. a
// worker count below one or a nil callback.
type ErrInvalidArgument struct {
	// Name of the offending argument
	Name string
	// Value of the offending argument
	Value interface{}
	// Optional message included with the error message
	Message string
}

func (err *ErrInvalidArgument) Error() (s string) {
	s = fmt.Sprintf("value %v is invalid for argument %s", err.Value, err.Name)
	if err.Message != "" {
		s = s + "; " + err.Message
	}
	return
}

// ErrInconsistentState indicates that on-database partition state does not
// match what the driver expects, e.g. bulk-copy coverage exceeding the
// partition's width. Continuing a run in this situation is unsafe, so
// drivers report it as the unrecoverable finalize sentinel and surface it
// from the run error.
type ErrInconsistentState struct {
	// Relation the inconsistency was observed on
	Relation string
	// Description of the inconsistency
	Message string
}

func (err *ErrInconsistentState) Error() string {
	return fmt.Sprintf("inconsistent partition state on %s: %s", err.Relation, err.Message)
}
