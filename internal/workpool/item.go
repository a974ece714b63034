// Package workpool implements the bulk-work orchestration engine used to
// drive long-running, partitioned database migrations: a fixed pool of
// workers executing opaque work items under the control of a single
// supervisor that owns all shared state.
//
// Callers supply a WorkerFunc that executes one item and a FinalizeFunc
// that inspects each completed item and decides on follow-up work (retry,
// split, advance to the next phase, or nothing). The engine itself knows
// nothing about SQL or partitions; see the partition and bulkcopy packages
// for the drivers built on top of it.
package workpool

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Item is a single unit of work. Items are immutable values: a retry or a
// split produces new Items derived from the completed one, never a mutation
// of it.
type Item struct {
	// Job tags the kind of work, e.g. "bulk-copy" or "build-index".
	Job string
	// Retries is the number of retries remaining on Error outcomes.
	Retries int
	// Timeout is the statement deadline the worker function should apply.
	Timeout time.Duration
	// Spec carries the job-specific parameters. The engine treats it as
	// opaque; finalize functions type-switch on it.
	Spec any
}

func (item Item) String() string {
	return fmt.Sprintf("%s(%v retries=%d timeout=%s)", item.Job, item.Spec, item.Retries, item.Timeout)
}

// Status classifies the outcome of executing an Item.
type Status int

const (
	StatusSuccess Status = iota
	StatusTimeout
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusTimeout:
		return "timeout"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// Result is the outcome of executing an Item, merged with the Item that
// produced it. Exactly one Result is produced per execution.
type Result struct {
	Item    Item
	Status  Status
	Payload any
	Err     error
}

// WorkerFunc executes one Item and returns its payload. Returning an error
// for which IsTimeout holds marks the outcome as Timeout rather than Error.
type WorkerFunc func(ctx context.Context, item Item) (any, error)

// FinalizeFunc inspects a completed Item and returns follow-up Items to
// enqueue. It runs on the supervisor goroutine and is the only place other
// than initial enqueue where work is created. Returning ok=false signals an
// unrecoverable condition: the pool winds down immediately without draining
// in-flight work.
type FinalizeFunc func(res Result, signals *Signals) (followUps []Item, ok bool)

// TimeoutError marks an error as a recoverable statement timeout. Worker
// functions wrap driver-reported timeouts with NewTimeoutError so the
// engine classifies the outcome as Timeout.
type TimeoutError struct {
	cause error
}

func NewTimeoutError(cause error) *TimeoutError {
	return &TimeoutError{cause: cause}
}

func (e *TimeoutError) Error() string {
	if e.cause == nil {
		return "statement timed out"
	}
	return "statement timed out: " + e.cause.Error()
}

func (e *TimeoutError) Timeout() bool { return true }

func (e *TimeoutError) Unwrap() error { return e.cause }

// IsTimeout reports whether err represents a recoverable timeout. Any error
// in the chain exposing a Timeout() bool method is honoured, which covers
// both TimeoutError and net.Error style errors surfaced by drivers.
func IsTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
