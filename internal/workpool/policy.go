package workpool

import (
	"time"
)

// RangeSpec is implemented by item specs describing a half-open numeric
// range [lo, hi) that can be split into smaller disjoint ranges.
type RangeSpec interface {
	Bounds() (lo, hi int64)
	// WithBounds returns a copy of the spec narrowed to [lo, hi).
	WithBounds(lo, hi int64) any
}

// EscalationPolicy implements deadline escalation for DDL-style work: a
// timed-out item is retried with its timeout increased by Increment,
// indefinitely, on the assumption that fixed-size metadata operations
// eventually succeed given enough time. Errors consume the item's bounded
// retry budget instead.
type EscalationPolicy struct {
	// Increment is added to the item's timeout on every Timeout outcome.
	Increment time.Duration
	// Ceiling, when non-zero, caps the escalated timeout. Escalation
	// continues at the ceiling rather than failing the item.
	Ceiling time.Duration
}

// Apply maps a Result to its follow-up items under deadline escalation.
// Success produces no follow-ups.
func (p EscalationPolicy) Apply(res Result) []Item {
	switch res.Status {
	case StatusTimeout:
		return p.Escalate(res.Item)
	case StatusError:
		return RetryOnError(res.Item)
	}
	return nil
}

// Escalate derives the follow-up for a timed-out item: the same work with a
// strictly larger deadline (clamped to Ceiling if configured).
func (p EscalationPolicy) Escalate(item Item) []Item {
	next := item
	next.Timeout = item.Timeout + p.Increment
	if p.Ceiling > 0 && next.Timeout > p.Ceiling {
		next.Timeout = p.Ceiling
	}
	return []Item{next}
}

// SplitPolicy implements adaptive binary range-splitting for bulk-copy
// work: a timed-out range [lo, hi) is replaced by [lo, mid) and [mid, hi),
// halving the work attempted per statement until it fits the deadline. A
// unit range cannot split and falls back to deadline escalation.
type SplitPolicy struct {
	Escalation EscalationPolicy
}

// Apply maps a Result to its follow-up items under adaptive splitting.
func (p SplitPolicy) Apply(res Result) []Item {
	switch res.Status {
	case StatusTimeout:
		return p.Split(res.Item)
	case StatusError:
		return RetryOnError(res.Item)
	}
	return nil
}

// Split halves a timed-out range item. Both halves inherit the original
// retry budget and timeout. Items whose spec does not implement RangeSpec,
// and unit ranges, are escalated instead.
func (p SplitPolicy) Split(item Item) []Item {
	r, ok := item.Spec.(RangeSpec)
	if !ok {
		return p.Escalation.Escalate(item)
	}
	lo, hi := r.Bounds()
	if hi-lo <= 1 {
		return p.Escalation.Escalate(item)
	}
	mid := lo + (hi-lo)/2
	left := item
	left.Spec = r.WithBounds(lo, mid)
	right := item
	right.Spec = r.WithBounds(mid, hi)
	return []Item{left, right}
}

// RetryOnError derives the bounded-retry follow-up for an errored item: one
// copy with the budget decremented, or nothing once the budget is spent.
func RetryOnError(item Item) []Item {
	if item.Retries <= 0 {
		return nil
	}
	next := item
	next.Retries--
	return []Item{next}
}
