package workpool

import (
	"sync"
)

// Signals is the shared state of a running pool: the pending queue,
// in-flight and landed counts, the terminal failure and cancellation lists,
// and an open-ended map of caller-defined counters.
//
// All mutation happens on the supervisor goroutine; the mutex exists so
// other goroutines can take consistent read snapshots while a run is in
// progress. FinalizeFuncs may call AddCounter and Counter directly since
// they execute on the supervisor goroutine.
type Signals struct {
	mu            sync.Mutex
	pending       []Item
	inFlight      int
	landed        int
	failed        []Item
	cancelled     []Item
	counters      map[string]int64
	totalEnqueued int
}

// Snapshot is a consistent point-in-time view of the pool's bookkeeping.
// Pending + InFlight + Landed == TotalEnqueued holds at every instant of a
// run (cancellation moves items out of pending and out of the total).
type Snapshot struct {
	Pending       int
	InFlight      int
	Landed        int
	Failed        int
	Cancelled     int
	TotalEnqueued int
}

func newSignals(initial []Item) *Signals {
	pending := make([]Item, len(initial))
	copy(pending, initial)
	return &Signals{
		pending:       pending,
		counters:      map[string]int64{},
		totalEnqueued: len(pending),
	}
}

// seedCounters restores counter values from an earlier run. Called before
// the supervisor starts, so the single-writer discipline is preserved.
func (s *Signals) seedCounters(counters map[string]int64) {
	for label, value := range counters {
		s.counters[label] = value
	}
}

// Snapshot returns a consistent view of the current counts.
func (s *Signals) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Pending:       len(s.pending),
		InFlight:      s.inFlight,
		Landed:        s.landed,
		Failed:        len(s.failed),
		Cancelled:     len(s.cancelled),
		TotalEnqueued: s.totalEnqueued,
	}
}

// Failed returns a copy of the items whose Error outcome exhausted their
// retry budget. Operators re-enqueue these to resume an interrupted run.
func (s *Signals) Failed() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, len(s.failed))
	copy(out, s.failed)
	return out
}

// Cancelled returns a copy of the items still pending when the pool was
// killed.
func (s *Signals) Cancelled() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, len(s.cancelled))
	copy(out, s.cancelled)
	return out
}

// Counter returns the current value of a caller-defined counter.
func (s *Signals) Counter(label string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[label]
}

// Counters returns a copy of every caller-defined counter.
func (s *Signals) Counters() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.counters))
	for k, v := range s.counters {
		out[k] = v
	}
	return out
}

// AddCounter adds delta to a caller-defined counter and returns the new
// value. Only FinalizeFuncs should call this; they run on the supervisor
// goroutine, preserving the single-writer discipline.
func (s *Signals) AddCounter(label string, delta int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[label] += delta
	return s.counters[label]
}

func (s *Signals) peekPending() (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return Item{}, false
	}
	return s.pending[0], true
}

// dispatched pops the queue head and counts it as in flight in one step so
// the conservation invariant holds for every observable snapshot.
func (s *Signals) dispatched() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = s.pending[1:]
	s.inFlight++
}

func (s *Signals) landedReply() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--
	s.landed++
}

func (s *Signals) appendPending(items []Item) {
	if len(items) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, items...)
	s.totalEnqueued += len(items)
}

func (s *Signals) appendFailed(item Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, item)
}

// cancelPending moves every still-pending item to the cancelled list.
func (s *Signals) cancelPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, s.pending...)
	s.totalEnqueued -= len(s.pending)
	s.pending = nil
}

func (s *Signals) quiescent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) == 0 && s.inFlight == 0
}

func (s *Signals) inFlightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}
