// Package partition drives the lifecycle of postgres table partitions
// through a fixed phase chain on top of the workpool engine: disable
// autovacuum, bulk-copy the rows in batches, constrain, build each index,
// attach table and indexes to the parent, drop the scaffolding range check,
// re-enable autovacuum, analyze.
//
// The chain is advanced exclusively by the finalize callback: the item for
// phase N+1 is only ever created while processing phase N's success, so a
// partition can never be attached before its data is copied and its indexes
// exist.
package partition

import (
	"fmt"
)

// Phase is one step of the partition lifecycle. The ordering of the
// constants is the execution order.
type Phase int

const (
	PhaseAutovacuumDisable Phase = iota
	PhaseBulkCopy
	PhaseConstrain
	PhaseBuildIndex
	PhaseAttach
	PhaseDropRangeCheck
	PhaseAutovacuumReset
	PhaseAnalyze
)

func (p Phase) String() string {
	switch p {
	case PhaseAutovacuumDisable:
		return "autovacuum-disable"
	case PhaseBulkCopy:
		return "bulk-copy"
	case PhaseConstrain:
		return "constrain"
	case PhaseBuildIndex:
		return "build-index"
	case PhaseAttach:
		return "attach"
	case PhaseDropRangeCheck:
		return "drop-range-check"
	case PhaseAutovacuumReset:
		return "autovacuum-reset"
	case PhaseAnalyze:
		return "analyze"
	}
	return fmt.Sprintf("unknown(%d)", int(p))
}

// Partition is one numbered child table covering the half-open sequence
// range [Lo, Hi) of its parent.
type Partition struct {
	Parent string
	Name   string
	Lo     int64
	Hi     int64
}

func (p Partition) Width() int64 {
	return p.Hi - p.Lo
}

func (p Partition) String() string {
	return fmt.Sprintf("%s[%d,%d)", p.Name, p.Lo, p.Hi)
}

// PhaseSpec is the work item payload for every DDL phase of a partition.
// Index selects which index is built during PhaseBuildIndex and is zero
// otherwise.
type PhaseSpec struct {
	Partition Partition
	Phase     Phase
	Index     int
}

// CopySpec is the work item payload for one bulk-copy batch: rows with
// sequence values in [Lo, Hi) are copied into the partition. Batches are
// constructed disjoint and may split further on timeout.
type CopySpec struct {
	Partition Partition
	Lo        int64
	Hi        int64
}

func (s CopySpec) Bounds() (int64, int64) {
	return s.Lo, s.Hi
}

func (s CopySpec) WithBounds(lo, hi int64) any {
	next := s
	next.Lo = lo
	next.Hi = hi
	return next
}
