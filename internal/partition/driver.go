package partition

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgtype/pgxtype"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/pgshift/pgshift/internal/configuration"
	"github.com/pgshift/pgshift/internal/pgshifterrors"
	"github.com/pgshift/pgshift/internal/schema"
	"github.com/pgshift/pgshift/internal/workpool"
)

// Executor runs the database statements of individual lifecycle phases.
// schema.Executor is the production implementation.
type Executor interface {
	DisableAutovacuum(ctx context.Context, timeout time.Duration, table string) error
	ResetAutovacuum(ctx context.Context, timeout time.Duration, table string) error
	CopyBatch(ctx context.Context, timeout time.Duration, source, target, column string, lo, hi int64) (int64, error)
	Constrain(ctx context.Context, timeout time.Duration, table, column string, lo, hi int64) error
	BuildIndex(ctx context.Context, timeout time.Duration, table string, index schema.IndexSpec) error
	AttachPartition(ctx context.Context, timeout time.Duration, parent, table string, lo, hi int64, indexes []schema.IndexSpec) error
	DropRangeCheck(ctx context.Context, timeout time.Duration, table string) error
	Analyze(ctx context.Context, timeout time.Duration, table string) error
}

// Scaffolder creates the bare partition tables during preparation, before
// any work is pooled.
type Scaffolder interface {
	CreateScaffold(ctx context.Context, q pgxtype.Querier, parent, table string) error
	Querier() pgxtype.Querier
}

// Caller-defined counter labels accumulated in Signals during a run.
const (
	// CounterPartitionsDone counts partitions whose analyze phase landed.
	CounterPartitionsDone = "partitions-done"
)

// CounterRows labels the rows-copied counter of one partition.
func CounterRows(partition string) string {
	return "rows:" + partition
}

// CounterCovered labels the covered-sequence-range counter used to decide
// when a partition's bulk copy is complete.
func CounterCovered(partition string) string {
	return "covered:" + partition
}

// Driver runs the partition lifecycle chain for a set of partitions over
// one work pool.
type Driver struct {
	exec     Executor
	conf     configuration.MigrationConfig
	indexes  []schema.IndexSpec
	escalate workpool.EscalationPolicy
	split    workpool.SplitPolicy

	// fatal records the condition behind an unrecoverable wind-down. Written
	// only on the supervisor goroutine, read after the pool terminates.
	fatal error
}

func NewDriver(exec Executor, conf configuration.MigrationConfig) *Driver {
	escalate := workpool.EscalationPolicy{
		Increment: conf.TimeoutIncrement,
		Ceiling:   conf.MaxTimeout,
	}
	return &Driver{
		exec:     exec,
		conf:     conf,
		indexes:  schema.IndexSpecsFromConfig(conf.Indexes),
		escalate: escalate,
		split:    workpool.SplitPolicy{Escalation: escalate},
	}
}

// Prepare creates the scaffold table for every planned partition. Scaffold
// creation is idempotent, so re-running a partially completed migration is
// safe.
func (d *Driver) Prepare(ctx context.Context, sc Scaffolder, partitions []Partition) error {
	for _, p := range partitions {
		if err := sc.CreateScaffold(ctx, sc.Querier(), p.Parent, p.Name); err != nil {
			return errors.Wrapf(err, "creating scaffold table %s", p.Name)
		}
	}
	return nil
}

// InitialItems returns the seed work for a set of partitions: one
// autovacuum-disable item each. Everything after that is created by
// finalize.
func (d *Driver) InitialItems(partitions []Partition) []workpool.Item {
	items := make([]workpool.Item, len(partitions))
	for i, p := range partitions {
		items[i] = d.phaseItem(p, PhaseAutovacuumDisable, 0)
	}
	return items
}

// Start launches the work pool over the given items and returns its handle.
// Items may be initial work from InitialItems or failed/cancelled items
// from an earlier run being resumed.
func (d *Driver) Start(ctx context.Context, items []workpool.Item) (*workpool.Pool, error) {
	return workpool.Start(ctx, d.conf.Workers, items, d.execute, d.finalize)
}

// Resume launches the pool over the failed and cancelled items persisted by
// an earlier run, seeding the counters that run accumulated. Without the
// covered counters a partly copied partition could never reach constrain:
// the resumed batches only sum to the uncopied remainder.
func (d *Driver) Resume(ctx context.Context, items []workpool.Item, counters map[string]int64) (*workpool.Pool, error) {
	return workpool.StartWithCounters(ctx, d.conf.Workers, items, counters, d.execute, d.finalize)
}

// Run starts the pool, waits for it to terminate, and returns the final
// Signals together with an aggregate error describing every terminally
// failed item.
func (d *Driver) Run(ctx context.Context, items []workpool.Item) (*workpool.Signals, error) {
	pool, err := d.Start(ctx, items)
	if err != nil {
		return nil, err
	}
	<-pool.Done()

	signals := pool.Signals()
	var result *multierror.Error
	for _, item := range signals.Failed() {
		result = multierror.Append(result, errors.Errorf("work item %s failed terminally", item))
	}
	// fatal is written on the supervisor goroutine before Done closes.
	if d.fatal != nil {
		result = multierror.Append(result, d.fatal)
	}
	return signals, result.ErrorOrNil()
}

func (d *Driver) execute(ctx context.Context, item workpool.Item) (any, error) {
	switch spec := item.Spec.(type) {
	case PhaseSpec:
		return nil, d.executePhase(ctx, item.Timeout, spec)
	case CopySpec:
		return d.exec.CopyBatch(ctx, item.Timeout,
			d.conf.SourceTable, spec.Partition.Name, d.conf.SequenceColumn, spec.Lo, spec.Hi)
	}
	return nil, errors.Errorf("work item %q carries unknown spec type %T", item.Job, item.Spec)
}

func (d *Driver) executePhase(ctx context.Context, timeout time.Duration, spec PhaseSpec) error {
	p := spec.Partition
	switch spec.Phase {
	case PhaseAutovacuumDisable:
		return d.exec.DisableAutovacuum(ctx, timeout, p.Name)
	case PhaseConstrain:
		return d.exec.Constrain(ctx, timeout, p.Name, d.conf.SequenceColumn, p.Lo, p.Hi)
	case PhaseBuildIndex:
		return d.exec.BuildIndex(ctx, timeout, p.Name, d.indexes[spec.Index])
	case PhaseAttach:
		return d.exec.AttachPartition(ctx, timeout, p.Parent, p.Name, p.Lo, p.Hi, d.indexes)
	case PhaseDropRangeCheck:
		return d.exec.DropRangeCheck(ctx, timeout, p.Name)
	case PhaseAutovacuumReset:
		return d.exec.ResetAutovacuum(ctx, timeout, p.Name)
	case PhaseAnalyze:
		return d.exec.Analyze(ctx, timeout, p.Name)
	}
	return errors.Errorf("phase %s is not executable on %s", spec.Phase, p)
}

// finalize is the single policy deciding all follow-up work: phase items
// advance the chain on success and use deadline escalation otherwise; copy
// items accumulate coverage on success and use adaptive splitting
// otherwise.
func (d *Driver) finalize(res workpool.Result, signals *workpool.Signals) ([]workpool.Item, bool) {
	switch spec := res.Item.Spec.(type) {
	case PhaseSpec:
		if res.Status == workpool.StatusSuccess {
			return d.advance(spec, signals), true
		}
		log.WithField("phase", spec.Phase.String()).
			WithField("partition", spec.Partition.Name).
			Debugf("phase did not land: %s", res.Status)
		return d.escalate.Apply(res), true
	case CopySpec:
		if res.Status == workpool.StatusSuccess {
			return d.copyLanded(res, spec, signals)
		}
		return d.split.Apply(res), true
	}
	// The queue contains an item this driver never created. Continuing
	// could interleave phases incorrectly, so wind the whole pool down.
	d.fatal = errors.Errorf("work item %q carries unknown spec type %T", res.Item.Job, res.Item.Spec)
	log.WithError(d.fatal).Error("winding down run")
	return nil, false
}

// advance maps a succeeded phase to the next link of the chain.
func (d *Driver) advance(spec PhaseSpec, signals *workpool.Signals) []workpool.Item {
	p := spec.Partition
	switch spec.Phase {
	case PhaseAutovacuumDisable:
		return d.copyItems(p)
	case PhaseConstrain:
		if len(d.indexes) == 0 {
			return []workpool.Item{d.phaseItem(p, PhaseAttach, 0)}
		}
		return []workpool.Item{d.phaseItem(p, PhaseBuildIndex, 0)}
	case PhaseBuildIndex:
		// Indexes build one at a time per partition even though they are
		// logically independent; the pool already runs partitions in
		// parallel and concurrent builds on one table just contend.
		if spec.Index+1 < len(d.indexes) {
			return []workpool.Item{d.phaseItem(p, PhaseBuildIndex, spec.Index + 1)}
		}
		return []workpool.Item{d.phaseItem(p, PhaseAttach, 0)}
	case PhaseAttach:
		return []workpool.Item{d.phaseItem(p, PhaseDropRangeCheck, 0)}
	case PhaseDropRangeCheck:
		return []workpool.Item{d.phaseItem(p, PhaseAutovacuumReset, 0)}
	case PhaseAutovacuumReset:
		return []workpool.Item{d.phaseItem(p, PhaseAnalyze, 0)}
	case PhaseAnalyze:
		signals.AddCounter(CounterPartitionsDone, 1)
		log.WithField("partition", p.Name).Info("partition lifecycle complete")
		return nil
	}
	return nil
}

// copyLanded books a completed copy batch and advances to constrain once
// the partition's whole range is covered.
func (d *Driver) copyLanded(res workpool.Result, spec CopySpec, signals *workpool.Signals) ([]workpool.Item, bool) {
	if rows, ok := res.Payload.(int64); ok {
		signals.AddCounter(CounterRows(spec.Partition.Name), rows)
	}
	covered := signals.AddCounter(CounterCovered(spec.Partition.Name), spec.Hi-spec.Lo)
	if covered > spec.Partition.Width() {
		// Batches are constructed disjoint, so coverage beyond the
		// partition width means overlapping copies may have landed.
		d.fatal = errors.WithStack(&pgshifterrors.ErrInconsistentState{
			Relation: spec.Partition.Name,
			Message:  fmt.Sprintf("covered %d of %d sequence values, batches overlapped", covered, spec.Partition.Width()),
		})
		log.WithError(d.fatal).Error("winding down run")
		return nil, false
	}
	if covered == spec.Partition.Width() {
		return []workpool.Item{d.phaseItem(spec.Partition, PhaseConstrain, 0)}, true
	}
	return nil, true
}

// copyItems chunks a partition's range into the initial disjoint bulk-copy
// batches.
func (d *Driver) copyItems(p Partition) []workpool.Item {
	size := d.conf.BatchSize
	if size < 1 {
		size = p.Width()
	}
	var items []workpool.Item
	for cur := p.Lo; cur < p.Hi; cur += size {
		end := cur + size
		if end > p.Hi {
			end = p.Hi
		}
		items = append(items, workpool.Item{
			Job:     PhaseBulkCopy.String(),
			Retries: d.conf.Retries,
			Timeout: d.conf.InitialTimeout,
			Spec:    CopySpec{Partition: p, Lo: cur, Hi: end},
		})
	}
	return items
}

func (d *Driver) phaseItem(p Partition, phase Phase, index int) workpool.Item {
	return workpool.Item{
		Job:     phase.String(),
		Retries: d.conf.Retries,
		Timeout: d.conf.InitialTimeout,
		Spec:    PhaseSpec{Partition: p, Phase: phase, Index: index},
	}
}
