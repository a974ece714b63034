// Package bulkcopy copies a key range between two relations in bounded
// batches over the workpool engine, without any partition lifecycle: the
// target is expected to already exist and accept rows. It is the driver
// behind `pgshift load`.
package bulkcopy

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/pgshift/pgshift/internal/configuration"
	"github.com/pgshift/pgshift/internal/workpool"
)

const JobBulkCopy = "bulk-copy"

// CounterRows labels the rows-copied counter of a target relation.
func CounterRows(target string) string {
	return "rows:" + target
}

// Copier runs one bounded copy statement. schema.Executor is the production
// implementation.
type Copier interface {
	CopyBatch(ctx context.Context, timeout time.Duration, source, target, column string, lo, hi int64) (int64, error)
}

// BatchSpec is the work item payload for one copy batch over [Lo, Hi).
type BatchSpec struct {
	Source string
	Target string
	Column string
	Lo     int64
	Hi     int64
}

func (s BatchSpec) Bounds() (int64, int64) {
	return s.Lo, s.Hi
}

func (s BatchSpec) WithBounds(lo, hi int64) any {
	next := s
	next.Lo = lo
	next.Hi = hi
	return next
}

type Driver struct {
	copier Copier
	conf   configuration.MigrationConfig
	split  workpool.SplitPolicy

	// fatal records the condition behind an unrecoverable wind-down. Written
	// only on the supervisor goroutine, read after the pool terminates.
	fatal error
}

func NewDriver(copier Copier, conf configuration.MigrationConfig) *Driver {
	return &Driver{
		copier: copier,
		conf:   conf,
		split: workpool.SplitPolicy{
			Escalation: workpool.EscalationPolicy{
				Increment: conf.TimeoutIncrement,
				Ceiling:   conf.MaxTimeout,
			},
		},
	}
}

// InitialItems chunks [lo, hi) of the source keyspace into disjoint,
// contiguous batches.
func (d *Driver) InitialItems(source, target string, lo, hi int64) []workpool.Item {
	size := d.conf.BatchSize
	if size < 1 {
		size = hi - lo
	}
	var items []workpool.Item
	for cur := lo; cur < hi; cur += size {
		end := cur + size
		if end > hi {
			end = hi
		}
		items = append(items, workpool.Item{
			Job:     JobBulkCopy,
			Retries: d.conf.Retries,
			Timeout: d.conf.InitialTimeout,
			Spec: BatchSpec{
				Source: source,
				Target: target,
				Column: d.conf.SequenceColumn,
				Lo:     cur,
				Hi:     end,
			},
		})
	}
	return items
}

// Start launches the work pool over the given items and returns its handle.
func (d *Driver) Start(ctx context.Context, items []workpool.Item) (*workpool.Pool, error) {
	return workpool.Start(ctx, d.conf.Workers, items, d.execute, d.finalize)
}

// Resume launches the pool over items persisted by an earlier run, seeding
// that run's counters so row totals stay cumulative across resumes.
func (d *Driver) Resume(ctx context.Context, items []workpool.Item, counters map[string]int64) (*workpool.Pool, error) {
	return workpool.StartWithCounters(ctx, d.conf.Workers, items, counters, d.execute, d.finalize)
}

// Run starts the pool, waits for termination, and aggregates terminal
// failures into the returned error.
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
	spec, ok := item.Spec.(BatchSpec)
	if !ok {
		return nil, errors.Errorf("work item %q carries unknown spec type %T", item.Job, item.Spec)
	}
	return d.copier.CopyBatch(ctx, item.Timeout, spec.Source, spec.Target, spec.Column, spec.Lo, spec.Hi)
}

func (d *Driver) finalize(res workpool.Result, signals *workpool.Signals) ([]workpool.Item, bool) {
	spec, ok := res.Item.Spec.(BatchSpec)
	if !ok {
		d.fatal = errors.Errorf("work item %q carries unknown spec type %T", res.Item.Job, res.Item.Spec)
		log.WithError(d.fatal).Error("winding down run")
		return nil, false
	}
	if res.Status == workpool.StatusSuccess {
		if rows, ok := res.Payload.(int64); ok {
			signals.AddCounter(CounterRows(spec.Target), rows)
		}
		return nil, true
	}
	return d.split.Apply(res), true
}
