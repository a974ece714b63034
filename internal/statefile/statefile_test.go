package statefile

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgshift/pgshift/internal/bulkcopy"
	"github.com/pgshift/pgshift/internal/partition"
	"github.com/pgshift/pgshift/internal/workpool"
)

func runPoolToCompletion(t *testing.T, items []workpool.Item, fail bool) *workpool.Signals {
	t.Helper()
	fn := func(ctx context.Context, item workpool.Item) (any, error) {
		if fail {
			return nil, errors.New("induced failure")
		}
		return nil, nil
	}
	finalize := func(res workpool.Result, _ *workpool.Signals) ([]workpool.Item, bool) {
		return nil, true
	}
	pool, err := workpool.Start(context.Background(), 1, items, fn, finalize)
	require.NoError(t, err)
	<-pool.Done()
	return pool.Signals()
}

func TestWriteReadRoundTrip(t *testing.T) {
	p := partition.Partition{Parent: "events_partitioned", Name: "events_partitioned_p0", Lo: 0, Hi: 50}
	items := []workpool.Item{
		{
			Job:     "constrain",
			Retries: 2,
			Timeout: 45 * time.Second,
			Spec:    partition.PhaseSpec{Partition: p, Phase: partition.PhaseConstrain},
		},
		{
			Job:     "bulk-copy",
			Retries: 1,
			Timeout: 30 * time.Second,
			Spec:    partition.CopySpec{Partition: p, Lo: 10, Hi: 20},
		},
	}
	signals := runPoolToCompletion(t, items, true)
	require.Len(t, signals.Failed(), 2)

	dir := t.TempDir()
	path, err := Write(dir, signals)
	require.NoError(t, err)
	require.NotEmpty(t, path)

	restored, _, err := Read(path)
	require.NoError(t, err)
	assert.ElementsMatch(t, signals.Failed(), restored)
}

func TestWriteSkipsCleanRuns(t *testing.T) {
	signals := runPoolToCompletion(t, []workpool.Item{
		{Job: "bulk-copy", Spec: bulkcopy.BatchSpec{Source: "a", Target: "b", Column: "seq", Lo: 0, Hi: 10}},
	}, false)
	require.Empty(t, signals.Failed())

	path, err := Write(t.TempDir(), signals)
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestBatchSpecRoundTrip(t *testing.T) {
	items := []workpool.Item{
		{
			Job:     "bulk-copy",
			Retries: 0,
			Timeout: time.Minute,
			Spec:    bulkcopy.BatchSpec{Source: "events", Target: "events_new", Column: "seq", Lo: 5, Hi: 7},
		},
	}
	signals := runPoolToCompletion(t, items, true)

	path, err := Write(t.TempDir(), signals)
	require.NoError(t, err)

	restored, _, err := Read(path)
	require.NoError(t, err)
	require.Len(t, restored, 1)
	assert.Equal(t, items[0], restored[0])
}

// TestCountersRoundTrip checks that a run's counter map survives the state
// file, without which a resumed partition could never advance past its
// bulk-copy coverage gate.
func TestCountersRoundTrip(t *testing.T) {
	p := partition.Partition{Parent: "events_partitioned", Name: "events_partitioned_p0", Lo: 0, Hi: 20}
	fn := func(ctx context.Context, item workpool.Item) (any, error) {
		return nil, errors.New("connection reset by peer")
	}
	finalize := func(res workpool.Result, signals *workpool.Signals) ([]workpool.Item, bool) {
		signals.AddCounter(partition.CounterCovered(p.Name), 10)
		return nil, true
	}
	items := []workpool.Item{{
		Job:     "bulk-copy",
		Timeout: 30 * time.Second,
		Spec:    partition.CopySpec{Partition: p, Lo: 10, Hi: 20},
	}}
	pool, err := workpool.Start(context.Background(), 1, items, fn, finalize)
	require.NoError(t, err)
	<-pool.Done()

	path, err := Write(t.TempDir(), pool.Signals())
	require.NoError(t, err)
	require.NotEmpty(t, path)

	_, counters, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, int64(10), counters[partition.CounterCovered(p.Name)])
}

func TestEncodeRejectsUnknownSpecTypes(t *testing.T) {
	_, err := encodeItems([]workpool.Item{{Job: "mystery", Spec: 42}})
	assert.Error(t, err)
}
