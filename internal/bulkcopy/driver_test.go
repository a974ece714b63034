package bulkcopy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgshift/pgshift/internal/configuration"
	"github.com/pgshift/pgshift/internal/workpool"
)

type fakeCopier struct {
	mu           sync.Mutex
	copied       [][2]int64
	timeoutAbove int64
	failFirst    bool
}

func (f *fakeCopier) CopyBatch(ctx context.Context, timeout time.Duration, source, target, column string, lo, hi int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFirst {
		f.failFirst = false
		return 0, errors.New("unusable connection")
	}
	if f.timeoutAbove > 0 && hi-lo > f.timeoutAbove {
		return 0, workpool.NewTimeoutError(errors.New("statement timeout"))
	}
	f.copied = append(f.copied, [2]int64{lo, hi})
	return hi - lo, nil
}

func (f *fakeCopier) covered() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, r := range f.copied {
		total += r[1] - r[0]
	}
	return total
}

func testConfig() configuration.MigrationConfig {
	return configuration.MigrationConfig{
		Workers:          2,
		InitialTimeout:   time.Minute,
		TimeoutIncrement: 30 * time.Second,
		Retries:          2,
		BatchSize:        25,
		SequenceColumn:   "seq",
	}
}

func TestInitialItemsAreDisjointAndContiguous(t *testing.T) {
	driver := NewDriver(&fakeCopier{}, testConfig())
	items := driver.InitialItems("events", "events_new", 0, 90)
	require.Len(t, items, 4)

	var cur int64
	for _, item := range items {
		spec := item.Spec.(BatchSpec)
		assert.Equal(t, cur, spec.Lo)
		cur = spec.Hi
	}
	assert.Equal(t, int64(90), cur)
}

func TestRunCopiesWholeRange(t *testing.T) {
	copier := &fakeCopier{}
	driver := NewDriver(copier, testConfig())

	signals, err := driver.Run(context.Background(), driver.InitialItems("events", "events_new", 0, 100))
	require.NoError(t, err)
	assert.Equal(t, int64(100), copier.covered())
	assert.Equal(t, int64(100), signals.Counter(CounterRows("events_new")))
}

func TestTimeoutsSplitUntilBatchesFit(t *testing.T) {
	copier := &fakeCopier{timeoutAbove: 10}
	driver := NewDriver(copier, testConfig())

	signals, err := driver.Run(context.Background(), driver.InitialItems("events", "events_new", 0, 100))
	require.NoError(t, err)
	assert.Equal(t, int64(100), copier.covered())
	assert.Equal(t, int64(100), signals.Counter(CounterRows("events_new")))
	for _, r := range copier.copied {
		assert.LessOrEqual(t, r[1]-r[0], int64(10))
	}
}

func TestErrorsRetryWithinBudget(t *testing.T) {
	copier := &fakeCopier{failFirst: true}
	driver := NewDriver(copier, testConfig())

	signals, err := driver.Run(context.Background(), driver.InitialItems("events", "events_new", 0, 50))
	require.NoError(t, err)
	assert.Equal(t, int64(50), copier.covered())
	assert.Empty(t, signals.Failed())
}

func TestExhaustedRetriesLandInFailed(t *testing.T) {
	conf := testConfig()
	conf.Retries = 0
	driver := NewDriver(&fakeCopier{failFirst: true}, conf)

	signals, err := driver.Run(context.Background(), driver.InitialItems("events", "events_new", 0, 25))
	require.Error(t, err)
	require.Len(t, signals.Failed(), 1)
	spec := signals.Failed()[0].Spec.(BatchSpec)
	assert.Equal(t, int64(0), spec.Lo)
	assert.Equal(t, int64(25), spec.Hi)
}
