package schema

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgshift/pgshift/internal/common/database"
	"github.com/pgshift/pgshift/internal/workpool"
)

// Lifecycle test against a live postgres. Set PGSHIFT_TEST_DB to run it,
// e.g. PGSHIFT_TEST_DB=1 go test ./internal/schema/...
func TestExecutorLifecycleAgainstPostgres(t *testing.T) {
	if os.Getenv("PGSHIFT_TEST_DB") == "" {
		t.Skip("PGSHIFT_TEST_DB not set, skipping live postgres test")
	}

	setup := []string{
		`CREATE TABLE events (seq bigint, kind text)`,
		`INSERT INTO events (seq, kind) SELECT s, 'k' FROM generate_series(0, 99) AS s`,
		`CREATE TABLE events_partitioned (seq bigint NOT NULL, kind text) PARTITION BY RANGE (seq)`,
	}

	err := database.WithTestDb(setup, func(db *pgxpool.Pool) error {
		ctx := context.Background()
		timeout := 30 * time.Second
		exec := NewExecutor(db)
		index := IndexSpec{Suffix: "_kind_idx", Columns: []string{"kind", "seq"}}

		require.NoError(t, exec.CreateScaffold(ctx, exec.Querier(), "events_partitioned", "events_p0"))
		// Scaffold creation is idempotent.
		require.NoError(t, exec.CreateScaffold(ctx, exec.Querier(), "events_partitioned", "events_p0"))

		require.NoError(t, exec.DisableAutovacuum(ctx, timeout, "events_p0"))

		rows, err := exec.CopyBatch(ctx, timeout, "events", "events_p0", "seq", 0, 50)
		require.NoError(t, err)
		assert.Equal(t, int64(50), rows)
		rows, err = exec.CopyBatch(ctx, timeout, "events", "events_p0", "seq", 50, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(50), rows)

		require.NoError(t, exec.Constrain(ctx, timeout, "events_p0", "seq", 0, 100))
		require.NoError(t, exec.BuildIndex(ctx, timeout, "events_p0", index))
		require.NoError(t, exec.AttachPartition(ctx, timeout, "events_partitioned", "events_p0", 0, 100, []IndexSpec{index}))
		require.NoError(t, exec.DropRangeCheck(ctx, timeout, "events_p0"))
		require.NoError(t, exec.ResetAutovacuum(ctx, timeout, "events_p0"))
		require.NoError(t, exec.Analyze(ctx, timeout, "events_p0"))

		var count int64
		require.NoError(t, db.QueryRow(ctx, "SELECT count(*) FROM events_partitioned").Scan(&count))
		assert.Equal(t, int64(100), count)
		return nil
	})
	require.NoError(t, err)
}

func TestStatementTimeoutClassifiesAsTimeout(t *testing.T) {
	if os.Getenv("PGSHIFT_TEST_DB") == "" {
		t.Skip("PGSHIFT_TEST_DB not set, skipping live postgres test")
	}

	err := database.WithTestDb(nil, func(db *pgxpool.Pool) error {
		exec := NewExecutor(db)
		err := exec.execTx(context.Background(), 50*time.Millisecond, "SELECT pg_sleep(5)")
		require.Error(t, err)
		assert.True(t, workpool.IsTimeout(err), "expected a timeout classification, got %v", err)
		return nil
	})
	require.NoError(t, err)
}

func TestClassifyTimeoutPassesOrdinaryErrorsThrough(t *testing.T) {
	cause := errors.New("relation does not exist")
	err := classifyTimeout(cause)
	require.Error(t, err)
	assert.False(t, workpool.IsTimeout(err))
	assert.Nil(t, classifyTimeout(nil))
}
