package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanEnumeratesContiguousPartitions(t *testing.T) {
	partitions, err := Plan("events_partitioned", 0, 100, 40)
	require.NoError(t, err)
	require.Len(t, partitions, 3)

	assert.Equal(t, Partition{Parent: "events_partitioned", Name: "events_partitioned_p0", Lo: 0, Hi: 40}, partitions[0])
	assert.Equal(t, Partition{Parent: "events_partitioned", Name: "events_partitioned_p40", Lo: 40, Hi: 80}, partitions[1])
	// The final partition is truncated to the keyspace bound.
	assert.Equal(t, Partition{Parent: "events_partitioned", Name: "events_partitioned_p80", Lo: 80, Hi: 100}, partitions[2])
}

func TestPlanSinglePartition(t *testing.T) {
	partitions, err := Plan("events_partitioned", 5, 10, 100)
	require.NoError(t, err)
	require.Len(t, partitions, 1)
	assert.Equal(t, int64(5), partitions[0].Lo)
	assert.Equal(t, int64(10), partitions[0].Hi)
}

func TestPlanNamesAreStableAcrossRuns(t *testing.T) {
	first, err := Plan("events_partitioned", 0, 100, 30)
	require.NoError(t, err)
	second, err := Plan("events_partitioned", 0, 100, 30)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPlanRejectsInvalidArguments(t *testing.T) {
	_, err := Plan("events_partitioned", 0, 100, 0)
	assert.Error(t, err)

	_, err = Plan("events_partitioned", 100, 100, 10)
	assert.Error(t, err)

	_, err = Plan("events_partitioned", 100, 50, 10)
	assert.Error(t, err)
}
