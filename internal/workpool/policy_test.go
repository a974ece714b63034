package workpool

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscalateIncreasesTimeout(t *testing.T) {
	policy := EscalationPolicy{Increment: 30 * time.Second}
	item := Item{Job: "build-index", Timeout: time.Minute, Retries: 2}

	followUps := policy.Apply(Result{Item: item, Status: StatusTimeout})
	require.Len(t, followUps, 1)
	assert.Equal(t, 90*time.Second, followUps[0].Timeout)
	// Escalation does not consume the error-retry budget.
	assert.Equal(t, 2, followUps[0].Retries)
}

func TestEscalateClampsToCeiling(t *testing.T) {
	policy := EscalationPolicy{Increment: time.Minute, Ceiling: 90 * time.Second}
	item := Item{Job: "attach", Timeout: time.Minute}

	followUps := policy.Escalate(item)
	require.Len(t, followUps, 1)
	assert.Equal(t, 90*time.Second, followUps[0].Timeout)

	// Further escalation holds at the ceiling.
	followUps = policy.Escalate(followUps[0])
	require.Len(t, followUps, 1)
	assert.Equal(t, 90*time.Second, followUps[0].Timeout)
}

func TestEscalationRetriesErrorsWithBoundedBudget(t *testing.T) {
	policy := EscalationPolicy{Increment: time.Second}
	res := Result{
		Item:   Item{Job: "constrain", Retries: 2, Timeout: time.Minute},
		Status: StatusError,
		Err:    errors.New("deadlock detected"),
	}

	followUps := policy.Apply(res)
	require.Len(t, followUps, 1)
	assert.Equal(t, 1, followUps[0].Retries)
	// The timeout is untouched on Error.
	assert.Equal(t, time.Minute, followUps[0].Timeout)
}

func TestRetryOnErrorExhaustedBudget(t *testing.T) {
	assert.Empty(t, RetryOnError(Item{Job: "constrain", Retries: 0}))
}

func TestSplitHalvesRange(t *testing.T) {
	policy := SplitPolicy{Escalation: EscalationPolicy{Increment: time.Second}}
	item := Item{
		Job:     "bulk-copy",
		Retries: 3,
		Timeout: time.Minute,
		Spec:    testRange{0, 100},
	}

	followUps := policy.Apply(Result{Item: item, Status: StatusTimeout})
	require.Len(t, followUps, 2)
	assert.Equal(t, testRange{0, 50}, followUps[0].Spec)
	assert.Equal(t, testRange{50, 100}, followUps[1].Spec)
	for _, f := range followUps {
		assert.Equal(t, 3, f.Retries)
		assert.Equal(t, time.Minute, f.Timeout)
	}
}

func TestSplitUnitRangeEscalatesInstead(t *testing.T) {
	policy := SplitPolicy{Escalation: EscalationPolicy{Increment: 30 * time.Second}}
	item := Item{Job: "bulk-copy", Timeout: time.Minute, Spec: testRange{41, 42}}

	followUps := policy.Split(item)
	require.Len(t, followUps, 1)
	assert.Equal(t, testRange{41, 42}, followUps[0].Spec)
	assert.Greater(t, followUps[0].Timeout, item.Timeout)
}

func TestSplitNonRangeSpecEscalates(t *testing.T) {
	policy := SplitPolicy{Escalation: EscalationPolicy{Increment: time.Second}}
	item := Item{Job: "bulk-copy", Timeout: time.Second, Spec: "not a range"}

	followUps := policy.Split(item)
	require.Len(t, followUps, 1)
	assert.Equal(t, 2*time.Second, followUps[0].Timeout)
}

func TestSplitRetriesErrorsWithBoundedBudget(t *testing.T) {
	policy := SplitPolicy{Escalation: EscalationPolicy{Increment: time.Second}}
	res := Result{
		Item:   Item{Job: "bulk-copy", Retries: 1, Spec: testRange{0, 100}},
		Status: StatusError,
		Err:    errors.New("unique violation"),
	}

	followUps := policy.Apply(res)
	require.Len(t, followUps, 1)
	// Errors retry the whole range, they do not split it.
	assert.Equal(t, testRange{0, 100}, followUps[0].Spec)
	assert.Equal(t, 0, followUps[0].Retries)

	res.Item = followUps[0]
	assert.Empty(t, policy.Apply(res))
}
