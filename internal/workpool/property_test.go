package workpool

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/pkg/errors"
)

// TestProperty_SplittingTerminates drives a pool whose copy jobs always
// time out until they are unit-width, so every range is repeatedly halved.
// For any starting range the run must terminate with landed unit ranges
// whose disjoint union is exactly the starting range.
func TestProperty_SplittingTerminates(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("halving covers the whole range in finitely many steps", prop.ForAll(
		func(lo int64, width int64) bool {
			hi := lo + width
			split := SplitPolicy{Escalation: EscalationPolicy{Increment: time.Second}}

			fn := func(ctx context.Context, item Item) (any, error) {
				r := item.Spec.(testRange)
				if r.hi-r.lo > 1 {
					return nil, NewTimeoutError(errors.New("statement timeout"))
				}
				return nil, nil
			}

			var landed []testRange
			finalize := func(res Result, _ *Signals) ([]Item, bool) {
				if res.Status == StatusSuccess {
					landed = append(landed, res.Item.Spec.(testRange))
					return nil, true
				}
				return split.Apply(res), true
			}

			initial := []Item{{Job: "bulk-copy", Timeout: time.Second, Spec: testRange{lo, hi}}}
			pool, err := Start(context.Background(), 2, initial, fn, finalize)
			if err != nil {
				return false
			}
			select {
			case <-pool.Done():
			case <-time.After(10 * time.Second):
				return false
			}

			// landed is only appended on the supervisor goroutine, which
			// has terminated by now.
			sort.Slice(landed, func(i, j int) bool { return landed[i].lo < landed[j].lo })
			cur := lo
			for _, r := range landed {
				if r.lo != cur || r.hi != r.lo+1 {
					return false
				}
				cur = r.hi
			}
			return cur == hi && len(pool.Signals().Failed()) == 0
		},
		gen.Int64Range(-50, 50),
		gen.Int64Range(1, 64),
	))

	properties.TestingRun(t)
}
