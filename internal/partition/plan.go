package partition

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/pgshift/pgshift/internal/pgshifterrors"
)

// Plan enumerates the partitions covering [lo, hi) in contiguous chunks of
// size sequence values. The final partition is truncated to hi. Partitions
// are named after their lower bound so a re-planned run produces the same
// names.
func Plan(parent string, lo, hi, size int64) ([]Partition, error) {
	if size < 1 {
		return nil, errors.WithStack(&pgshifterrors.ErrInvalidArgument{
			Name:    "size",
			Value:   size,
			Message: "partition size must be positive",
		})
	}
	if hi <= lo {
		return nil, errors.WithStack(&pgshifterrors.ErrInvalidArgument{
			Name:    "hi",
			Value:   hi,
			Message: fmt.Sprintf("upper bound must exceed lower bound %d", lo),
		})
	}
	var partitions []Partition
	for cur := lo; cur < hi; cur += size {
		end := cur + size
		if end > hi {
			end = hi
		}
		partitions = append(partitions, Partition{
			Parent: parent,
			Name:   fmt.Sprintf("%s_p%d", parent, cur),
			Lo:     cur,
			Hi:     end,
		})
	}
	return partitions, nil
}
