// Package statefile persists the failed and cancelled item lists of a
// finished run so an operator can resume by re-supplying them as the next
// run's initial work. This is the only persistence in the system: the
// pending queue itself is in-memory and lost on crash.
package statefile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/pgshift/pgshift/internal/bulkcopy"
	"github.com/pgshift/pgshift/internal/partition"
	"github.com/pgshift/pgshift/internal/workpool"
)

const (
	kindPhase = "phase"
	kindCopy  = "copy"
	kindBatch = "batch"
)

type itemRecord struct {
	Job     string          `json:"job"`
	Retries int             `json:"retries"`
	Timeout time.Duration   `json:"timeout"`
	Kind    string          `json:"kind"`
	Spec    json.RawMessage `json:"spec"`
}

type StateFile struct {
	RunId     string       `json:"runId"`
	Written   time.Time    `json:"written"`
	Failed    []itemRecord `json:"failed"`
	Cancelled []itemRecord `json:"cancelled"`
	// Counters carries the run's accumulated counter map. The partition
	// driver gates constrain on its covered counters, so a resume without
	// them would re-copy the remainder and then stall before constrain.
	Counters map[string]int64 `json:"counters,omitempty"`
}

// Write serializes the failed and cancelled lists of signals into a state
// file under dir and returns its path. Nothing is written when both lists
// are empty.
func Write(dir string, signals *workpool.Signals) (string, error) {
	failed, err := encodeItems(signals.Failed())
	if err != nil {
		return "", err
	}
	cancelled, err := encodeItems(signals.Cancelled())
	if err != nil {
		return "", err
	}
	if len(failed) == 0 && len(cancelled) == 0 {
		return "", nil
	}

	state := StateFile{
		RunId:     uuid.NewString(),
		Written:   time.Now().UTC(),
		Failed:    failed,
		Cancelled: cancelled,
		Counters:  signals.Counters(),
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return "", errors.WithStack(err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.WithStack(err)
	}
	path := filepath.Join(dir, "pgshift-state-"+state.RunId+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.WithStack(err)
	}
	return path, nil
}

// Read loads a state file and reconstructs its items and counters. Failed
// and cancelled items are returned together: both are simply work to
// re-enqueue. The counters must be seeded into the resuming pool so the
// drivers' coverage bookkeeping carries over.
func Read(path string) ([]workpool.Item, map[string]int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}
	var state StateFile
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, nil, errors.Wrapf(err, "parsing state file %s", path)
	}

	items, err := decodeItems(state.Failed)
	if err != nil {
		return nil, nil, err
	}
	cancelled, err := decodeItems(state.Cancelled)
	if err != nil {
		return nil, nil, err
	}
	return append(items, cancelled...), state.Counters, nil
}

func encodeItems(items []workpool.Item) ([]itemRecord, error) {
	records := make([]itemRecord, 0, len(items))
	for _, item := range items {
		var kind string
		switch item.Spec.(type) {
		case partition.PhaseSpec:
			kind = kindPhase
		case partition.CopySpec:
			kind = kindCopy
		case bulkcopy.BatchSpec:
			kind = kindBatch
		default:
			return nil, errors.Errorf("cannot persist work item %q with spec type %T", item.Job, item.Spec)
		}
		spec, err := json.Marshal(item.Spec)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		records = append(records, itemRecord{
			Job:     item.Job,
			Retries: item.Retries,
			Timeout: item.Timeout,
			Kind:    kind,
			Spec:    spec,
		})
	}
	return records, nil
}

func decodeItems(records []itemRecord) ([]workpool.Item, error) {
	items := make([]workpool.Item, 0, len(records))
	for _, record := range records {
		var spec any
		switch record.Kind {
		case kindPhase:
			var s partition.PhaseSpec
			if err := json.Unmarshal(record.Spec, &s); err != nil {
				return nil, errors.WithStack(err)
			}
			spec = s
		case kindCopy:
			var s partition.CopySpec
			if err := json.Unmarshal(record.Spec, &s); err != nil {
				return nil, errors.WithStack(err)
			}
			spec = s
		case kindBatch:
			var s bulkcopy.BatchSpec
			if err := json.Unmarshal(record.Spec, &s); err != nil {
				return nil, errors.WithStack(err)
			}
			spec = s
		default:
			return nil, errors.Errorf("state file contains unknown item kind %q", record.Kind)
		}
		items = append(items, workpool.Item{
			Job:     record.Job,
			Retries: record.Retries,
			Timeout: record.Timeout,
			Spec:    spec,
		})
	}
	return items, nil
}
