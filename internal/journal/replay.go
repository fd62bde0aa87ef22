package journal

import (
	"context"
	"fmt"

	"github.com/roach88/lockstep/internal/harness"
)

// ReplayResult reports whether a stored run reproduced exactly.
type ReplayResult struct {
	RunID        string `json:"run_id"`
	ScenarioName string `json:"scenario_name"`

	// Deterministic is true when the fresh trace matches the stored
	// trace row for row.
	Deterministic bool `json:"deterministic"`

	// Mismatches describes each divergence between stored and fresh
	// events. Empty when Deterministic.
	Mismatches []string `json:"mismatches,omitempty"`
}

// ReplayCheck re-executes a stored run's scenario and compares the
// fresh trace against the stored one.
//
// Comparison is row by row on (seq, kind, target, detail), with
// detail compared as canonical JSON text. Any divergence means either
// the primitives changed behavior or something non-deterministic
// leaked into a trace.
func (j *Journal) ReplayCheck(ctx context.Context, runID string) (*ReplayResult, error) {
	run, err := j.ReadRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	stored, err := j.ReadRunEvents(ctx, runID)
	if err != nil {
		return nil, err
	}

	scenario, err := harness.ParseScenario([]byte(run.ScenarioYAML))
	if err != nil {
		return nil, fmt.Errorf("stored scenario for run %s: %w", runID, err)
	}

	result, err := harness.Run(scenario)
	if err != nil {
		return nil, fmt.Errorf("replay run %s: %w", runID, err)
	}

	replay := &ReplayResult{
		RunID:         runID,
		ScenarioName:  run.ScenarioName,
		Deterministic: true,
	}

	fresh := result.Trace
	if len(stored) != len(fresh) {
		replay.Deterministic = false
		replay.Mismatches = append(replay.Mismatches,
			fmt.Sprintf("event count: stored %d, replayed %d", len(stored), len(fresh)))
	}

	n := len(stored)
	if len(fresh) < n {
		n = len(fresh)
	}
	for i := 0; i < n; i++ {
		s := stored[i]
		f := fresh[i]

		detail, err := EncodeDetail(f)
		if err != nil {
			return nil, err
		}

		switch {
		case s.Seq != f.Seq:
			replay.addMismatch(i, "seq", fmt.Sprintf("%d", s.Seq), fmt.Sprintf("%d", f.Seq))
		case s.Kind != f.Kind:
			replay.addMismatch(i, "kind", s.Kind, f.Kind)
		case s.Target != f.Target:
			replay.addMismatch(i, "target", s.Target, f.Target)
		case s.Detail != detail:
			replay.addMismatch(i, "detail", s.Detail, detail)
		}
	}

	return replay, nil
}

func (r *ReplayResult) addMismatch(index int, field, stored, replayed string) {
	r.Deterministic = false
	r.Mismatches = append(r.Mismatches,
		fmt.Sprintf("event %d: %s differs: stored %q, replayed %q", index, field, stored, replayed))
}
