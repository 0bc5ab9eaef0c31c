package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/butler/internal/canon"
)

// Snapshot renders the observable outcome of a scenario as canonical
// JSON: every remote call in order and the status and counts of each rule
// in each run. Timestamps and ids are left out.
func Snapshot(name string, result *Result) ([]byte, error) {
	calls := make(canon.Array, len(result.Calls))
	for i, c := range result.Calls {
		obj := canon.Object{
			"method": canon.String(c.Method),
			"path":   canon.String(c.Path),
		}
		if len(c.Hashes) > 0 {
			obj["hashes"] = canon.Strings(c.Hashes)
		}
		calls[i] = obj
	}

	runs := make(canon.Array, len(result.Runs))
	for i, rec := range result.Runs {
		rules := make(canon.Array, len(rec.Run.Rules))
		for j, rr := range rec.Run.Rules {
			rules[j] = canon.Object{
				"rule_id": canon.String(rr.RuleID),
				"status":  canon.String(string(rr.Status)),
				"counts": canon.Object{
					"matched":          canon.Int(rr.Counts.Matched),
					"eligible":         canon.Int(rr.Counts.Eligible),
					"attempted":        canon.Int(rr.Counts.Attempted),
					"succeeded":        canon.Int(rr.Counts.Succeeded),
					"failed":           canon.Int(rr.Counts.Failed),
					"skipped_conflict": canon.Int(rr.Counts.SkippedConflict),
					"skipped_recent":   canon.Int(rr.Counts.SkippedRecent),
				},
			}
		}
		runs[i] = canon.Object{
			"step":   canon.String(rec.Step),
			"status": canon.String(string(rec.Run.Status)),
			"rules":  rules,
		}
	}

	return canon.Marshal(canon.Object{
		"scenario_name": canon.String(name),
		"calls":         calls,
		"runs":          runs,
	})
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden. It returns the result so callers
// can check Pass as well.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}

	snapshot, err := Snapshot(scenario.Name, result)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, snapshot)
	return result, nil
}
