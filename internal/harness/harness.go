package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/butler/internal/engine"
	"github.com/roach88/butler/internal/hydrus"
	"github.com/roach88/butler/internal/logging"
	"github.com/roach88/butler/internal/rule"
	"github.com/roach88/butler/internal/store"
	"github.com/roach88/butler/internal/testutil"
)

// Harness holds the per-scenario components.
type Harness struct {
	store  *store.Store
	remote *scriptedRemote
	engine *engine.Engine
	rules  []rule.Rule
}

// Run executes a scenario and returns the result.
//
// Each scenario gets a fresh SQLite database in a temporary directory and
// its own scripted remote. Execution flow:
//  1. Parse the rules document
//  2. Start the scripted remote and open the store
//  3. Execute each run step, checking its expectations
//  4. Evaluate assertions against the final state
//
// The returned error covers setup problems only; unmet expectations are
// reported in the result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	rules, err := rule.Parse([]byte(scenario.Rules))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}

	dir, err := os.MkdirTemp("", "butler-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario dir: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "scenario.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	remote := newScriptedRemote(scenario)
	defer remote.Close()

	client := hydrus.New(remote.URL(), "harness", hydrus.WithTimeout(scenario.Settings.RequestTimeout()))
	eng := engine.New(st, client, hydrus.NewCatalog(client),
		engine.WithSettings(scenario.Settings),
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithIDGenerator(testutil.NewSequentialIDs("scenario")),
	)

	h := &Harness{store: st, remote: remote, engine: eng, rules: rules}

	// Suppress engine logs.
	ctx = logging.NewContext(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)))

	result := NewResult()
	for i, step := range scenario.Runs {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, err
		}
	}
	result.Calls = remote.Calls()

	actx := &AssertionContext{Ctx: ctx, Store: st, Remote: remote, Result: result}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) executeStep(ctx context.Context, index int, step RunStep, result *Result) error {
	label := step.Name
	if label == "" {
		label = fmt.Sprintf("runs[%d]", index)
	}

	before := len(h.remote.Calls())
	h.remote.script(step)

	record := RunRecord{Step: label}
	switch step.Mode {
	case ModeAll:
		record.Run, record.Err = h.engine.RunAll(ctx, h.rules)
	case ModeOne:
		r, ok := findRule(h.rules, step.Rule)
		if !ok {
			return fmt.Errorf("%s: rule %q not in rules document", label, step.Rule)
		}
		record.Single = true
		rr, err := h.engine.RunOne(ctx, r)
		record.Run = engine.RunResult{Type: engine.RunTypeManual, Status: rr.Status, Rules: []engine.RuleResult{rr}}
		record.Err = err
	}
	record.Calls = h.remote.Calls()[before:]
	result.Runs = append(result.Runs, record)

	if step.Expect != nil {
		for _, msg := range checkExpect(label, record, *step.Expect) {
			result.AddError(msg)
		}
	}
	return nil
}

func findRule(rules []rule.Rule, id string) (rule.Rule, bool) {
	for _, r := range rules {
		if r.ID == id {
			return r, true
		}
	}
	return rule.Rule{}, false
}

// checkExpect compares a run record against its expectation.
func checkExpect(label string, record RunRecord, want RunExpect) []string {
	var errs []string
	if want.Aborted != (record.Err != nil) {
		errs = append(errs, fmt.Sprintf("%s: aborted = %v, want %v (err: %v)", label, record.Err != nil, want.Aborted, record.Err))
	}
	if want.Status != "" && string(record.Run.Status) != want.Status {
		errs = append(errs, fmt.Sprintf("%s: status = %s, want %s", label, record.Run.Status, want.Status))
	}

	for ruleID, re := range want.Rules {
		var got *engine.RuleResult
		for i := range record.Run.Rules {
			if record.Run.Rules[i].RuleID == ruleID {
				got = &record.Run.Rules[i]
				break
			}
		}
		if got == nil {
			errs = append(errs, fmt.Sprintf("%s: rule %s did not run", label, ruleID))
			continue
		}
		errs = append(errs, compareRule(label, *got, re)...)
	}
	return errs
}

func compareRule(label string, got engine.RuleResult, want RuleExpect) []string {
	var errs []string
	prefix := fmt.Sprintf("%s: rule %s", label, got.RuleID)
	if want.Status != "" && string(got.Status) != want.Status {
		errs = append(errs, fmt.Sprintf("%s: status = %s, want %s", prefix, got.Status, want.Status))
	}

	counts := []struct {
		name string
		want *int
		got  int
	}{
		{"matched", want.Matched, got.Counts.Matched},
		{"eligible", want.Eligible, got.Counts.Eligible},
		{"succeeded", want.Succeeded, got.Counts.Succeeded},
		{"failed", want.Failed, got.Counts.Failed},
		{"skipped_conflict", want.SkippedConflict, got.Counts.SkippedConflict},
		{"skipped_recent", want.SkippedRecent, got.Counts.SkippedRecent},
		{"warnings", want.Warnings, len(got.Warnings)},
	}
	for _, c := range counts {
		if c.want != nil && *c.want != c.got {
			errs = append(errs, fmt.Sprintf("%s: %s = %d, want %d", prefix, c.name, c.got, *c.want))
		}
	}
	return errs
}
