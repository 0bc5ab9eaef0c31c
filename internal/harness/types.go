package harness

import "github.com/roach88/butler/internal/engine"

// RunRecord is the outcome of one run step.
type RunRecord struct {
	Step   string
	Run    engine.RunResult
	Err    error
	Calls  []Call
	Single bool
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expectation and assertion held.
	Pass bool

	// Runs holds one record per run step, in order.
	Runs []RunRecord

	// Calls is every remote request across all runs, in order.
	Calls []Call

	// Errors contains expectation and assertion failures.
	Errors []string
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true, Errors: []string{}}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// ruleResults returns every result recorded for ruleID across runs.
func (r *Result) ruleResults(ruleID string) []engine.RuleResult {
	var out []engine.RuleResult
	for _, run := range r.Runs {
		for _, rr := range run.Run.Rules {
			if rr.RuleID == ruleID {
				out = append(out, rr)
			}
		}
	}
	return out
}
