package engine

import (
	"fmt"
	"time"
)

// Status is the terminal status recorded for a rule execution or a run.
type Status string

// Rule statuses.
const (
	StatusActionsProcessed Status = "success_actions_processed"
	StatusNoMatches        Status = "success_no_matches"
	StatusNoneEligible     Status = "success_no_actions_eligible"

	StatusSetupFailed       Status = "failure_setup"
	StatusTranslationFailed Status = "failure_translation"
	StatusSearchFailed      Status = "failure_search"
	StatusActionPartial     Status = "failure_action_partial"
	StatusActionAll         Status = "failure_action_all"

	StatusVersioningError   Status = "error_versioning"
	StatusServicesLoadError Status = "error_services_load"
	StatusPersistenceError  Status = "error_persistence"

	statusStarted Status = "started"
)

// Run statuses.
const (
	RunCompleted             Status = "success_completed"
	RunCompletedWithFailures Status = "completed_with_failures"
	RunAborted               Status = "error_critical_runtime"
)

// Run types.
const (
	RunTypeScheduled = "scheduled"
	RunTypeManual    = "manual"
)

// Outcome classifies a status.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial_failure"
	OutcomeAborted Outcome = "aborted"
)

// Outcome maps a rule status to its terminal outcome.
func (s Status) Outcome() Outcome {
	switch s {
	case StatusActionsProcessed, StatusNoMatches, StatusNoneEligible:
		return OutcomeSuccess
	case StatusActionPartial, StatusActionAll:
		return OutcomePartial
	}
	return OutcomeAborted
}

// Counts tallies assets through the pipeline.
type Counts struct {
	Matched         int `json:"matched"`
	Eligible        int `json:"eligible"`
	Attempted       int `json:"attempted"`
	Succeeded       int `json:"succeeded"`
	Failed          int `json:"failed"`
	SkippedConflict int `json:"skipped_conflict"`
	SkippedRecent   int `json:"skipped_recent"`
}

// RuleResult is the outcome of one rule execution.
type RuleResult struct {
	RuleID        string            `json:"rule_id"`
	RuleName      string            `json:"rule_name"`
	RuleVersionID string            `json:"rule_version_id,omitempty"`
	ExecutionID   string            `json:"execution_id"`
	Order         int               `json:"order"`
	Status        Status            `json:"status"`
	Counts        Counts            `json:"counts"`
	Warnings      []string          `json:"warnings,omitempty"`
	Failures      map[string]string `json:"failures,omitempty"`
	Err           *RunError         `json:"-"`
	StartedAt     time.Time         `json:"started_at"`
	EndedAt       time.Time         `json:"ended_at"`
}

// Succeeded reports whether the rule finished without failures.
func (r RuleResult) Succeeded() bool { return r.Status.Outcome() == OutcomeSuccess }

// Summary is a one-line description for logs and the audit trail.
func (r RuleResult) Summary() string {
	c := r.Counts
	switch r.Status {
	case StatusNoMatches:
		return "no assets matched"
	case StatusNoneEligible:
		return fmt.Sprintf("%d matched, none eligible (%d skipped by override, %d recently viewed)",
			c.Matched, c.SkippedConflict, c.SkippedRecent)
	case StatusActionsProcessed, StatusActionPartial, StatusActionAll:
		return fmt.Sprintf("%d matched, %d eligible, %d of %d actions succeeded",
			c.Matched, c.Eligible, c.Succeeded, c.Attempted)
	}
	if r.Err != nil {
		return r.Err.Message
	}
	return string(r.Status)
}

func (r RuleResult) details() map[string]any {
	d := map[string]any{"counts": r.Counts}
	if len(r.Warnings) > 0 {
		d["warnings"] = r.Warnings
	}
	if r.Err != nil {
		d["error_code"] = r.Err.Code
		d["error"] = r.Err.Error()
	}
	return d
}

// RunResult is the outcome of RunAll or RunOne.
type RunResult struct {
	RunID     string       `json:"run_id"`
	Type      string       `json:"type"`
	Status    Status       `json:"status"`
	Rules     []RuleResult `json:"rules"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   time.Time    `json:"ended_at"`
}

// Summary is a one-line description of the run.
func (r RunResult) Summary() string {
	failed, actions := 0, 0
	for _, rr := range r.Rules {
		if !rr.Succeeded() {
			failed++
		}
		actions += rr.Counts.Succeeded
	}
	return fmt.Sprintf("%d rules executed, %d with failures, %d actions succeeded", len(r.Rules), failed, actions)
}

func runStatus(rules []RuleResult) Status {
	for _, rr := range rules {
		if !rr.Succeeded() {
			return RunCompletedWithFailures
		}
	}
	return RunCompleted
}
