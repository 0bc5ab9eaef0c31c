package store

import (
	"context"
	"fmt"
	"time"
)

// Run is one row of execution_runs.
type Run struct {
	ID        string
	Type      string
	StartedAt time.Time
	EndedAt   time.Time
	Status    string
	Summary   string
}

// RuleExecution is one rule's outcome within a run.
type RuleExecution struct {
	ID            string
	RunID         string
	RuleID        string
	RuleVersionID string
	Order         int
	StartedAt     time.Time
	EndedAt       time.Time
	Status        string
	Matched       int
	Eligible      int
	Attempted     int
	Succeeded     int
	Summary       string
	// Details is encoded as JSON.
	Details any
}

// FileAction is the outcome of one action on one asset.
type FileAction struct {
	RuleExecutionID string
	AssetHash       string
	ActionKind      string
	// Params and Override are encoded as JSON; a nil Override stores NULL.
	Params     any
	Status     string
	Error      string
	Override   any
	RecordedAt time.Time
}

// StartRun inserts a run row.
func (s *Session) StartRun(ctx context.Context, r Run) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO execution_runs (run_id, run_type, started_at, status, summary)
		VALUES (?, ?, ?, ?, ?)
	`, r.ID, r.Type, formatTime(r.StartedAt), r.Status, nullString(r.Summary))
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// FinishRun stamps a run's end time, status and summary.
func (s *Session) FinishRun(ctx context.Context, r Run) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE execution_runs SET ended_at = ?, status = ?, summary = ?
		WHERE run_id = ?
	`, formatTime(r.EndedAt), r.Status, nullString(r.Summary), r.ID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// StartRuleExecution inserts a rule execution row in the "started" state.
func (s *Session) StartRuleExecution(ctx context.Context, e RuleExecution) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO rule_executions
		(rule_execution_id, run_id, rule_id, rule_version_id, execution_order, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.RunID, e.RuleID, nullString(e.RuleVersionID), e.Order, formatTime(e.StartedAt), e.Status)
	if err != nil {
		return fmt.Errorf("start rule execution: %w", err)
	}
	return nil
}

// FinishRuleExecution records a rule execution's counts and outcome.
func (s *Session) FinishRuleExecution(ctx context.Context, e RuleExecution) error {
	details, err := marshalJSON(e.Details)
	if err != nil {
		return fmt.Errorf("finish rule execution: %w", err)
	}
	_, err = s.q.ExecContext(ctx, `
		UPDATE rule_executions
		SET ended_at = ?, status = ?, matched_count = ?, eligible_count = ?,
		    attempted_count = ?, succeeded_count = ?, summary = ?, details_json = ?
		WHERE rule_execution_id = ?
	`,
		formatTime(e.EndedAt),
		e.Status,
		e.Matched,
		e.Eligible,
		e.Attempted,
		e.Succeeded,
		nullString(e.Summary),
		details,
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("finish rule execution: %w", err)
	}
	return nil
}

// AppendFileAction appends one per-asset audit row.
func (s *Session) AppendFileAction(ctx context.Context, a FileAction) error {
	params, err := marshalJSON(a.Params)
	if err != nil {
		return fmt.Errorf("append file action: %w", err)
	}
	var override string
	if a.Override != nil {
		if override, err = marshalJSON(a.Override); err != nil {
			return fmt.Errorf("append file action: %w", err)
		}
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO file_action_details
		(rule_execution_id, file_hash, action_kind, params_json, status, error_message, override_json, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.RuleExecutionID,
		a.AssetHash,
		a.ActionKind,
		params,
		a.Status,
		nullString(a.Error),
		nullString(override),
		formatTime(a.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("append file action: %w", err)
	}
	return nil
}

// CountFileActions returns the number of audit rows for a rule execution
// with the given status; an empty status counts every row.
func (s *Session) CountFileActions(ctx context.Context, ruleExecutionID, status string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM file_action_details
		WHERE rule_execution_id = ? AND (? = '' OR status = ?)
	`, ruleExecutionID, status, status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count file actions: %w", err)
	}
	return n, nil
}
