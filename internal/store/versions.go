package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/butler/internal/rule"
)

// EnsureRuleVersion records v unless a version with the same id exists.
// Identical rule content therefore always maps to one row.
func (s *Session) EnsureRuleVersion(ctx context.Context, v rule.Version) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO rule_versions
		(rule_version_id, rule_id, rule_name, importance, conditions_json, action_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(rule_version_id) DO NOTHING
	`,
		v.ID,
		v.RuleID,
		v.Name,
		v.Importance,
		v.Conditions,
		v.Action,
		formatTime(v.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("ensure rule version: %w", err)
	}
	return nil
}

// GetRuleVersion returns the version with id. The bool is false when no
// such version exists.
func (s *Session) GetRuleVersion(ctx context.Context, id string) (rule.Version, bool, error) {
	var (
		v         rule.Version
		createdAt string
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT rule_version_id, rule_id, rule_name, importance, conditions_json, action_json, created_at
		FROM rule_versions
		WHERE rule_version_id = ?
	`, id).Scan(&v.ID, &v.RuleID, &v.Name, &v.Importance, &v.Conditions, &v.Action, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rule.Version{}, false, nil
	}
	if err != nil {
		return rule.Version{}, false, fmt.Errorf("get rule version: %w", err)
	}
	if v.CreatedAt, err = parseTime(createdAt); err != nil {
		return rule.Version{}, false, err
	}
	return v, true, nil
}
