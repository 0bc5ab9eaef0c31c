package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/butler/internal/conflict"
	"github.com/roach88/butler/internal/rule"
)

// GetOverride returns the ledger row for key, or nil when there is none.
func (s *Session) GetOverride(ctx context.Context, key conflict.Key) (*conflict.Override, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT file_hash, dimension, dimension_key, winning_rule_id, winning_rule_version_id,
		       winning_rule_importance, winning_action_kind, rating_value_set, updated_at
		FROM overrides
		WHERE file_hash = ? AND dimension = ? AND dimension_key = ?
	`, key.AssetHash, string(key.Dimension), key.DimensionKey)

	o, err := scanOverride(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get override: %w", err)
	}
	return &o, nil
}

// PutOverride inserts or replaces the ledger row for o.Key.
func (s *Session) PutOverride(ctx context.Context, o conflict.Override) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO overrides
		(file_hash, dimension, dimension_key, winning_rule_id, winning_rule_version_id,
		 winning_rule_importance, winning_action_kind, rating_value_set, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_hash, dimension, dimension_key) DO UPDATE SET
			winning_rule_id = excluded.winning_rule_id,
			winning_rule_version_id = excluded.winning_rule_version_id,
			winning_rule_importance = excluded.winning_rule_importance,
			winning_action_kind = excluded.winning_action_kind,
			rating_value_set = excluded.rating_value_set,
			updated_at = excluded.updated_at
	`,
		o.AssetHash,
		string(o.Dimension),
		o.DimensionKey,
		o.RuleID,
		o.RuleVersionID,
		o.Importance,
		string(o.ActionKind),
		marshalRating(o.Rating),
		formatTime(o.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("put override: %w", err)
	}
	return nil
}

// OverrideFilter narrows ListOverrides. Empty fields match everything.
type OverrideFilter struct {
	AssetHash string
	RuleID    string
}

// ListOverrides returns matching ledger rows ordered by asset, dimension
// and key.
func (s *Session) ListOverrides(ctx context.Context, f OverrideFilter) ([]conflict.Override, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT file_hash, dimension, dimension_key, winning_rule_id, winning_rule_version_id,
		       winning_rule_importance, winning_action_kind, rating_value_set, updated_at
		FROM overrides
		WHERE (? = '' OR file_hash = ?) AND (? = '' OR winning_rule_id = ?)
		ORDER BY file_hash COLLATE BINARY, dimension, dimension_key COLLATE BINARY
	`, f.AssetHash, f.AssetHash, f.RuleID, f.RuleID)
	if err != nil {
		return nil, fmt.Errorf("query overrides: %w", err)
	}
	defer rows.Close()

	out := []conflict.Override{}
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate overrides: %w", err)
	}
	return out, nil
}

// PurgeOverridesForRule deletes every override won by ruleID.
func (s *Session) PurgeOverridesForRule(ctx context.Context, ruleID string) (int64, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM overrides WHERE winning_rule_id = ?`, ruleID)
	if err != nil {
		return 0, fmt.Errorf("purge overrides for rule %s: %w", ruleID, err)
	}
	return res.RowsAffected()
}

// PurgeStaleOverrides deletes overrides whose rule is absent from current
// (rule id to current version id) or whose recorded version differs.
func (s *Session) PurgeStaleOverrides(ctx context.Context, current map[string]string) (int64, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT DISTINCT winning_rule_id, winning_rule_version_id FROM overrides
	`)
	if err != nil {
		return 0, fmt.Errorf("query override owners: %w", err)
	}

	type owner struct{ ruleID, versionID string }
	var stale []owner
	for rows.Next() {
		var o owner
		if err := rows.Scan(&o.ruleID, &o.versionID); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan override owner: %w", err)
		}
		if v, ok := current[o.ruleID]; !ok || v != o.versionID {
			stale = append(stale, o)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterate override owners: %w", err)
	}
	rows.Close()

	var purged int64
	for _, o := range stale {
		res, err := s.q.ExecContext(ctx, `
			DELETE FROM overrides WHERE winning_rule_id = ? AND winning_rule_version_id = ?
		`, o.ruleID, o.versionID)
		if err != nil {
			return purged, fmt.Errorf("purge stale overrides for rule %s: %w", o.ruleID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return purged, fmt.Errorf("purge stale overrides for rule %s: %w", o.ruleID, err)
		}
		purged += n
	}
	return purged, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOverride(row rowScanner) (conflict.Override, error) {
	var (
		o         conflict.Override
		dimension string
		kind      string
		rating    sql.NullString
		updatedAt string
	)
	if err := row.Scan(
		&o.AssetHash, &dimension, &o.DimensionKey, &o.RuleID, &o.RuleVersionID,
		&o.Importance, &kind, &rating, &updatedAt,
	); err != nil {
		return conflict.Override{}, err
	}
	o.Dimension = conflict.Dimension(dimension)
	o.ActionKind = rule.ActionKind(kind)

	var err error
	if o.Rating, err = unmarshalRating(rating); err != nil {
		return conflict.Override{}, err
	}
	if o.Timestamp, err = parseTime(updatedAt); err != nil {
		return conflict.Override{}, err
	}
	return o, nil
}
