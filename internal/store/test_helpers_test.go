package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/butler/internal/conflict"
	"github.com/roach88/butler/internal/rule"
)

// createTestStore opens a fresh database in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testTime = time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC)

// createTestOverride builds a placement override won by ruleID.
func createTestOverride(hash, ruleID, versionID string, importance int) conflict.Override {
	return conflict.Override{
		Key:           conflict.Key{AssetHash: hash, Dimension: conflict.DimensionPlacement},
		RuleID:        ruleID,
		RuleVersionID: versionID,
		Importance:    importance,
		ActionKind:    rule.ActionAddTo,
		Timestamp:     testTime,
	}
}

// startTestExecution creates a run and a rule execution that audit rows
// can hang off.
func startTestExecution(t *testing.T, s *Store, runID, execID string) {
	t.Helper()
	ctx := context.Background()
	if err := s.StartRun(ctx, Run{ID: runID, Type: "all", StartedAt: testTime, Status: "running"}); err != nil {
		t.Fatalf("StartRun() failed: %v", err)
	}
	if err := s.StartRuleExecution(ctx, RuleExecution{
		ID: execID, RunID: runID, RuleID: "r1", Order: 1, StartedAt: testTime, Status: "started",
	}); err != nil {
		t.Fatalf("StartRuleExecution() failed: %v", err)
	}
}
