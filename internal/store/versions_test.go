package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/butler/internal/rule"
)

func TestRuleVersion_EnsureIsIdempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	r := rule.Rule{
		ID:         "r1",
		Name:       "Archive favourites",
		Importance: 2,
		Conditions: []rule.Condition{{Kind: rule.ConditionBoolean, Operator: "inbox", Bool: true}},
		Action:     rule.AddTo{Destinations: []string{"archive"}},
	}
	v, err := rule.NewVersion(r, testTime)
	require.NoError(t, err)

	require.NoError(t, s.EnsureRuleVersion(ctx, v))
	renamed := v
	renamed.Name = "renamed"
	require.NoError(t, s.EnsureRuleVersion(ctx, renamed))

	var count int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM rule_versions").Scan(&count))
	assert.Equal(t, 1, count)

	got, ok, err := s.GetRuleVersion(ctx, v.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, v, got, "first writer's name is kept")
}

func TestRuleVersion_GetMissing(t *testing.T) {
	s := createTestStore(t)

	_, ok, err := s.GetRuleVersion(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}
