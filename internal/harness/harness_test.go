package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/butler/internal/config"
	"github.com/roach88/butler/internal/hydrus"
)

func TestRun_Scenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(strings.TrimSuffix(filepath.Base(path), ".yaml"), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(context.Background(), scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "scenario failed:\n%s", strings.Join(result.Errors, "\n"))
			assert.Len(t, result.Runs, len(scenario.Runs))
		})
	}
}

func TestRunWithGolden_RatingSkip(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/rating_skip.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
}

const singleRule = `
rules:
  - id: tag-new
    name: Tag new imports
    conditions:
      - type: tags
        value: ["meta:new"]
    action:
      type: add_tags
      tag_service_key: k-tags
      tags_to_process: ["status:seen"]
`

func tagServices() []ServiceDef {
	return []ServiceDef{
		{Key: "k-files", Name: "my files", Type: hydrus.ServiceLocalFileDomain},
		{Key: "k-tags", Name: "my tags", Type: 5},
	}
}

func intp(n int) *int { return &n }

func quietSettings() config.Settings {
	s := config.Default()
	s.LastViewedThresholdSeconds = 0
	return s
}

func TestRun_ReportsUnmetExpectations(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: wrong_expectation
description: Expects more matches than the remote returns.
rules: |
  rules:
    - id: tag-new
      name: Tag new imports
      conditions:
        - type: tags
          value: ["meta:new"]
      action:
        type: add_tags
        tag_service_key: k-tags
        tags_to_process: ["status:seen"]
runs:
  - mode: all
    search:
      "meta:new": [aaa]
    expect:
      status: success_completed
      rules:
        tag-new: {matched: 3}
`))
	require.NoError(t, err)
	scenario.Services = tagServices()

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "runs[0]: rule tag-new: matched = 1, want 3")
}

func TestRun_UnknownRuleInRunOneStep(t *testing.T) {
	scenario := &Scenario{
		Name:     "missing_rule",
		Services: tagServices(),
		Rules:    singleRule,
		Settings: quietSettings(),
		Runs:     []RunStep{{Mode: ModeOne, Rule: "nope"}},
	}

	_, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `rule "nope" not in rules document`)
}

func TestRun_InvalidRulesDocument(t *testing.T) {
	scenario := &Scenario{Name: "bad_rules", Rules: "rules: {", Runs: []RunStep{{Mode: ModeAll}}}

	_, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse rules")
}

func TestCheckExpect_AbortMismatch(t *testing.T) {
	record := RunRecord{Step: "first"}
	errs := checkExpect("first", record, RunExpect{Aborted: true})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "first: aborted = false, want true")
}

func TestCompareRule_OnlyGivenFields(t *testing.T) {
	want := RuleExpect{Matched: intp(2), Failed: intp(0)}
	result, err := Run(context.Background(), &Scenario{
		Name:     "tagging",
		Services: tagServices(),
		Rules:    singleRule,
		Settings: quietSettings(),
		Runs: []RunStep{{
			Mode:   ModeAll,
			Search: map[string][]string{"meta:new": {"aaa", "bbb"}},
			Expect: &RunExpect{Status: "success_completed", Rules: map[string]RuleExpect{"tag-new": want}},
		}},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))

	calls := 0
	for _, c := range result.Runs[0].Calls {
		if c.Path == hydrus.PathAddTags {
			calls++
			assert.ElementsMatch(t, []string{"aaa", "bbb"}, c.Hashes)
		}
	}
	assert.Equal(t, 1, calls)
}
