package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRulesValidate(t *testing.T) {
	tests := []struct {
		name     string
		rules    string
		wantErr  bool
		contains []string
	}{
		{
			name:     "valid",
			rules:    favouritesRules,
			contains: []string{"✓ 1 rule(s) valid"},
		},
		{
			name: "unknown action",
			rules: `
rules:
  - id: r1
    action:
      type: teleport
`,
			wantErr:  true,
			contains: []string{`✗ r1: action: rule r1: invalid action: unknown action type "teleport"`},
		},
		{
			name: "schema violation",
			rules: `
rules:
  - name: no id
    action:
      type: add_to
`,
			wantErr:  true,
			contains: []string{"✗ "},
		},
		{
			name: "duplicate ids",
			rules: `
rules:
  - id: r1
    action: {type: add_to, destination_service_keys: [k]}
  - id: r1
    action: {type: add_to, destination_service_keys: [k]}
`,
			wantErr:  true,
			contains: []string{`duplicate rule id "r1"`},
		},
		{
			name: "unreadable condition warns",
			rules: `
rules:
  - id: r1
    conditions:
      - type: or_group
        conditions:
          - type: filesize
            operator: ">"
            value: big
            unit: MB
    action: {type: add_to, destination_service_keys: [k]}
`,
			contains: []string{
				"! r1: conditions[0].conditions[0]: filesize:",
				"✓ 1 rule(s) valid",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "rules.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.rules), 0o644))

			out, err := execute(t, "rules", "validate", path)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, ExitFailure, GetExitCode(err))
			} else {
				require.NoError(t, err)
			}
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
		})
	}
}

func TestRulesValidate_JSON(t *testing.T) {
	out, err := execute(t, "--rules", "testdata/rules.yaml", "--format", "json", "rules", "validate")
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeRulesFile, resp.Error.Code)

	assert.False(t, resp.Data.Valid)
	assert.Equal(t, 5, resp.Data.Rules)
	require.Len(t, resp.Data.Errors, 1)
	assert.Equal(t, "broken", resp.Data.Errors[0].RuleID)
	require.Len(t, resp.Data.Warnings, 1)
	assert.Equal(t, "conditions[0]", resp.Data.Warnings[0].Field)
}

func TestOverridesPurge_EmptyLedger(t *testing.T) {
	db := filepath.Join(t.TempDir(), "butler.db")

	out, err := execute(t, "--db", db, "overrides", "purge", "--rule", "rate-favs")
	require.NoError(t, err)
	assert.Equal(t, "Removed 0 overrides won by rate-favs\n", out)

	out, err = execute(t, "--db", db, "--format", "json", "overrides", "list")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","data":[]}`, out)
}
