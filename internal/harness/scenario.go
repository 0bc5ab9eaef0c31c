package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/butler/internal/config"
	"github.com/roach88/butler/internal/conflict"
	"github.com/roach88/butler/internal/hydrus"
)

// Scenario defines a conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Services is the catalog the scripted remote reports.
	Services []ServiceDef `yaml:"services"`

	// Files maps asset hashes to the local file domains holding them
	// before the first run.
	Files map[string][]string `yaml:"files,omitempty"`

	// Rules is an inline rules document. RulesFile, relative to the
	// scenario file, is used when Rules is empty.
	Rules     string `yaml:"rules,omitempty"`
	RulesFile string `yaml:"rules_file,omitempty"`

	// Settings overlays the engine settings. The recency filter is off
	// unless set here.
	Settings config.Settings `yaml:"settings,omitempty"`

	// Runs execute in order against the same store and remote.
	Runs []RunStep `yaml:"runs"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// ServiceDef is one service in the scripted catalog.
type ServiceDef struct {
	Key      string             `yaml:"key"`
	Name     string             `yaml:"name"`
	Type     hydrus.ServiceType `yaml:"type"`
	MaxStars int                `yaml:"max_stars,omitempty"`
}

// Run modes.
const (
	ModeAll = "all"
	ModeOne = "one"
)

// RunStep scripts the remote for one run and states its expected outcome.
type RunStep struct {
	// Name labels the step in failure messages.
	Name string `yaml:"name,omitempty"`

	// Mode is "all" (RunAll) or "one" (RunOne of Rule).
	Mode string `yaml:"mode"`
	Rule string `yaml:"rule,omitempty"`

	// Search maps a substring of the encoded search predicates to the
	// hashes returned when it occurs. Results of every matching entry are
	// merged.
	Search map[string][]string `yaml:"search,omitempty"`

	// Recent lists hashes viewed within the recency threshold.
	Recent []string `yaml:"recent,omitempty"`

	// Refuse fails remote writes for specific hashes during this run.
	Refuse []Refusal `yaml:"refuse,omitempty"`

	Expect *RunExpect `yaml:"expect,omitempty"`
}

// Refusal fails every write to Path that carries Hash.
type Refusal struct {
	Path string `yaml:"path"`
	Hash string `yaml:"hash"`
}

// RunExpect is the expected outcome of a run.
type RunExpect struct {
	// Status is the run status, or the rule status for mode "one".
	Status string `yaml:"status"`
	// Aborted expects the run to end with an error.
	Aborted bool `yaml:"aborted,omitempty"`
	// Rules holds per-rule expectations keyed by rule id. Only the
	// fields given are compared.
	Rules map[string]RuleExpect `yaml:"rules,omitempty"`
}

// RuleExpect is a subset match against one rule result.
type RuleExpect struct {
	Status          string `yaml:"status,omitempty"`
	Matched         *int   `yaml:"matched,omitempty"`
	Eligible        *int   `yaml:"eligible,omitempty"`
	Succeeded       *int   `yaml:"succeeded,omitempty"`
	Failed          *int   `yaml:"failed,omitempty"`
	SkippedConflict *int   `yaml:"skipped_conflict,omitempty"`
	SkippedRecent   *int   `yaml:"skipped_recent,omitempty"`
	Warnings        *int   `yaml:"warnings,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Asset, Dimension and Key identify an override (override,
	// no_override) or an asset (membership, audit_count, remote_calls).
	Asset     string             `yaml:"asset,omitempty"`
	Dimension conflict.Dimension `yaml:"dimension,omitempty"`
	Key       string             `yaml:"key,omitempty"`

	// Rule is the expected winner (override) or the audited rule
	// (audit_count).
	Rule string `yaml:"rule,omitempty"`

	// Rating is the expected recorded rating as JSON text ("5", "true").
	Rating string `yaml:"rating,omitempty"`

	// Services is the expected membership of Asset.
	Services []string `yaml:"services,omitempty"`

	// Path is the remote endpoint counted by remote_calls.
	Path string `yaml:"path,omitempty"`

	// Status filters audit rows (audit_count); empty counts all.
	Status string `yaml:"status,omitempty"`

	// Count is the expected number of calls or audit rows.
	Count int `yaml:"count"`
}

// Assertion type constants.
const (
	AssertOverride    = "override"
	AssertNoOverride  = "no_override"
	AssertMembership  = "membership"
	AssertRemoteCalls = "remote_calls"
	AssertAuditCount  = "audit_count"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected, and RulesFile is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if scenario.RulesFile != "" && !filepath.IsAbs(scenario.RulesFile) {
		scenario.RulesFile = filepath.Join(filepath.Dir(path), scenario.RulesFile)
	}
	if scenario.Rules == "" {
		rules, err := os.ReadFile(scenario.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("invalid scenario: rules file: %w", err)
		}
		scenario.Rules = string(rules)
	}
	return scenario, nil
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	scenario := Scenario{Settings: config.Default()}
	scenario.Settings.LastViewedThresholdSeconds = 0

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Rules == "" && s.RulesFile == "" {
		return fmt.Errorf("rules or rules_file is required")
	}
	if len(s.Runs) == 0 {
		return fmt.Errorf("runs list is required and must be non-empty")
	}
	if err := s.Settings.Validate(); err != nil {
		return fmt.Errorf("settings: %w", err)
	}

	for i, svc := range s.Services {
		if svc.Key == "" {
			return fmt.Errorf("services[%d]: key is required", i)
		}
	}

	for i, run := range s.Runs {
		switch run.Mode {
		case ModeAll:
		case ModeOne:
			if run.Rule == "" {
				return fmt.Errorf("runs[%d]: rule is required for mode %q", i, ModeOne)
			}
		default:
			return fmt.Errorf("runs[%d]: unknown mode %q", i, run.Mode)
		}
		for j, r := range run.Refuse {
			if r.Path == "" || r.Hash == "" {
				return fmt.Errorf("runs[%d].refuse[%d]: path and hash are required", i, j)
			}
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertOverride, AssertNoOverride:
		if a.Asset == "" || a.Dimension == "" {
			return fmt.Errorf("assertions[%d]: asset and dimension are required for %s", index, a.Type)
		}
		if a.Type == AssertOverride && a.Rule == "" {
			return fmt.Errorf("assertions[%d]: rule is required for %s", index, a.Type)
		}
	case AssertMembership:
		if a.Asset == "" {
			return fmt.Errorf("assertions[%d]: asset is required for %s", index, a.Type)
		}
	case AssertRemoteCalls:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for %s", index, a.Type)
		}
	case AssertAuditCount:
		if a.Rule == "" {
			return fmt.Errorf("assertions[%d]: rule is required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}
	return nil
}
