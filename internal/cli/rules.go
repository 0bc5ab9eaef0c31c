package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/butler/internal/rule"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Rules    int               `json:"rules"`
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// ValidationIssue is one problem found in the rules file.
type ValidationIssue struct {
	RuleID  string `json:"rule_id,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// NewRulesCommand creates the rules command group.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Work with the rules file",
	}
	cmd.AddCommand(newRulesValidateCommand(rootOpts))
	return cmd
}

func newRulesValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [rules-file]",
		Short: "Validate the rules file without contacting the remote",
		Long: `Check the rules file against the schema, then check every rule's
action. Conditions whose values cannot be read are reported as warnings:
they are dropped when the rule runs.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runRulesValidate(rootOpts, path, cmd)
		},
	}
}

func runRulesValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	if path == "" {
		settings, err := resolveSettings(opts)
		if err != nil {
			return err
		}
		path = settings.RulesFile
	}
	formatter.VerboseLog("Validating %s", path)

	rules, err := rule.LoadFile(path)
	if err != nil {
		issue := ValidationIssue{Message: err.Error()}
		var schemaErr *rule.SchemaError
		if errors.As(err, &schemaErr) {
			issue = ValidationIssue{Field: schemaErr.Path, Message: schemaErr.Message}
		}
		return outputValidation(formatter, ValidationResult{Errors: []ValidationIssue{issue}})
	}

	result := ValidationResult{Rules: len(rules)}
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			result.Errors = append(result.Errors, ValidationIssue{RuleID: r.ID, Field: "action", Message: err.Error()})
		}
		for _, problem := range conditionProblems(r.Conditions, "conditions") {
			problem.RuleID = r.ID
			result.Warnings = append(result.Warnings, problem)
		}
	}
	result.Valid = len(result.Errors) == 0
	return outputValidation(formatter, result)
}

func conditionProblems(conds []rule.Condition, prefix string) []ValidationIssue {
	var out []ValidationIssue
	for i, c := range conds {
		field := fmt.Sprintf("%s[%d]", prefix, i)
		if c.Problem != "" {
			out = append(out, ValidationIssue{Field: field, Message: fmt.Sprintf("%s: %s", c.Kind, c.Problem)})
		}
		out = append(out, conditionProblems(c.Children, field+".conditions")...)
	}
	return out
}

func outputValidation(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		response := CLIResponse{Status: "ok", Data: result}
		if !result.Valid {
			response.Status = "error"
			response.Error = &CLIError{Code: ErrCodeRulesFile, Message: result.Errors[0].Message}
		}
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
	} else {
		for _, issue := range result.Errors {
			fmt.Fprintf(formatter.Writer, "%s %s\n", formatter.Mark(false), issue.describe())
		}
		for _, issue := range result.Warnings {
			fmt.Fprintf(formatter.Writer, "%s %s\n", formatter.WarnMark(), issue.describe())
		}
		if result.Valid {
			fmt.Fprintf(formatter.Writer, "%s %d rule(s) valid\n", formatter.Mark(true), result.Rules)
		}
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %d error(s)", ErrCodeRulesFile, len(result.Errors)))
	}
	return nil
}

func (i ValidationIssue) describe() string {
	s := i.Message
	if i.Field != "" {
		s = i.Field + ": " + s
	}
	if i.RuleID != "" {
		s = i.RuleID + ": " + s
	}
	return s
}
