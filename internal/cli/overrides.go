package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/butler/internal/conflict"
	"github.com/roach88/butler/internal/store"
)

// OverrideEntry is one override ledger row in CLI output.
type OverrideEntry struct {
	AssetHash     string    `json:"asset_hash"`
	Dimension     string    `json:"dimension"`
	DimensionKey  string    `json:"dimension_key,omitempty"`
	RuleID        string    `json:"rule_id"`
	RuleVersionID string    `json:"rule_version_id"`
	Importance    int       `json:"importance"`
	ActionKind    string    `json:"action"`
	Rating        *string   `json:"rating,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PurgeResult reports a purge.
type PurgeResult struct {
	RuleID  string `json:"rule_id"`
	Removed int64  `json:"removed"`
}

// NewOverridesCommand creates the overrides command group.
func NewOverridesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overrides",
		Short: "Inspect or purge the override ledger",
	}
	cmd.AddCommand(newOverridesListCommand(rootOpts))
	cmd.AddCommand(newOverridesPurgeCommand(rootOpts))
	return cmd
}

func newOverridesListCommand(rootOpts *RootOptions) *cobra.Command {
	var filter store.OverrideFilter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded overrides",
		Long: `List the override ledger: for each asset and dimension, the rule that
last won it. Filter by asset hash or by winning rule id.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOverridesList(rootOpts, filter, cmd)
		},
	}

	cmd.Flags().StringVar(&filter.AssetHash, "asset", "", "only overrides on this asset hash")
	cmd.Flags().StringVar(&filter.RuleID, "rule", "", "only overrides won by this rule id")
	return cmd
}

func newOverridesPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	var ruleID string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every override won by a rule",
		Long: `Delete every override won by the given rule, releasing its assets to
rules of any importance on the next run.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOverridesPurge(rootOpts, ruleID, cmd)
		},
	}

	cmd.Flags().StringVar(&ruleID, "rule", "", "rule id (required)")
	_ = cmd.MarkFlagRequired("rule")
	return cmd
}

func openStore(opts *RootOptions) (*store.Store, error) {
	settings, err := resolveSettings(opts)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(settings.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func runOverridesList(opts *RootOptions, filter store.OverrideFilter, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	overrides, err := st.ListOverrides(cmd.Context(), filter)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to list overrides", err)
	}

	entries := make([]OverrideEntry, 0, len(overrides))
	for _, o := range overrides {
		entries = append(entries, overrideEntry(o))
	}

	if formatter.Format == "json" {
		return formatter.Success(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(formatter.Writer, "No overrides recorded")
		return nil
	}
	for _, e := range entries {
		dim := e.Dimension
		if e.DimensionKey != "" {
			dim += ":" + e.DimensionKey
		}
		line := fmt.Sprintf("%s  %-24s  %s (importance %d, %s", e.AssetHash, dim, e.RuleID, e.Importance, e.ActionKind)
		if e.Rating != nil {
			line += " " + *e.Rating
		}
		fmt.Fprintf(formatter.Writer, "%s) %s\n", line, humanize.Time(e.UpdatedAt))
	}
	fmt.Fprintf(formatter.Writer, "%s overrides\n", humanize.Comma(int64(len(entries))))
	return nil
}

func runOverridesPurge(opts *RootOptions, ruleID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.PurgeOverridesForRule(cmd.Context(), ruleID)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to purge overrides", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(PurgeResult{RuleID: ruleID, Removed: n})
	}
	fmt.Fprintf(formatter.Writer, "Removed %s overrides won by %s\n", humanize.Comma(n), ruleID)
	return nil
}

func overrideEntry(o conflict.Override) OverrideEntry {
	e := OverrideEntry{
		AssetHash:     o.AssetHash,
		Dimension:     string(o.Dimension),
		DimensionKey:  o.DimensionKey,
		RuleID:        o.RuleID,
		RuleVersionID: o.RuleVersionID,
		Importance:    o.Importance,
		ActionKind:    string(o.ActionKind),
		UpdatedAt:     o.Timestamp,
	}
	if o.Rating != nil {
		s := o.Rating.String()
		e.Rating = &s
	}
	return e
}
