package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/butler/internal/rule"
)

// OrderEntry is one line of the order listing.
type OrderEntry struct {
	Position   int    `json:"position"`
	FileIndex  int    `json:"file_index"`
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	Importance int    `json:"importance"`
	Action     string `json:"action"`
	Valid      bool   `json:"valid"`
	VersionID  string `json:"version_id,omitempty"`
}

// NewOrderCommand creates the order command.
func NewOrderCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "order",
		Short: "Show the order rules execute in",
		Long: `List the rules in execution order: ascending importance, force_in
before other actions of equal importance, then position in the file.
Nothing is contacted and nothing is written.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrder(rootOpts, cmd)
		},
	}
}

func runOrder(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	settings, err := resolveSettings(opts)
	if err != nil {
		return err
	}
	rules, err := rule.LoadFile(settings.RulesFile)
	if err != nil {
		_ = formatter.Error(ErrCodeRulesFile, err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to load rules", err)
	}

	entries := orderEntries(rules)
	if formatter.Format == "json" {
		return formatter.Success(entries)
	}
	writeOrder(formatter.Writer, entries)
	return nil
}

func orderEntries(rules []rule.Rule) []OrderEntry {
	entries := make([]OrderEntry, 0, len(rules))
	for pos, ix := range rule.Order(rules) {
		e := OrderEntry{
			Position:   pos + 1,
			FileIndex:  ix.Index,
			ID:         ix.Rule.ID,
			Name:       ix.Rule.Name,
			Importance: ix.Rule.Importance,
			Action:     "-",
			Valid:      ix.Rule.Validate() == nil,
		}
		if ix.Rule.Action != nil && ix.Rule.Action.Kind() != "" {
			e.Action = string(ix.Rule.Action.Kind())
		}
		if e.Valid {
			e.VersionID, _ = rule.VersionID(ix.Rule)
		}
		entries = append(entries, e)
	}
	return entries
}

func writeOrder(w io.Writer, entries []OrderEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No rules defined")
		return
	}

	idWidth, actionWidth := len("ID"), len("ACTION")
	for _, e := range entries {
		idWidth = max(idWidth, len(e.ID))
		actionWidth = max(actionWidth, len(e.Action))
	}

	fmt.Fprintf(w, "%3s  %-*s  %-*s  %10s  %s\n", "#", idWidth, "ID", actionWidth, "ACTION", "IMPORTANCE", "NAME")
	for _, e := range entries {
		name := e.Name
		if !e.Valid {
			name += " (invalid)"
		}
		fmt.Fprintf(w, "%3d  %-*s  %-*s  %10d  %s\n", e.Position, idWidth, e.ID, actionWidth, e.Action, e.Importance, name)
	}
}
