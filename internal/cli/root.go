package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/butler/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose   bool
	Format    string // "json" | "text"
	LogLevel  string
	LogFormat string

	// ConfigPath is the settings file. Database and RulesFile override
	// the values it contains when set.
	ConfigPath string
	Database   string
	RulesFile  string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the butler CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "butler",
		Short: "butler - rule engine for a Hydrus client",
		Long: `Evaluate user-defined rules against a Hydrus client and apply their
actions: file placement, tags and ratings. Conflicts between rules are
settled by importance and remembered in an override ledger.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			level := opts.LogLevel
			if opts.Verbose && level == string(logging.LevelInfo) {
				level = string(logging.LevelDebug)
			}
			return logging.Setup(cmd.ErrOrStderr(), level, opts.LogFormat)
		},
	}

	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVar(&opts.LogLevel, "log-level", string(logging.LevelInfo),
		fmt.Sprintf("log level (%s)", strings.Join(logging.AllLevels, "|")))
	pf.StringVar(&opts.LogFormat, "log-format", string(logging.FormatText),
		fmt.Sprintf("log format (%s)", strings.Join(logging.AllFormats, "|")))
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "settings file (YAML)")
	pf.StringVar(&opts.Database, "db", "", "path to SQLite database (overrides settings)")
	pf.StringVar(&opts.RulesFile, "rules", "", "path to rules file (overrides settings)")

	cmd.AddCommand(NewRunAllCommand(opts))
	cmd.AddCommand(NewRunRuleCommand(opts))
	cmd.AddCommand(NewOrderCommand(opts))
	cmd.AddCommand(NewServicesCommand(opts))
	cmd.AddCommand(NewOverridesCommand(opts))
	cmd.AddCommand(NewRulesCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
