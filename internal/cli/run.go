package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/butler/internal/engine"
)

// NewRunAllCommand creates the run-all command.
func NewRunAllCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run-all",
		Short: "Run every rule once, in execution order",
		Long: `Run every rule in the rules file once. Rules execute in ascending
importance; later rules may not undo assets claimed by more important
rules. Stale overrides of edited or removed rules are purged first.

Example:
  butler run-all --config butler.yaml
  butler run-all --rules ./rules.yaml --db ./butler.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAll(rootOpts, cmd)
		},
	}
}

// NewRunRuleCommand creates the run-rule command.
func NewRunRuleCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run-rule <id|name>",
		Short: "Run one rule, bypassing the override ledger",
		Long: `Run a single rule looked up by id or by name (case-insensitive).

The rule acts on every match regardless of overrides held by other rules,
and records no override of its own.

Example:
  butler run-rule archive-old
  butler run-rule "Rate favourites"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRule(rootOpts, args[0], cmd)
		},
	}
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

func runAll(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext(cmd)
	defer stop()

	rules := a.rules.Rules()
	formatter.VerboseLog("Loaded %d rule(s) from %s", len(rules), a.settings.RulesFile)

	res, err := a.engine.RunAll(ctx, rules)
	if err != nil && res.RunID == "" {
		return WrapExitError(ExitCommandError, "run not started", err)
	}
	return outputRun(formatter, res, err)
}

func runRule(opts *RootOptions, query string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.close()

	r, ok := a.rules.Find(query)
	if !ok {
		suggestions := a.rules.Suggest(query, 3)
		msg := fmt.Sprintf("no rule matches %q", query)
		if len(suggestions) > 0 && formatter.Format != "json" {
			msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(suggestions, ", "))
		}
		_ = formatter.Error(ErrCodeRuleNotFound, msg, map[string]any{"suggestions": suggestions})
		return NewExitError(ExitCommandError, msg)
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	rr, err := a.engine.RunOne(ctx, r)
	if err != nil && !engine.IsAbort(err) {
		return WrapExitError(ExitCommandError, "run not started", err)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeRunAborted, err.Error(), rr)
		return WrapExitError(ExitFailure, "run aborted", err)
	}

	err = formatter.Emit(rr, func(w io.Writer) {
		fmt.Fprintln(w, renderRule(formatter, rr))
		renderDetails(w, rr, true)
	})
	if err != nil {
		return err
	}
	if !rr.Succeeded() {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %s", rr.Status, rr.Summary()))
	}
	return nil
}

func outputRun(formatter *OutputFormatter, res engine.RunResult, runErr error) error {
	if runErr != nil {
		_ = formatter.Error(ErrCodeRunAborted, runErr.Error(), res)
		return WrapExitError(ExitFailure, "run aborted", runErr)
	}

	err := formatter.EmitRun(res.RunID, res, func(w io.Writer) {
		fmt.Fprintln(w, renderRun(res))
		for _, rr := range res.Rules {
			fmt.Fprintln(w, "  "+renderRule(formatter, rr))
			renderDetails(w, rr, formatter.Verbose)
		}
	})
	if err != nil {
		return err
	}

	if res.Status != engine.RunCompleted {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %s", res.Status, res.Summary()))
	}
	return nil
}

func renderRun(res engine.RunResult) string {
	failed, actions := 0, 0
	for _, rr := range res.Rules {
		if !rr.Succeeded() {
			failed++
		}
		actions += rr.Counts.Succeeded
	}
	took := res.EndedAt.Sub(res.StartedAt).Round(time.Millisecond)
	return fmt.Sprintf("Run %s (%s) %s in %s: %s rules, %s failing, %s actions succeeded",
		res.RunID, res.Type, res.Status, took,
		humanize.Comma(int64(len(res.Rules))), humanize.Comma(int64(failed)), humanize.Comma(int64(actions)))
}

func renderRule(formatter *OutputFormatter, rr engine.RuleResult) string {
	c := rr.Counts
	return fmt.Sprintf("%s %s [%s] matched %s, eligible %s, succeeded %s, failed %s, skipped %s",
		formatter.Mark(rr.Succeeded()), rr.RuleName, rr.Status,
		humanize.Comma(int64(c.Matched)), humanize.Comma(int64(c.Eligible)),
		humanize.Comma(int64(c.Succeeded)), humanize.Comma(int64(c.Failed)),
		humanize.Comma(int64(c.SkippedConflict+c.SkippedRecent)))
}

func renderDetails(w io.Writer, rr engine.RuleResult, all bool) {
	for _, warning := range rr.Warnings {
		fmt.Fprintf(w, "      warning: %s\n", warning)
	}
	if rr.Err != nil {
		fmt.Fprintf(w, "      error [%s]: %s\n", rr.Err.Code, rr.Err.Message)
	}
	if !all {
		return
	}
	for _, hash := range slices.Sorted(maps.Keys(rr.Failures)) {
		fmt.Fprintf(w, "      %s: %s\n", hash, rr.Failures[hash])
	}
}

// signalContext returns the command's context cancelled on SIGINT or
// SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
