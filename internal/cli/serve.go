package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/butler/internal/scheduler"
	"github.com/roach88/butler/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen   string
	NoWatch  bool
	Interval int
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts, Interval: -1}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve HTTP triggers and run rules on an interval",
		Long: `Start the long-running process: an HTTP API for triggering runs, an
interval scheduler for run-all, and a file watcher that reloads the rules
file and refreshes the service catalog when the settings file changes.

Endpoints:
  GET  /healthz
  POST /runs
  POST /rules/{ruleId}/run
  GET  /services
  POST /services/refresh

Example:
  butler serve --config butler.yaml
  butler serve --listen 0.0.0.0:8088 --interval 600`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides settings)")
	cmd.Flags().IntVar(&opts.Interval, "interval", -1, "run-all interval in seconds, 0 disables (overrides settings)")
	cmd.Flags().BoolVar(&opts.NoWatch, "no-watch", false, "do not reload files on change")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.close()

	if opts.Listen != "" {
		a.settings.ListenAddress = opts.Listen
	}
	if opts.Interval >= 0 {
		a.settings.RuleIntervalSeconds = opts.Interval
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	if err := a.catalog.Refresh(ctx); err != nil {
		// Rules retry the load on their next run.
		slog.Warn("initial service catalog load failed", "error", err)
	}

	srv := server.New(a.engine, a.rules, a.catalog)
	interval := scheduler.NewInterval("run-all", a.settings.RuleInterval(), func(ctx context.Context) error {
		res, err := a.engine.RunAll(ctx, a.rules.Rules())
		if err != nil {
			return err
		}
		slog.Info("scheduled run finished", "run", res.RunID, "status", res.Status, "summary", res.Summary())
		return nil
	})

	watcher := scheduler.NewWatcher()
	if !opts.NoWatch {
		if err := watchFiles(watcher, a, opts.ConfigPath); err != nil {
			return WrapExitError(ExitCommandError, "failed to watch files", err)
		}
	}

	slog.Info("serving",
		"listen", a.settings.ListenAddress,
		"rules", a.rules.Len(),
		"interval", a.settings.RuleInterval(),
		"watch", !opts.NoWatch,
	)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s. Press Ctrl-C to stop.\n", a.settings.ListenAddress)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(ctx, a.settings.ListenAddress) })
	g.Go(func() error { return interval.Run(ctx) })
	g.Go(func() error { return watcher.Run(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "serve error", err)
	}

	slog.Info("stopped gracefully")
	return nil
}

// watchFiles reloads the rule set when the rules file changes and
// refreshes the service catalog when the settings file changes.
func watchFiles(w *scheduler.Watcher, a *app, configPath string) error {
	err := w.Watch(a.settings.RulesFile, func(ctx context.Context, path string) error {
		if err := a.rules.Reload(path); err != nil {
			return fmt.Errorf("reload rules: %w", err)
		}
		slog.Info("rules reloaded", "path", path, "rules", a.rules.Len())
		return nil
	})
	if err != nil {
		return err
	}
	return w.Watch(configPath, func(ctx context.Context, path string) error {
		if err := a.catalog.Refresh(ctx); err != nil {
			return fmt.Errorf("refresh services: %w", err)
		}
		slog.Info("service catalog refreshed", "services", a.catalog.Len())
		return nil
	})
}
