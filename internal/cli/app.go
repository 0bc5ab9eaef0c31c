package cli

import (
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/butler/internal/config"
	"github.com/roach88/butler/internal/engine"
	"github.com/roach88/butler/internal/hydrus"
	"github.com/roach88/butler/internal/rule"
	"github.com/roach88/butler/internal/runlock"
	"github.com/roach88/butler/internal/store"
)

// app holds the components a command needs once settings are resolved.
type app struct {
	settings config.Settings
	rules    *rule.Set
	store    *store.Store
	client   *hydrus.Client
	catalog  *hydrus.Catalog
	engine   *engine.Engine
	redis    *redis.Client
}

// resolveSettings loads the settings file and applies flag overrides.
func resolveSettings(opts *RootOptions) (config.Settings, error) {
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Settings{}, WrapExitError(ExitCommandError, "failed to load settings", err)
	}
	if opts.Database != "" {
		settings.Database = opts.Database
	}
	if opts.RulesFile != "" {
		settings.RulesFile = opts.RulesFile
	}
	return settings, nil
}

// loadRuleSet reads the rules file into a fresh set.
func loadRuleSet(path string) (*rule.Set, error) {
	set := rule.NewSet()
	if err := set.Reload(path); err != nil {
		return nil, WrapExitError(ExitFailure, "failed to load rules", err)
	}
	return set, nil
}

// openApp wires settings, rules, database, remote client and engine.
// The caller must call close.
func openApp(opts *RootOptions) (*app, error) {
	settings, err := resolveSettings(opts)
	if err != nil {
		return nil, err
	}
	rules, err := loadRuleSet(settings.RulesFile)
	if err != nil {
		return nil, err
	}

	slog.Debug("opening database", "path", settings.Database)
	st, err := store.Open(settings.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	a := &app{settings: settings, rules: rules, store: st}
	a.client = hydrus.New(settings.APIAddress, settings.APIKey, hydrus.WithTimeout(settings.RequestTimeout()))
	a.catalog = hydrus.NewCatalog(a.client)

	engineOpts := []engine.Option{engine.WithSettings(settings)}
	if settings.RedisURL != "" {
		a.redis, err = runlock.Connect(settings.RedisURL)
		if err != nil {
			_ = st.Close()
			return nil, WrapExitError(ExitCommandError, "failed to configure run lock", err)
		}
		engineOpts = append(engineOpts, engine.WithLocker(runlock.NewRedis(a.redis)))
		slog.Debug("using redis run lock")
	}
	a.engine = engine.New(st, a.client, a.catalog, engineOpts...)
	return a, nil
}

func (a *app) close() {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, a.store.Close())
	if err := errors.Join(errs...); err != nil {
		slog.Error("error closing app", "error", err)
	}
}
