package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/butler/internal/config"
	"github.com/roach88/butler/internal/hydrus"
	"github.com/roach88/butler/internal/logging"
	"github.com/roach88/butler/internal/relocate"
	"github.com/roach88/butler/internal/rule"
	"github.com/roach88/butler/internal/runlock"
	"github.com/roach88/butler/internal/store"
	"github.com/roach88/butler/internal/translate"
)

// Remote is the subset of the Hydrus client the engine calls.
type Remote interface {
	relocate.Remote
	SearchFiles(ctx context.Context, predicates []any, tagServiceKey string) ([]string, hydrus.Response)
}

// Catalog resolves service keys and loads itself on demand.
type Catalog interface {
	translate.Services
	Ensure(ctx context.Context) error
}

// Engine executes rules. Runs are serialized by its Locker.
type Engine struct {
	store   *store.Store
	remote  Remote
	catalog Catalog

	clock  Clock
	ids    IDGenerator
	locker runlock.Locker
	tracer trace.Tracer

	recency           time.Duration
	logOverridden     bool
	actionBatchSize   int
	metadataBatchSize int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option { return func(e *Engine) { e.clock = c } }

// WithIDGenerator replaces the UUIDv7 id generator.
func WithIDGenerator(g IDGenerator) Option { return func(e *Engine) { e.ids = g } }

// WithLocker replaces the in-process run lock.
func WithLocker(l runlock.Locker) Option { return func(e *Engine) { e.locker = l } }

// WithTracerProvider traces runs and rules through tp instead of the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracer = tp.Tracer("engine") }
}

// WithRecencyThreshold skips assets viewed within d. Zero disables it.
func WithRecencyThreshold(d time.Duration) Option { return func(e *Engine) { e.recency = d } }

// WithLogOverriddenActions audits assets skipped by the override ledger.
func WithLogOverriddenActions(on bool) Option { return func(e *Engine) { e.logOverridden = on } }

// WithBatchSizes sets the action and metadata batch sizes.
func WithBatchSizes(action, metadata int) Option {
	return func(e *Engine) {
		e.actionBatchSize = action
		e.metadataBatchSize = metadata
	}
}

// WithSettings applies the engine-related settings.
func WithSettings(s config.Settings) Option {
	return func(e *Engine) {
		e.recency = s.LastViewedThreshold()
		e.logOverridden = s.LogOverriddenActions
		e.actionBatchSize = s.ActionBatchSize
		e.metadataBatchSize = s.MetadataBatchSize
	}
}

// New returns an Engine writing to st and acting through remote.
func New(st *store.Store, remote Remote, catalog Catalog, opts ...Option) *Engine {
	e := &Engine{
		store:             st,
		remote:            remote,
		catalog:           catalog,
		clock:             systemClock{},
		ids:               UUIDv7Generator{},
		locker:            runlock.NewLocal(),
		tracer:            otel.Tracer("engine"),
		recency:           time.Duration(config.DefaultLastViewedThreshold) * time.Second,
		actionBatchSize:   relocate.DefaultActionBatchSize,
		metadataBatchSize: relocate.DefaultMetadataBatchSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunAll orders rules and executes them with conflict arbitration. The
// override ledger is first reconciled against the rule set: rows of
// removed or edited rules are purged.
//
// A persistence error aborts the run and is returned along with the
// results gathered so far. Rule-level failures are reported in the
// results, not as an error.
func (e *Engine) RunAll(ctx context.Context, rules []rule.Rule) (RunResult, error) {
	return e.run(ctx, RunTypeScheduled, rule.Order(rules), false)
}

// RunOne executes r in bypass mode: no override is read, written or
// purged. Versioning and the audit trail are unaffected.
func (e *Engine) RunOne(ctx context.Context, r rule.Rule) (RuleResult, error) {
	res, err := e.run(ctx, RunTypeManual, []rule.Indexed{{Rule: r}}, true)
	if len(res.Rules) == 0 {
		return RuleResult{RuleID: r.ID, RuleName: r.Label()}, err
	}
	return res.Rules[0], err
}

func (e *Engine) run(ctx context.Context, runType string, ordered []rule.Indexed, bypass bool) (RunResult, error) {
	release, err := e.locker.Acquire(ctx)
	if err != nil {
		return RunResult{}, fmt.Errorf("%s run: %w", runType, err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			logging.WithContext(ctx).Warn("release run lock", "error", err)
		}
	}()

	res := RunResult{RunID: e.ids.NewID(), Type: runType, StartedAt: e.clock.Now()}

	ctx, span := e.tracer.Start(ctx, "run", trace.WithAttributes(
		attribute.String("run.id", res.RunID),
		attribute.String("run.type", runType),
		attribute.Int("run.rules", len(ordered)),
	))
	defer span.End()

	log := logging.WithContext(ctx).With("run", res.RunID, "type", runType)
	log.Info("run started", "rules", len(ordered), "bypass", bypass)

	err = e.store.StartRun(ctx, store.Run{
		ID:        res.RunID,
		Type:      runType,
		StartedAt: res.StartedAt,
		Status:    string(statusStarted),
	})
	if err != nil {
		res.Status = RunAborted
		span.RecordError(err)
		span.SetStatus(codes.Error, "start run")
		return res, persistenceError("", err)
	}

	if !bypass {
		if err := e.reconcile(ctx, ordered); err != nil {
			return e.abortRun(ctx, span, res, err)
		}
	}

	for i, ix := range ordered {
		rr, err := e.executeRule(ctx, res.RunID, i+1, ix.Rule, bypass)
		res.Rules = append(res.Rules, rr)
		if err != nil {
			return e.abortRun(ctx, span, res, err)
		}
	}

	res.Status = runStatus(res.Rules)
	res.EndedAt = e.clock.Now()
	if err := e.finishRun(ctx, res); err != nil {
		span.RecordError(err)
		return res, persistenceError("", err)
	}

	span.SetAttributes(attribute.String("run.status", string(res.Status)))
	log.Info("run finished", "status", res.Status, "summary", res.Summary())
	return res, nil
}

func (e *Engine) abortRun(ctx context.Context, span trace.Span, res RunResult, cause error) (RunResult, error) {
	res.Status = RunAborted
	res.EndedAt = e.clock.Now()
	span.RecordError(cause)
	span.SetStatus(codes.Error, "run aborted")

	log := logging.WithContext(ctx).With("run", res.RunID)
	log.Error("run aborted", "error", cause, "rules_executed", len(res.Rules))
	if err := e.finishRun(ctx, res); err != nil {
		log.Error("record aborted run", "error", err)
	}
	return res, cause
}

func (e *Engine) finishRun(ctx context.Context, res RunResult) error {
	return e.store.FinishRun(ctx, store.Run{
		ID:      res.RunID,
		EndedAt: res.EndedAt,
		Status:  string(res.Status),
		Summary: res.Summary(),
	})
}

// reconcile purges overrides whose rule is gone or whose version no
// longer matches the rule as loaded.
func (e *Engine) reconcile(ctx context.Context, ordered []rule.Indexed) error {
	current := make(map[string]string, len(ordered))
	for _, ix := range ordered {
		id, err := rule.VersionID(ix.Rule)
		if err != nil {
			// An unversionable rule keeps no overrides.
			continue
		}
		current[ix.Rule.ID] = id
	}

	n, err := e.store.PurgeStaleOverrides(ctx, current)
	if err != nil {
		return persistenceError("", fmt.Errorf("reconcile overrides: %w", err))
	}
	if n > 0 {
		logging.WithContext(ctx).Info("purged stale overrides", "rows", n)
	}
	return nil
}

// executeRule runs one rule inside its own transaction. The returned error
// is non-nil only for persistence failures, after the rollback.
func (e *Engine) executeRule(ctx context.Context, runID string, order int, r rule.Rule, bypass bool) (RuleResult, error) {
	ctx, span := e.tracer.Start(ctx, "rule", trace.WithAttributes(
		attribute.String("rule.id", r.ID),
		attribute.Int("rule.order", order),
		attribute.Int("rule.importance", r.Importance),
		attribute.Bool("rule.bypass", bypass),
	))
	defer span.End()

	x := &execution{
		engine: e,
		rule:   r,
		bypass: bypass,
		runID:  runID,
		log:    logging.WithContext(ctx).With("rule", r.ID, "order", order),
		res: RuleResult{
			RuleID:      r.ID,
			RuleName:    r.Label(),
			ExecutionID: e.ids.NewID(),
			Order:       order,
			StartedAt:   e.clock.Now(),
		},
	}

	fail := func(err error) (RuleResult, error) {
		re := persistenceError(r.ID, err)
		x.res.Status = StatusPersistenceError
		x.res.Err = re
		x.res.EndedAt = e.clock.Now()
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence")
		x.log.Error("rule rolled back", "error", err)
		return x.res, re
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return fail(err)
	}
	x.tx = tx

	if err := x.execute(ctx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			x.log.Error("rollback failed", "error", rbErr)
		}
		return fail(err)
	}
	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return fail(err)
	}

	span.SetAttributes(
		attribute.String("rule.status", string(x.res.Status)),
		attribute.Int("rule.matched", x.res.Counts.Matched),
		attribute.Int("rule.succeeded", x.res.Counts.Succeeded),
	)
	if x.res.Err != nil {
		span.SetStatus(codes.Error, string(x.res.Err.Code))
	}
	x.log.Info("rule finished",
		"status", x.res.Status,
		"matched", x.res.Counts.Matched,
		"eligible", x.res.Counts.Eligible,
		"succeeded", x.res.Counts.Succeeded,
		"failed", x.res.Counts.Failed,
	)
	return x.res, nil
}
