package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/butler/internal/conflict"
	"github.com/roach88/butler/internal/rule"
	"github.com/roach88/butler/internal/store"
	"github.com/roach88/butler/internal/translate"
)

// Audit statuses and pseudo-action kinds for file_action_details.
const (
	actionStatusSuccess         = "success"
	actionStatusFailure         = "failure"
	actionStatusSkippedOverride = "skipped_override"
	actionStatusSkippedRecent   = "skipped_recent_view"

	actionKindSkip = "skip_action"
)

// recencyTimeLayout is the timestamp format of the last-viewed predicate.
const recencyTimeLayout = "2006-01-02 15:04:05"

// execution is the state of one rule moving through the pipeline.
type execution struct {
	engine *Engine
	tx     *store.Session
	rule   rule.Rule
	bypass bool
	runID  string
	log    *slog.Logger

	contender conflict.Contender
	res       RuleResult
}

// execute records the rule version and execution row, drives the state
// machine and stamps the outcome. Only persistence errors are returned.
func (x *execution) execute(ctx context.Context) error {
	version, verr := rule.NewVersion(x.rule, x.res.StartedAt)
	if verr == nil {
		x.res.RuleVersionID = version.ID
		if err := x.tx.EnsureRuleVersion(ctx, version); err != nil {
			return err
		}
	}

	err := x.tx.StartRuleExecution(ctx, store.RuleExecution{
		ID:            x.res.ExecutionID,
		RunID:         x.runID,
		RuleID:        x.rule.ID,
		RuleVersionID: x.res.RuleVersionID,
		Order:         x.res.Order,
		StartedAt:     x.res.StartedAt,
		Status:        string(statusStarted),
	})
	if err != nil {
		return err
	}

	if verr != nil {
		x.abort(StatusVersioningError, newRunError(ErrCodeVersioning, x.rule.ID, verr, "rule could not be versioned"))
	} else if err := x.process(ctx); err != nil {
		return err
	}

	x.res.EndedAt = x.engine.clock.Now()
	return x.tx.FinishRuleExecution(ctx, store.RuleExecution{
		ID:        x.res.ExecutionID,
		EndedAt:   x.res.EndedAt,
		Status:    string(x.res.Status),
		Matched:   x.res.Counts.Matched,
		Eligible:  x.res.Counts.Eligible,
		Attempted: x.res.Counts.Attempted,
		Succeeded: x.res.Counts.Succeeded,
		Summary:   x.res.Summary(),
		Details:   x.res.details(),
	})
}

func (x *execution) abort(status Status, err *RunError) {
	x.res.Status = status
	x.res.Err = err
	x.log.Warn("rule aborted", "status", status, "error", err)
}

// process walks validating, searching, filtering, acting and recording.
func (x *execution) process(ctx context.Context) error {
	e := x.engine

	// validating
	if err := x.rule.Validate(); err != nil {
		x.abort(StatusSetupFailed, newRunError(ErrCodeConfigInvalid, x.rule.ID, err, "invalid rule configuration"))
		return nil
	}
	if err := e.catalog.Ensure(ctx); err != nil {
		x.abort(StatusServicesLoadError, newRunError(ErrCodeServicesUnavailable, x.rule.ID, err, "service catalog unavailable"))
		return nil
	}
	x.contender = conflict.ContenderFor(x.rule, x.res.RuleVersionID)

	// searching
	tr := translate.Translate(x.rule.Conditions, x.rule.Action, e.catalog)
	x.res.Warnings = append(x.res.Warnings, tr.Warnings...)
	if critical := tr.Critical(); len(critical) > 0 {
		x.abort(StatusTranslationFailed, newRunError(ErrCodeTranslationCritical, x.rule.ID, nil,
			"%s", strings.Join(critical, "; ")))
		return nil
	}

	x.log.Debug("searching", "predicates", len(tr.Predicates), "tag_service", tr.TagServiceKey)
	hashes, resp := e.remote.SearchFiles(ctx, tr.Wire(), tr.TagServiceKey)
	if !resp.Success {
		x.abort(StatusSearchFailed, newRunError(ErrCodeSearchFailed, x.rule.ID, nil,
			"search failed (status %d): %s", resp.Status, resp.Message))
		return nil
	}
	hashes = unique(hashes)
	x.res.Counts.Matched = len(hashes)
	if len(hashes) == 0 {
		x.res.Status = StatusNoMatches
		return nil
	}

	// filtering
	candidates, err := x.filterRecent(ctx, hashes)
	if err != nil {
		return err
	}
	candidates, err = x.filterConflicts(ctx, candidates)
	if err != nil {
		return err
	}
	x.res.Counts.Eligible = len(candidates)
	if len(candidates) == 0 {
		x.res.Status = StatusNoneEligible
		return nil
	}

	// acting
	out := x.act(ctx, candidates)
	if out.unsafe != nil {
		x.abort(StatusSetupFailed, out.unsafe)
		return nil
	}

	// recording
	return x.record(ctx, candidates, out)
}

// filterRecent drops assets viewed within the recency threshold. A failed
// lookup only warns; every asset stays eligible.
func (x *execution) filterRecent(ctx context.Context, hashes []string) ([]string, error) {
	e := x.engine
	if e.recency <= 0 {
		return hashes, nil
	}

	since := e.clock.Now().Add(-e.recency).Format(recencyTimeLayout)
	predicate := "system:last viewed time > " + since
	recent, resp := e.remote.SearchFiles(ctx, []any{predicate}, "")
	if !resp.Success {
		msg := fmt.Sprintf("recently viewed lookup failed (status %d): %s; filter not applied", resp.Status, resp.Message)
		x.res.Warnings = append(x.res.Warnings, msg)
		x.log.Warn("recency filter skipped", "status", resp.Status, "error", resp.Message)
		return hashes, nil
	}

	viewed := make(map[string]struct{}, len(recent))
	for _, h := range recent {
		viewed[h] = struct{}{}
	}

	kept := make([]string, 0, len(hashes))
	for _, h := range hashes {
		if _, ok := viewed[h]; !ok {
			kept = append(kept, h)
			continue
		}
		x.res.Counts.SkippedRecent++
		err := x.audit(ctx, store.FileAction{
			AssetHash:  h,
			ActionKind: actionKindSkip,
			Params:     map[string]any{"reason": "recently_viewed", "last_viewed_after": since},
			Status:     actionStatusSkippedRecent,
		})
		if err != nil {
			return nil, err
		}
	}
	if n := x.res.Counts.SkippedRecent; n > 0 {
		x.log.Info("skipped recently viewed assets", "count", n)
	}
	return kept, nil
}

// filterConflicts drops assets whose override the rule may not contest.
// Bypass mode and actions without a conflict dimension keep everything.
func (x *execution) filterConflicts(ctx context.Context, hashes []string) ([]string, error) {
	if x.bypass {
		return hashes, nil
	}
	if _, keyed := conflict.KeyFor("", x.rule.Action); !keyed {
		return hashes, nil
	}

	resolver := conflict.NewResolver(x.tx)
	kept := make([]string, 0, len(hashes))
	for _, h := range hashes {
		key, _ := conflict.KeyFor(h, x.rule.Action)
		d, err := resolver.Check(ctx, key, x.contender)
		if err != nil {
			return nil, err
		}
		if !d.Skip {
			kept = append(kept, h)
			continue
		}
		x.res.Counts.SkippedConflict++
		if !x.engine.logOverridden {
			continue
		}
		err = x.audit(ctx, store.FileAction{
			AssetHash:  h,
			ActionKind: actionKindSkip,
			Params:     map[string]any{"reason": "override"},
			Status:     actionStatusSkippedOverride,
			Override:   overrideInfo(d),
		})
		if err != nil {
			return nil, err
		}
	}
	if n := x.res.Counts.SkippedConflict; n > 0 {
		x.log.Info("skipped overridden assets", "count", n)
	}
	return kept, nil
}

// record claims overrides for assets acted on and appends one audit row
// per attempted asset, in candidate order.
func (x *execution) record(ctx context.Context, candidates []string, out outcome) error {
	c := &x.res.Counts
	c.Attempted = len(candidates)
	c.Failed = len(out.failures)
	c.Succeeded = c.Attempted - c.Failed

	var resolver *conflict.Resolver
	if !x.bypass {
		resolver = conflict.NewResolver(x.tx)
	}
	params := actionParams(x.rule.Action)
	now := x.engine.clock.Now()

	for _, h := range candidates {
		if msg, failed := out.failures[h]; failed {
			err := x.audit(ctx, store.FileAction{
				AssetHash:  h,
				ActionKind: string(x.rule.Action.Kind()),
				Params:     params,
				Status:     actionStatusFailure,
				Error:      msg,
			})
			if err != nil {
				return err
			}
			continue
		}

		if key, keyed := conflict.KeyFor(h, x.rule.Action); keyed && resolver != nil {
			if _, err := resolver.Record(ctx, key, x.contender, now); err != nil {
				return err
			}
		}
		err := x.audit(ctx, store.FileAction{
			AssetHash:  h,
			ActionKind: string(x.rule.Action.Kind()),
			Params:     params,
			Status:     actionStatusSuccess,
		})
		if err != nil {
			return err
		}
	}

	if len(out.failures) > 0 {
		x.res.Failures = out.failures
	}
	switch {
	case c.Failed == 0:
		x.res.Status = StatusActionsProcessed
	case c.Succeeded == 0:
		x.res.Status = StatusActionAll
	default:
		x.res.Status = StatusActionPartial
	}
	return nil
}

func (x *execution) audit(ctx context.Context, a store.FileAction) error {
	a.RuleExecutionID = x.res.ExecutionID
	a.RecordedAt = x.engine.clock.Now()
	return x.tx.AppendFileAction(ctx, a)
}

func overrideInfo(d conflict.Decision) map[string]any {
	info := map[string]any{"reason": d.Reason}
	if p := d.Prior; p != nil {
		info["winning_rule_id"] = p.RuleID
		info["winning_rule_version_id"] = p.RuleVersionID
		info["winning_importance"] = p.Importance
		info["winning_action_kind"] = p.ActionKind
	}
	return info
}

func unique(hashes []string) []string {
	seen := make(map[string]struct{}, len(hashes))
	out := hashes[:0:0]
	for _, h := range hashes {
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}
