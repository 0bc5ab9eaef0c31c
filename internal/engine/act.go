package engine

import (
	"context"
	"fmt"

	"github.com/roach88/butler/internal/batch"
	"github.com/roach88/butler/internal/hydrus"
	"github.com/roach88/butler/internal/relocate"
	"github.com/roach88/butler/internal/rule"
)

// outcome is what acting produced. failures maps asset hash to message;
// every other candidate succeeded.
type outcome struct {
	failures map[string]string
	unsafe   *RunError
}

func (x *execution) act(ctx context.Context, hashes []string) outcome {
	x.log.Info("acting", "action", x.rule.Action.Kind(), "assets", len(hashes))
	switch a := x.rule.Action.(type) {
	case rule.AddTo:
		return x.addTo(ctx, a, hashes)
	case rule.ForceIn:
		return x.forceIn(ctx, a, hashes)
	case rule.AddTags:
		return x.tags(ctx, a.ServiceKey, a.Tags, hashes, false)
	case rule.RemoveTags:
		return x.tags(ctx, a.ServiceKey, a.Tags, hashes, true)
	case rule.SetRating:
		return x.rate(ctx, a, hashes)
	}
	return outcome{unsafe: newRunError(ErrCodeConfigInvalid, x.rule.ID, nil, "unsupported action %q", x.rule.Action.Kind())}
}

// addTo migrates into each destination. An asset succeeds only if no
// destination failed it.
func (x *execution) addTo(ctx context.Context, a rule.AddTo, hashes []string) outcome {
	out := outcome{failures: map[string]string{}}
	for _, dest := range a.Destinations {
		res := batch.Run(ctx, x.engine.remote, batch.Job[string]{
			Label: "add_to " + dest,
			Size:  x.engine.actionBatchSize,
			Batch: func(h []string) hydrus.Request { return hydrus.MigrateFiles(dest, h) },
			Item:  func(h string) hydrus.Request { return hydrus.MigrateFiles(dest, []string{h}) },
		}, hashes)
		for _, f := range res.Failed {
			out.fail(f.Item, fmt.Sprintf("%s: %s", dest, f.Message))
		}
	}
	return out
}

func (x *execution) forceIn(ctx context.Context, a rule.ForceIn, hashes []string) outcome {
	e := x.engine
	domains := e.catalog.LocalFileDomains()
	locals := make([]string, len(domains))
	for i, s := range domains {
		locals[i] = s.Key
	}

	orch := relocate.New(e.remote,
		relocate.WithActionBatchSize(e.actionBatchSize),
		relocate.WithMetadataBatchSize(e.metadataBatchSize),
	)
	res := orch.Run(ctx, hashes, a.Destinations, locals)
	if res.Refused {
		return outcome{unsafe: newRunError(ErrCodeRelocationUnsafe, x.rule.ID, nil, "%s", res.Error)}
	}

	out := outcome{failures: make(map[string]string, len(res.Failures))}
	for h, f := range res.Failures {
		out.fail(h, f.Message())
	}
	return out
}

func (x *execution) tags(ctx context.Context, serviceKey string, tags, hashes []string, remove bool) outcome {
	label := "add_tags"
	if remove {
		label = "remove_tags"
	}
	res := batch.Run(ctx, x.engine.remote, batch.Job[string]{
		Label: label + " " + serviceKey,
		Size:  x.engine.actionBatchSize,
		Batch: func(h []string) hydrus.Request { return hydrus.AddTags(serviceKey, tags, h, remove) },
		Item:  func(h string) hydrus.Request { return hydrus.AddTags(serviceKey, tags, []string{h}, remove) },
	}, hashes)

	out := outcome{failures: make(map[string]string, len(res.Failed))}
	for _, f := range res.Failed {
		out.fail(f.Item, f.Message)
	}
	return out
}

// rate sets ratings one asset at a time; the endpoint takes a single hash.
func (x *execution) rate(ctx context.Context, a rule.SetRating, hashes []string) outcome {
	out := outcome{failures: map[string]string{}}
	value := a.Value.Wire()
	for _, h := range hashes {
		resp := x.engine.remote.Do(ctx, hydrus.SetRating(a.ServiceKey, h, value))
		if !resp.Success {
			out.fail(h, fmt.Sprintf("set rating (status %d): %s", resp.Status, resp.Message))
		}
	}
	return out
}

func (o *outcome) fail(hash, msg string) {
	if prev, ok := o.failures[hash]; ok {
		msg = prev + "; " + msg
	}
	o.failures[hash] = msg
}

// actionParams is the params_json recorded with each audit row.
func actionParams(a rule.Action) map[string]any {
	switch v := a.(type) {
	case rule.AddTo:
		return map[string]any{"destination_service_keys": v.Destinations}
	case rule.ForceIn:
		return map[string]any{"destination_service_keys": v.Destinations}
	case rule.AddTags:
		return map[string]any{"tag_service_key": v.ServiceKey, "tags": v.Tags}
	case rule.RemoveTags:
		return map[string]any{"tag_service_key": v.ServiceKey, "tags": v.Tags}
	case rule.SetRating:
		return map[string]any{"rating_service_key": v.ServiceKey, "rating": v.Value.Wire()}
	}
	return nil
}
