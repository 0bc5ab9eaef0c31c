// Package relocate implements exclusive placement: copy assets into every
// destination, verify they arrived, then delete them from every other
// local file domain. An asset is never deleted anywhere until it has been
// seen in all destinations.
package relocate

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/butler/internal/batch"
	"github.com/roach88/butler/internal/hydrus"
)

// Default batch sizes.
const (
	DefaultActionBatchSize   = 64
	DefaultMetadataBatchSize = 256
)

// Phase names the step in which an asset failed.
type Phase string

const (
	PhaseCopy    Phase = "copy"
	PhaseVerify  Phase = "verify"
	PhaseCleanup Phase = "cleanup"
)

// Remote is the subset of the Hydrus client used here.
type Remote interface {
	batch.Doer
	FileMetadata(ctx context.Context, hashes []string) ([]hydrus.FileMetadata, hydrus.Response)
}

// Detail is one error recorded against an asset.
type Detail struct {
	ServiceKey string
	Message    string
	Status     int
}

// AssetFailure records the phase in which an asset first failed and every
// error seen for it.
type AssetFailure struct {
	Phase   Phase
	Details []Detail
}

// Message summarizes the failure for the audit trail.
func (f AssetFailure) Message() string {
	parts := make([]string, 0, len(f.Details))
	for _, d := range f.Details {
		if d.ServiceKey != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", d.ServiceKey, d.Message))
		} else {
			parts = append(parts, d.Message)
		}
	}
	return fmt.Sprintf("%s failed: %s", f.Phase, strings.Join(parts, "; "))
}

// Result summarizes one relocation.
type Result struct {
	Success    bool
	Candidates int
	Copied     int
	Verified   int
	// Succeeded lists fully relocated assets in input order.
	Succeeded []string
	Failures  map[string]AssetFailure
	// Refused is set when the destinations were unsafe and no remote call
	// was made. Every other failure is recorded per asset in Failures.
	Refused bool
	// Error summarizes why the relocation stopped early, if it did.
	Error string
}

func (r *Result) fail(hash string, phase Phase, d Detail) {
	f, ok := r.Failures[hash]
	if !ok {
		f.Phase = phase
	}
	f.Details = append(f.Details, d)
	r.Failures[hash] = f
}

// Orchestrator runs the three relocation phases.
type Orchestrator struct {
	remote        Remote
	actionBatch   int
	metadataBatch int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithActionBatchSize sets the batch size for copy and delete calls.
func WithActionBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.actionBatch = n
		}
	}
}

// WithMetadataBatchSize sets the batch size for verification lookups.
func WithMetadataBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.metadataBatch = n
		}
	}
}

// New returns an Orchestrator talking to remote.
func New(remote Remote, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		remote:        remote,
		actionBatch:   DefaultActionBatchSize,
		metadataBatch: DefaultMetadataBatchSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run places hashes in exactly destinations among localDomains.
//
// It refuses to do anything when destinations is empty or holds a blank
// key: without destinations the cleanup phase would delete assets from
// every local domain.
func (o *Orchestrator) Run(ctx context.Context, hashes, destinations, localDomains []string) Result {
	res := Result{Candidates: len(hashes), Failures: map[string]AssetFailure{}}

	if !validDestinations(destinations) {
		res.Refused = true
		res.Error = fmt.Sprintf("exclusive placement refused: invalid or empty destination keys %q", destinations)
		slog.Error("relocation safety violation", "destinations", destinations, "candidates", len(hashes))
		return res
	}
	if len(hashes) == 0 {
		res.Success = true
		return res
	}

	copied := o.copy(ctx, hashes, destinations, &res)
	res.Copied = len(copied)
	slog.Info("relocation copy complete", "copied", res.Copied, "candidates", res.Candidates)
	if len(copied) == 0 {
		res.Error = "no files copied"
		return res
	}

	verified := o.verify(ctx, copied, destinations, &res)
	res.Verified = len(verified)
	slog.Info("relocation verify complete", "verified", res.Verified)
	if len(verified) == 0 {
		res.Error = "no files verified"
		return res
	}

	o.cleanup(ctx, verified, destinations, localDomains, &res)
	for _, h := range hashes {
		if _, ok := verified[h]; ok {
			if _, failed := res.Failures[h]; !failed {
				res.Succeeded = append(res.Succeeded, h)
			}
		}
	}
	res.Success = len(res.Failures) == 0 && len(res.Succeeded) == res.Candidates
	slog.Info("relocation complete", "succeeded", len(res.Succeeded), "failed", len(res.Failures))
	return res
}

func validDestinations(dest []string) bool {
	if len(dest) == 0 {
		return false
	}
	for _, d := range dest {
		if strings.TrimSpace(d) == "" {
			return false
		}
	}
	return true
}

// copy adds every hash to every destination and returns the hashes that
// reached all of them, in input order.
func (o *Orchestrator) copy(ctx context.Context, hashes, destinations []string, res *Result) []string {
	survivors := slices.Clone(hashes)
	for _, dest := range destinations {
		if len(survivors) == 0 {
			break
		}
		out := batch.Run(ctx, o.remote, hashJob("relocate copy to "+dest, o.actionBatch, dest, hydrus.MigrateFiles), survivors)
		for _, f := range out.Failed {
			res.fail(f.Item, PhaseCopy, Detail{ServiceKey: dest, Message: "copy: " + f.Message, Status: f.Status})
		}
		survivors = slices.DeleteFunc(survivors, func(h string) bool {
			_, failed := res.Failures[h]
			return failed
		})
	}
	return survivors
}

// verify re-reads metadata and returns the current services of every hash
// now present in all destinations.
func (o *Orchestrator) verify(ctx context.Context, hashes, destinations []string, res *Result) map[string][]string {
	verified := make(map[string][]string, len(hashes))
	for chunk := range slices.Chunk(hashes, o.metadataBatch) {
		metas, resp := o.remote.FileMetadata(ctx, chunk)
		if !resp.Success {
			for _, h := range chunk {
				res.fail(h, PhaseVerify, Detail{Message: "metadata fetch: " + resp.Message, Status: resp.Status})
			}
			continue
		}

		byHash := make(map[string]hydrus.FileMetadata, len(metas))
		for _, m := range metas {
			byHash[m.Hash] = m
		}
		for _, h := range chunk {
			m, ok := byHash[h]
			if !ok {
				res.fail(h, PhaseVerify, Detail{Message: "no metadata returned"})
				continue
			}
			var missing []string
			for _, d := range destinations {
				if !slices.Contains(m.CurrentServices, d) {
					missing = append(missing, d)
				}
			}
			if len(missing) > 0 {
				res.fail(h, PhaseVerify, Detail{Message: fmt.Sprintf("missing from destinations %v; current services %v", missing, m.CurrentServices)})
				continue
			}
			verified[h] = m.CurrentServices
		}
	}
	return verified
}

// cleanup deletes verified hashes from every other local domain they are
// in, one batched job per domain.
func (o *Orchestrator) cleanup(ctx context.Context, verified map[string][]string, destinations, localDomains []string, res *Result) {
	byService := map[string][]string{}
	for h, current := range verified {
		for _, svc := range current {
			if slices.Contains(localDomains, svc) && !slices.Contains(destinations, svc) {
				byService[svc] = append(byService[svc], h)
			}
		}
	}

	services := make([]string, 0, len(byService))
	for svc := range byService {
		services = append(services, svc)
	}
	slices.Sort(services)

	for _, svc := range services {
		targets := slices.DeleteFunc(byService[svc], func(h string) bool {
			_, failed := res.Failures[h]
			return failed
		})
		if len(targets) == 0 {
			continue
		}
		slices.Sort(targets)
		out := batch.Run(ctx, o.remote, hashJob("relocate delete from "+svc, o.actionBatch, svc, hydrus.DeleteFiles), targets)
		for _, f := range out.Failed {
			res.fail(f.Item, PhaseCleanup, Detail{ServiceKey: svc, Message: "delete: " + f.Message, Status: f.Status})
		}
	}
}

func hashJob(label string, size int, serviceKey string, build func(string, []string) hydrus.Request) batch.Job[string] {
	return batch.Job[string]{
		Label: label,
		Size:  size,
		Batch: func(hs []string) hydrus.Request { return build(serviceKey, hs) },
		Item:  func(h string) hydrus.Request { return build(serviceKey, []string{h}) },
	}
}
