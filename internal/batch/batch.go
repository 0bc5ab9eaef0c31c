// Package batch submits remote mutations in fixed-size batches, retrying
// the items of a failed batch one at a time.
package batch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/butler/internal/hydrus"
)

// DefaultSize is used when a Job leaves Size unset.
const DefaultSize = 64

// Doer issues one remote request.
type Doer interface {
	Do(ctx context.Context, req hydrus.Request) hydrus.Response
}

// Job describes one batched mutation.
type Job[T any] struct {
	// Label names the job in logs.
	Label string
	Size  int
	// Batch builds the request for a whole batch.
	Batch func(items []T) hydrus.Request
	// Item builds the request used when a batch is retried item by item.
	Item func(item T) hydrus.Request
}

// Failure is an item that still failed after its individual retry.
type Failure[T any] struct {
	Item    T
	Message string
	Status  int
}

// Result partitions the submitted items.
type Result[T any] struct {
	Succeeded []T
	Failed    []Failure[T]
}

// OK reports whether every item succeeded.
func (r Result[T]) OK() bool { return len(r.Failed) == 0 }

// Run submits items sequentially in batches of job.Size. When a batch
// fails, each of its items is submitted once on its own; there is no
// further retry.
func Run[T any](ctx context.Context, d Doer, job Job[T], items []T) Result[T] {
	var res Result[T]
	if len(items) == 0 {
		return res
	}
	size := job.Size
	if size <= 0 {
		size = DefaultSize
	}

	slog.Info("batch started", "job", job.Label, "items", len(items), "batch_size", size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunk := items[start:end]
		num := start/size + 1

		resp := d.Do(ctx, job.Batch(chunk))
		if resp.Success {
			res.Succeeded = append(res.Succeeded, chunk...)
			continue
		}

		slog.Warn("batch failed, retrying items individually",
			"job", job.Label, "batch", num, "status", resp.Status, "error", resp.Message)
		for _, item := range chunk {
			retry := d.Do(ctx, job.Item(item))
			if retry.Success {
				res.Succeeded = append(res.Succeeded, item)
				continue
			}
			slog.Warn("item retry failed",
				"job", job.Label, "batch", num, "item", short(item), "status", retry.Status, "error", retry.Message)
			res.Failed = append(res.Failed, Failure[T]{Item: item, Message: retry.Message, Status: retry.Status})
		}
	}

	slog.Info("batch finished", "job", job.Label, "succeeded", len(res.Succeeded), "failed", len(res.Failed))
	return res
}

func short(v any) string {
	s := fmt.Sprint(v)
	if len(s) > 50 {
		return s[:50]
	}
	return s
}
