// Package scheduler triggers runs on a timer and reloads inputs when their
// files change.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/butler/internal/logging"
)

// DefaultInitialDelay gives the remote service time to come up before the
// first scheduled run.
const DefaultInitialDelay = 20 * time.Second

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Interval runs a job periodically. Runs never overlap: a tick that fires
// while the job is still running is dropped.
type Interval struct {
	name         string
	every        time.Duration
	initialDelay time.Duration
	job          Job
}

// IntervalOption configures an Interval.
type IntervalOption func(*Interval)

// WithInitialDelay overrides DefaultInitialDelay.
func WithInitialDelay(d time.Duration) IntervalOption {
	return func(i *Interval) { i.initialDelay = d }
}

// NewInterval returns a schedule running job every period. A period of
// zero or less disables it.
func NewInterval(name string, every time.Duration, job Job, opts ...IntervalOption) *Interval {
	i := &Interval{name: name, every: every, initialDelay: DefaultInitialDelay, job: job}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Enabled reports whether the schedule will ever fire.
func (i *Interval) Enabled() bool { return i.every > 0 }

// Run blocks until ctx is done, running the job after the initial delay
// and then once per period. Job errors are logged, not returned.
func (i *Interval) Run(ctx context.Context) error {
	logger := logging.WithContext(ctx).With(slog.String("job", i.name))
	if !i.Enabled() {
		logger.Info("schedule disabled")
		return nil
	}
	logger.Info("schedule started", "every", i.every, "initial_delay", i.initialDelay)

	delay := time.NewTimer(i.initialDelay)
	defer delay.Stop()
	select {
	case <-ctx.Done():
		return nil
	case <-delay.C:
	}
	i.fire(ctx, logger)

	ticker := time.NewTicker(i.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("schedule stopped")
			return nil
		case <-ticker.C:
			i.fire(ctx, logger)
		}
	}
}

func (i *Interval) fire(ctx context.Context, logger *slog.Logger) {
	start := time.Now()
	if err := i.job(ctx); err != nil {
		logger.Error("scheduled job failed", "error", err, "duration", time.Since(start))
		return
	}
	logger.Debug("scheduled job finished", "duration", time.Since(start))
}
