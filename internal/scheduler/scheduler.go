// Package scheduler runs the periodic synchronization jobs.
//
// Each job fires on its own interval, independently of the others.
// Different jobs may overlap in time, but a single job never runs
// concurrently with itself: an invocation that arrives while the
// previous one is still executing is skipped (not queued) and logged.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/taskbridge/internal/engine"
)

// JobFunc is one synchronization cycle body. The returned report is
// logged; a non-nil error marks the run as failed but never stops the
// schedule.
type JobFunc func(ctx context.Context) (engine.Report, error)

// Job is a named periodic task with a reentrancy guard.
type Job struct {
	name     string
	interval time.Duration
	fn       JobFunc

	busy atomic.Bool
}

// NewJob creates a job that fires every interval.
func NewJob(name string, interval time.Duration, fn JobFunc) *Job {
	return &Job{name: name, interval: interval, fn: fn}
}

// Name returns the job's identifier as it appears in logs.
func (j *Job) Name() string { return j.name }

// Invoke runs one cycle unless the previous cycle is still executing.
// Returns false when the invocation was skipped. Guard release is
// deferred, so a run that returns an error still clears it and the
// next tick can try again.
func (j *Job) Invoke(ctx context.Context) bool {
	if !j.busy.CompareAndSwap(false, true) {
		slog.Warn("previous run still active, skipping", "job", j.name)
		return false
	}
	defer j.busy.Store(false)

	start := time.Now()
	report, err := j.fn(ctx)
	if err != nil {
		slog.Error("job run failed",
			"job", j.name,
			"duration", time.Since(start),
			"error", err)
		return true
	}
	slog.Debug("job run finished",
		"job", j.name,
		"duration", time.Since(start),
		"processed", report.Processed,
		"skipped", report.Skipped,
		"failed", report.Failed)
	return true
}

// Scheduler drives a set of jobs until its context is cancelled.
type Scheduler struct {
	jobs []*Job
}

// New creates a scheduler over the given jobs. Jobs with a zero or
// negative interval are dropped with a warning rather than spinning.
func New(jobs ...*Job) *Scheduler {
	kept := make([]*Job, 0, len(jobs))
	for _, j := range jobs {
		if j.interval <= 0 {
			slog.Warn("job disabled: non-positive interval", "job", j.name)
			continue
		}
		kept = append(kept, j)
	}
	return &Scheduler{jobs: kept}
}

// Jobs returns the scheduled jobs.
func (s *Scheduler) Jobs() []*Job { return s.jobs }

// Run fires every job once immediately, then on its interval. Blocks
// until ctx is cancelled; all job goroutines have exited by the time
// it returns.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler starting", "jobs", len(s.jobs))

	var wg sync.WaitGroup
	for _, j := range s.jobs {
		wg.Add(1)
		go func(j *Job) {
			defer wg.Done()
			s.runJob(ctx, j)
		}(j)
	}
	wg.Wait()

	slog.Info("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) runJob(ctx context.Context, j *Job) {
	slog.Info("job scheduled", "job", j.name, "interval", j.interval)

	j.Invoke(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Invoke(ctx)
		}
	}
}
