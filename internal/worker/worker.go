// Package worker drains the SQLite job queue that carries long-running
// design work (plan generation, interior rendering) off the request path.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/archai/internal/storage"
)

// JobStore is the slice of storage.Store the worker needs.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// Runner executes one claimed job.
type Runner interface {
	RunJob(ctx context.Context, job storage.Job) error
}

// Worker polls for jobs of the given types and hands them to a Runner.
// Jobs run one at a time.
type Worker struct {
	store  JobStore
	runner Runner
	types  []string
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker returns a Worker claiming jobs of types. A non-positive
// pollInterval means 500ms.
func NewWorker(store JobStore, runner Runner, types []string, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:  store,
		runner: runner,
		types:  types,
		poll:   pollInterval,
		logger: slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled. After a job finishes the next
// claim happens immediately; an empty queue waits one poll interval.
func (w *Worker) Run(ctx context.Context) {
	idle := time.NewTimer(0)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-idle.C:
		}

		worked, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if worked {
			idle.Reset(0)
		} else {
			idle.Reset(w.poll)
		}
	}
}

// RunOnce claims and processes at most one job and reports whether it
// found one. A job that fails or panics is recorded as failed; only queue
// errors are returned.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(w.types)
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	log := w.logger.With("job_id", job.ID, "type", job.Type, "session_id", job.SessionID)
	start := time.Now()
	log.Info("job started")

	if err := w.run(ctx, *job); err != nil {
		log.Warn("job failed", "error", err)
		if ferr := w.store.FailJob(job.ID, err.Error()); ferr != nil {
			log.Error("recording job failure", "error", ferr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	log.Info("job completed", "duration_ms", time.Since(start).Milliseconds())
	return true, nil
}

// run shields the loop from a panicking runner.
func (w *Worker) run(ctx context.Context, job storage.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.runner.RunJob(ctx, job)
}
