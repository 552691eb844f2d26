// Package store provides the JobRunner for executing durable jobs.
package store

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// defaultClaimBatch caps how many due jobs one poll picks up.
	defaultClaimBatch = 10
	// staleClaimThreshold is how long a job may sit in running before
	// startup recovery treats its owner as crashed.
	staleClaimThreshold = 5 * time.Minute
	// handlerTimeout bounds a single job execution. Kickoff jobs talk to
	// the model and to Slack, either of which can hang.
	handlerTimeout = 2 * time.Minute
	// retryBackoffBase is the delay before a failed job's first retry; it
	// doubles per attempt.
	retryBackoffBase = 30 * time.Second
)

// JobHandler executes one job. It receives the job's payload JSON and
// returns an error when the work must be retried.
type JobHandler func(ctx context.Context, payload string) error

// JobRunner claims due jobs from the store and dispatches them to the
// handler registered for their kind. Kickoff and purge work runs here, not
// in the cron triggers, so a crash between trigger and execution loses
// nothing.
type JobRunner struct {
	repo         JobRepo
	pollInterval time.Duration

	mu       sync.RWMutex
	handlers map[string]JobHandler
}

// NewJobRunner creates a runner polling the repo at the given interval.
func NewJobRunner(repo JobRepo, pollInterval time.Duration) *JobRunner {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	return &JobRunner{
		repo:         repo,
		pollInterval: pollInterval,
		handlers:     make(map[string]JobHandler),
	}
}

// RegisterHandler binds a job kind to its handler.
func (r *JobRunner) RegisterHandler(kind string, handler JobHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = handler
	slog.Debug("JobRunner.RegisterHandler", "kind", kind)
}

// RecoverStaleJobs requeues jobs a crashed process left in running.
// Called once at startup before the polling loop begins.
func (r *JobRunner) RecoverStaleJobs() error {
	n, err := r.repo.RequeueStaleRunningJobs(time.Now().Add(-staleClaimThreshold))
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("JobRunner.RecoverStaleJobs: requeued stale jobs", "count", n)
	}
	return nil
}

// Run polls until the context is cancelled. Work that queued while the
// process was down (a missed Monday kickoff, a pending purge) runs on the
// first pass rather than waiting out a full interval.
func (r *JobRunner) Run(ctx context.Context) {
	slog.Info("JobRunner.Run: starting", "pollInterval", r.pollInterval)
	r.poll(ctx)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("JobRunner.Run: stopping")
			return
		case <-ticker.C:
			r.poll(ctx)
		}
	}
}

func (r *JobRunner) poll(ctx context.Context) {
	now := time.Now()
	jobs, err := r.repo.ClaimDueJobs(now, defaultClaimBatch)
	if err != nil {
		slog.Error("JobRunner.poll: claim failed", "error", err)
		return
	}
	for _, job := range jobs {
		r.execute(ctx, now, job)
	}
}

func (r *JobRunner) execute(ctx context.Context, now time.Time, job Job) {
	r.mu.RLock()
	handler, ok := r.handlers[job.Kind]
	r.mu.RUnlock()

	if !ok {
		slog.Warn("JobRunner.execute: no handler for kind", "kind", job.Kind, "id", job.ID, "dedupeKey", job.DedupeKey)
		if err := r.repo.FailJob(job.ID, "no handler registered for kind: "+job.Kind, now.Add(time.Minute)); err != nil {
			slog.Error("JobRunner.execute: fail job error", "id", job.ID, "error", err)
		}
		return
	}

	slog.Debug("JobRunner.execute: running job", "id", job.ID, "kind", job.Kind, "attempt", job.Attempt, "dedupeKey", job.DedupeKey)
	jobCtx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	if err := handler(jobCtx, job.PayloadJSON); err != nil {
		slog.Error("JobRunner.execute: job failed", "id", job.ID, "kind", job.Kind, "attempt", job.Attempt, "error", err)
		if err := r.repo.FailJob(job.ID, err.Error(), now.Add(retryDelay(job.Attempt))); err != nil {
			slog.Error("JobRunner.execute: fail job error", "id", job.ID, "error", err)
		}
		return
	}
	if err := r.repo.CompleteJob(job.ID); err != nil {
		slog.Error("JobRunner.execute: complete job error", "id", job.ID, "error", err)
		return
	}
	slog.Debug("JobRunner.execute: job done", "id", job.ID, "kind", job.Kind)
}

// retryDelay doubles the base backoff per prior attempt: 30s, 60s, 120s.
func retryDelay(attempt int) time.Duration {
	return retryBackoffBase << attempt
}
