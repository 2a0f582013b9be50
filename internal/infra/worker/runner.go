package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"agent-hub/internal/domain"
	"agent-hub/internal/domain/model"
	"agent-hub/internal/domain/ports/adapter"
	"agent-hub/internal/domain/ports/repository"
	"agent-hub/internal/infra/logging"
	"agent-hub/internal/infra/metrics"
	"agent-hub/internal/usecase"
)

// WorkerID is the default identity of this process: worker-<hostname>-<pid>.
func WorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("worker-%s-%d", host, os.Getpid())
}

type RunnerOptions struct {
	WorkerID          string
	PollInterval      time.Duration
	StaleTimeout      time.Duration
	HeartbeatInterval time.Duration
	ErrorBackoff      time.Duration
}

// JobRunner drives queued jobs through the orchestration engine. It keeps no
// recovery state: a job abandoned by a crashed runner comes back only through
// the stale sweep.
type JobRunner struct {
	jobs     repository.JobRepository
	engine   usecase.OrchestrationUseCase
	events   *usecase.EventRecorder
	notifier adapter.Notifier
	opts     RunnerOptions
	log      *zerolog.Logger
}

func NewJobRunner(
	jobs repository.JobRepository,
	engine usecase.OrchestrationUseCase,
	events *usecase.EventRecorder,
	notifier adapter.Notifier,
	opts RunnerOptions,
	logger *zerolog.Logger,
) *JobRunner {
	if opts.WorkerID == "" {
		opts.WorkerID = WorkerID()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = opts.PollInterval
	}
	l := logger.With().Str("component", "job_runner").Logger()
	return &JobRunner{jobs: jobs, engine: engine, events: events, notifier: notifier, opts: opts, log: &l}
}

// LoopID names the loop in a given pool slot.
func (r *JobRunner) LoopID(slot int) string {
	return fmt.Sprintf("%s/%d", r.opts.WorkerID, slot)
}

// Loop runs iterations until ctx ends. Errors and panics never stop it.
func (r *JobRunner) Loop(ctx context.Context, slot int) {
	workerID := r.LoopID(slot)
	log := logging.With(logging.WithWorkerID(ctx, workerID), r.log)
	log.Info().Dur("poll_interval", r.opts.PollInterval).Msg("job runner started")
	for {
		if ctx.Err() != nil {
			log.Info().Msg("job runner stopping")
			return
		}
		processed, err := r.safeRunOnce(ctx, workerID)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				continue
			}
			log.Error().Err(err).Msg("worker iteration failed")
			sleep(ctx, r.opts.ErrorBackoff)
		case !processed:
			sleep(ctx, r.opts.PollInterval)
		}
	}
}

func (r *JobRunner) safeRunOnce(ctx context.Context, workerID string) (processed bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.IncWorkerLoopError("panic")
			err = fmt.Errorf("worker iteration panic: %v", rec)
		}
	}()
	return r.RunOnce(ctx, workerID)
}

// RunOnce sweeps stale jobs, then claims and executes at most one job.
// processed reports whether a job was claimed.
func (r *JobRunner) RunOnce(ctx context.Context, workerID string) (processed bool, err error) {
	if err := r.sweep(ctx); err != nil {
		metrics.IncWorkerLoopError("sweep")
		return false, fmt.Errorf("sweep stale jobs: %w", err)
	}

	job, err := r.jobs.ClaimNext(ctx, workerID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		metrics.IncWorkerLoopError("claim")
		return false, fmt.Errorf("claim job: %w", err)
	}

	ctx = logging.WithProjectID(logging.WithJobID(ctx, job.ID), job.ProjectID)
	log := logging.With(ctx, r.log)
	log.Info().Str("worker_id", workerID).Int("attempt_count", job.AttemptCount).Msg("job claimed")

	start := time.Now()
	outcome, busy := r.execute(ctx, job, workerID)
	if busy {
		return false, r.release(ctx, job, workerID)
	}

	// the claim is finalized even when shutdown canceled ctx
	ok, err := r.jobs.Complete(context.WithoutCancel(ctx), job.ID, workerID, outcome)
	if err != nil {
		metrics.IncWorkerLoopError("complete")
		return true, fmt.Errorf("complete job %s: %w", job.ID, err)
	}
	if !ok {
		log.Warn().Msg("job claim lost before completion; outcome discarded")
		return true, nil
	}

	status := string(outcome.Status)
	metrics.IncJobProcessed(status)
	metrics.ObserveJobDuration(status, time.Since(start).Seconds())
	r.events.Record(ctx, job.ProjectID, model.EventJobFinished, map[string]any{
		"job_id":    job.ID,
		"status":    status,
		"worker_id": workerID,
		"error":     outcome.Error,
	})
	if outcome.Status == model.JobStatusFailed {
		log.Warn().Str("status", status).Str("error", outcome.Error).Dur("duration", time.Since(start)).Msg("job finished")
		r.notify(ctx, fmt.Sprintf("autopilot job %s for project %s failed: %s", job.ID, job.ProjectID, outcome.Error))
		return true, nil
	}
	log.Info().Str("status", status).Dur("duration", time.Since(start)).Msg("job finished")
	return true, nil
}

// release hands a job back to the queue when its project is locked by
// another run, typically a synchronous run or a lease left by a lost worker.
// No attempt is spent.
func (r *JobRunner) release(ctx context.Context, job *model.Job, workerID string) error {
	log := logging.With(ctx, r.log)
	ok, err := r.jobs.Release(context.WithoutCancel(ctx), job.ID, workerID)
	if err != nil {
		metrics.IncWorkerLoopError("release")
		return fmt.Errorf("release job %s: %w", job.ID, err)
	}
	if !ok {
		log.Warn().Msg("job claim lost before release")
		return nil
	}
	log.Info().Msg("project busy; job returned to the queue")
	return nil
}

func (r *JobRunner) sweep(ctx context.Context) error {
	if r.opts.StaleTimeout <= 0 {
		return nil
	}
	res, err := r.jobs.SweepStale(ctx, r.opts.StaleTimeout)
	if err != nil {
		return err
	}
	if res.Recovered() == 0 {
		return nil
	}
	metrics.AddStaleRecovered(res.Requeued, res.Failed)
	r.log.Warn().Int("requeued", res.Requeued).Int("failed", res.Failed).Msg("recovered stale jobs")
	for _, id := range res.FailedJobIDs {
		projectID := ""
		if job, err := r.jobs.Get(ctx, id); err == nil {
			projectID = job.ProjectID
		}
		r.events.Record(ctx, projectID, model.EventJobStaleFailed, map[string]any{"job_id": id})
		r.notify(ctx, fmt.Sprintf("autopilot job %s failed: %s", id, model.StaleJobError))
	}
	return nil
}

// execute runs the engine under a heartbeat. Losing the claim closes the
// cancel signal so the run stops at its next checkpoint. busy reports that
// the project lock was held elsewhere and nothing ran.
func (r *JobRunner) execute(ctx context.Context, job *model.Job, workerID string) (out model.JobOutcome, busy bool) {
	cancel := make(chan struct{})
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.heartbeat(hbCtx, job.ID, workerID, cancel)
	}()
	defer func() {
		stopHeartbeat()
		wg.Wait()
	}()

	defer func() {
		if rec := recover(); rec != nil {
			metrics.IncWorkerLoopError("panic")
			logging.With(ctx, r.log).Error().Interface("panic", rec).Msg("job execution panicked")
			out, busy = model.Failed(fmt.Sprintf("panic during run: %v", rec)), false
		}
	}()

	res, err := r.engine.Run(ctx, usecase.RunRequest{
		ProjectID: job.ProjectID,
		MaxItems:  job.MaxItems,
		Provider:  job.Provider,
		JobID:     job.ID,
		Cancel:    cancel,
	})
	if errors.Is(err, domain.ErrProjectBusy) {
		return model.JobOutcome{}, true
	}
	if err != nil {
		return model.Failed(err.Error()), false
	}
	if res.Canceled && ctx.Err() != nil {
		return model.Failed("worker stopped before the run completed"), false
	}
	if failed := res.Failed(); failed > 0 {
		logging.With(ctx, r.log).Info().Int("failed_items", failed).Msg("run finished with item failures")
	}
	return model.Succeeded(res), false
}

func (r *JobRunner) heartbeat(ctx context.Context, jobID, workerID string, cancel chan<- struct{}) {
	t := time.NewTicker(r.opts.HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			err := r.jobs.Heartbeat(ctx, jobID, workerID)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrJobNotOwned):
				logging.With(ctx, r.log).Info().Msg("job no longer owned; requesting cancel")
				close(cancel)
				return
			case ctx.Err() != nil:
				return
			default:
				metrics.IncWorkerLoopError("heartbeat")
				logging.With(ctx, r.log).Warn().Err(err).Msg("heartbeat failed")
			}
		}
	}
}

func (r *JobRunner) notify(ctx context.Context, text string) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(context.WithoutCancel(ctx), strings.TrimSpace(text)); err != nil {
		r.log.Warn().Err(err).Msg("notification failed")
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
