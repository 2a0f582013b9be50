package repository

import (
	"context"
	"time"

	"agent-hub/internal/domain/model"
)

// JobFilter narrows a job listing. Zero values mean "any".
type JobFilter struct {
	ProjectID string
	Status    model.JobStatus
	Limit     int
	Offset    int
}

// JobRepository is the durable job store. Every state change is a single
// compare-and-swap on the stored status, so callers in different processes
// never need application-level locks.
type JobRepository interface {
	Enqueue(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, id string) (*model.Job, error)
	List(ctx context.Context, filter JobFilter) ([]*model.Job, error)

	// ClaimNext moves the oldest eligible queued job to running and returns it.
	// A job is eligible when no other job of its project is running. Returns
	// domain.ErrNotFound when nothing is eligible.
	ClaimNext(ctx context.Context, workerID string) (*model.Job, error)
	// Heartbeat returns domain.ErrJobNotOwned once the job is no longer
	// running under workerID.
	Heartbeat(ctx context.Context, jobID, workerID string) error
	// Complete reports false when the claim was lost before completion.
	Complete(ctx context.Context, jobID, workerID string, outcome model.JobOutcome) (bool, error)
	// Release puts a job claimed by workerID back in the queue without
	// spending an attempt. It reports false when the claim was already lost.
	Release(ctx context.Context, jobID, workerID string) (bool, error)
	Cancel(ctx context.Context, jobID string) (*model.Job, error)
	Retry(ctx context.Context, jobID string) (*model.Job, error)
	SweepStale(ctx context.Context, timeout time.Duration) (model.SweepResult, error)
	Stats(ctx context.Context) (model.JobStats, error)
}
