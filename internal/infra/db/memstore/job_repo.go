package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"agent-hub/internal/domain"
	"agent-hub/internal/domain/model"
	"agent-hub/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	s *Store
}

func cloneJob(j *model.Job) *model.Job {
	cp := *j
	cp.ClaimedAt = cloneTime(j.ClaimedAt)
	cp.HeartbeatAt = cloneTime(j.HeartbeatAt)
	cp.FinishedAt = cloneTime(j.FinishedAt)
	cp.CanceledAt = cloneTime(j.CanceledAt)
	if j.Result != nil {
		r := *j.Result
		r.MergedPRIDs = append([]string{}, j.Result.MergedPRIDs...)
		cp.Result = &r
	}
	return &cp
}

func (r *jobRepo) Enqueue(ctx context.Context, job *model.Job) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.jobs[job.ID]; ok {
		return domain.ErrAlreadyExists
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = r.s.now()
	}
	job.UpdatedAt = job.CreatedAt
	job.Status = model.JobStatusQueued
	job.AttemptCount = 0
	r.s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *jobRepo) Get(ctx context.Context, id string) (*model.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(j), nil
}

func (r *jobRepo) List(ctx context.Context, f repository.JobFilter) ([]*model.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*model.Job, 0)
	for _, j := range r.s.jobs {
		if f.ProjectID != "" && j.ProjectID != f.ProjectID {
			continue
		}
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		out = append(out, cloneJob(j))
	}
	// newest first, like the SQL listing
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID > out[b].ID
		}
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []*model.Job{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *jobRepo) ClaimNext(ctx context.Context, workerID string) (*model.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	busy := map[string]bool{}
	var queued []*model.Job
	for _, j := range r.s.jobs {
		switch j.Status {
		case model.JobStatusRunning:
			busy[j.ProjectID] = true
		case model.JobStatusQueued:
			queued = append(queued, j)
		}
	}
	sort.Slice(queued, func(a, b int) bool {
		if queued[a].CreatedAt.Equal(queued[b].CreatedAt) {
			return queued[a].ID < queued[b].ID
		}
		return queued[a].CreatedAt.Before(queued[b].CreatedAt)
	})
	for _, j := range queued {
		if busy[j.ProjectID] {
			continue
		}
		now := r.s.now()
		j.Status = model.JobStatusRunning
		j.WorkerID = workerID
		j.ClaimedAt = &now
		hb := now
		j.HeartbeatAt = &hb
		j.UpdatedAt = now
		return cloneJob(j), nil
	}
	return nil, domain.ErrNotFound
}

func (r *jobRepo) Heartbeat(ctx context.Context, jobID, workerID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if j.Status != model.JobStatusRunning || j.WorkerID != workerID {
		return domain.ErrJobNotOwned
	}
	now := r.s.now()
	j.HeartbeatAt = &now
	j.UpdatedAt = now
	return nil
}

func (r *jobRepo) Complete(ctx context.Context, jobID, workerID string, outcome model.JobOutcome) (bool, error) {
	if outcome.Status != model.JobStatusSucceeded && outcome.Status != model.JobStatusFailed {
		return false, fmt.Errorf("%w: completion status %q", domain.ErrInvalidArgument, outcome.Status)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[jobID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if j.Status != model.JobStatusRunning || j.WorkerID != workerID {
		return false, nil
	}
	now := r.s.now()
	j.Status = outcome.Status
	j.FinishedAt = &now
	j.UpdatedAt = now
	j.ClaimedAt = nil
	j.HeartbeatAt = nil
	if outcome.Status == model.JobStatusSucceeded {
		j.Result = outcome.Result
		j.Error = ""
	} else {
		j.Error = model.TruncateError(outcome.Error)
	}
	return true, nil
}

func (r *jobRepo) Release(ctx context.Context, jobID, workerID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[jobID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if j.Status != model.JobStatusRunning || j.WorkerID != workerID {
		return false, nil
	}
	j.Status = model.JobStatusQueued
	j.WorkerID = ""
	j.ClaimedAt = nil
	j.HeartbeatAt = nil
	j.UpdatedAt = r.s.now()
	return true, nil
}

func (r *jobRepo) Cancel(ctx context.Context, jobID string) (*model.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := model.ValidateTransition(j.Status, model.JobStatusCanceled); err != nil {
		return nil, err
	}
	now := r.s.now()
	j.Status = model.JobStatusCanceled
	j.Canceled = true
	j.CanceledAt = &now
	j.FinishedAt = &now
	j.UpdatedAt = now
	j.ClaimedAt = nil
	j.HeartbeatAt = nil
	return cloneJob(j), nil
}

func (r *jobRepo) Retry(ctx context.Context, jobID string) (*model.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if j.Status.Active() {
		return nil, fmt.Errorf("%w: job is %s", domain.ErrConflict, j.Status)
	}
	if err := model.ValidateTransition(j.Status, model.JobStatusQueued); err != nil {
		return nil, err
	}
	if !j.CanRetry() {
		return nil, domain.ErrAttemptsExhausted
	}
	requeue(j, r.s.now())
	return cloneJob(j), nil
}

func requeue(j *model.Job, now time.Time) {
	j.Status = model.JobStatusQueued
	j.AttemptCount++
	j.WorkerID = ""
	j.ClaimedAt = nil
	j.HeartbeatAt = nil
	j.FinishedAt = nil
	j.CanceledAt = nil
	j.Canceled = false
	j.Result = nil
	j.Error = ""
	j.UpdatedAt = now
}

func (r *jobRepo) SweepStale(ctx context.Context, timeout time.Duration) (model.SweepResult, error) {
	res := model.SweepResult{}
	if timeout <= 0 {
		return res, nil
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	cutoff := now.Add(-timeout)

	ids := make([]string, 0)
	for id, j := range r.s.jobs {
		if j.Status == model.JobStatusRunning && j.HeartbeatAt != nil && j.HeartbeatAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		j := r.s.jobs[id]
		if j.CanRetry() {
			requeue(j, now)
			res.Requeued++
			continue
		}
		j.Status = model.JobStatusFailed
		j.Error = model.StaleJobError
		j.FinishedAt = &now
		j.UpdatedAt = now
		j.ClaimedAt = nil
		j.HeartbeatAt = nil
		res.Failed++
		res.FailedJobIDs = append(res.FailedJobIDs, id)
	}
	return res, nil
}

func (r *jobRepo) Stats(ctx context.Context) (model.JobStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := model.JobStats{ByStatus: map[model.JobStatus]int{}}
	for _, j := range r.s.jobs {
		st.ByStatus[j.Status]++
		if j.Status == model.JobStatusQueued {
			if st.OldestQueuedAt == nil || j.CreatedAt.Before(*st.OldestQueuedAt) {
				t := j.CreatedAt
				st.OldestQueuedAt = &t
			}
		}
	}
	return st, nil
}
