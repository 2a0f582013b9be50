package model

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"agent-hub/internal/domain"
)

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// StaleJobError is recorded on jobs recovered by the stale sweep.
const StaleJobError = "stale: worker presumed lost"

// MaxJobErrorLen bounds the error text stored on a job row.
const MaxJobErrorLen = 3000

var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusQueued:    {JobStatusRunning, JobStatusCanceled},
	JobStatusRunning:   {JobStatusSucceeded, JobStatusFailed, JobStatusCanceled, JobStatusQueued},
	JobStatusFailed:    {JobStatusQueued},
	JobStatusCanceled:  {JobStatusQueued},
	JobStatusSucceeded: {},
}

// Valid reports whether s is one of the known job states.
func (s JobStatus) Valid() bool {
	_, ok := jobTransitions[s]
	return ok
}

// Terminal reports whether no worker will touch the job again without a retry.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed || s == JobStatusCanceled
}

// Active reports whether the job is scheduled or executing.
func (s JobStatus) Active() bool {
	return s == JobStatusQueued || s == JobStatusRunning
}

// ValidateTransition returns domain.ErrInvalidTransition unless from -> to is
// in the job state machine. running -> queued is only taken by the stale sweep.
func ValidateTransition(from, to JobStatus) error {
	for _, next := range jobTransitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
}

// JobResult is the success summary written when a run completes.
type JobResult struct {
	ProcessedItems int      `json:"processed_items"`
	CreatedPRs     int      `json:"created_prs"`
	MergedPRs      int      `json:"merged_prs"`
	MergedPRIDs    []string `json:"merged_pr_ids"`
}

type Job struct {
	ID           string     `json:"id"`
	ProjectID    string     `json:"project_id"`
	Status       JobStatus  `json:"status"`
	MaxItems     int        `json:"max_items"`
	MaxAttempts  int        `json:"max_attempts"`
	AttemptCount int        `json:"attempt_count"`
	Provider     string     `json:"provider,omitempty"`
	RequestedBy  string     `json:"requested_by"`
	WorkerID     string     `json:"worker_id,omitempty"`
	Result       *JobResult `json:"result,omitempty"`
	Error        string     `json:"error,omitempty"`
	Canceled     bool       `json:"canceled"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ClaimedAt    *time.Time `json:"claimed_at,omitempty"`
	HeartbeatAt  *time.Time `json:"heartbeat_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	CanceledAt   *time.Time `json:"canceled_at,omitempty"`
}

// CanRetry reports whether the retry budget allows another attempt.
func (j *Job) CanRetry() bool {
	return j.AttemptCount < j.MaxAttempts
}

// JobOutcome is what a worker reports when it finishes executing a job.
type JobOutcome struct {
	Status JobStatus
	Result *JobResult
	Error  string
}

// Succeeded builds a success outcome from a run.
func Succeeded(run *RunOutcome) JobOutcome {
	return JobOutcome{Status: JobStatusSucceeded, Result: run.JobResult()}
}

// Failed builds a failure outcome, truncating the reason for storage.
func Failed(reason string) JobOutcome {
	if reason == "" {
		reason = "job execution failed"
	}
	return JobOutcome{Status: JobStatusFailed, Error: TruncateError(reason)}
}

// TruncateError keeps at most MaxJobErrorLen bytes of valid UTF-8. The cut
// never splits a rune.
func TruncateError(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= MaxJobErrorLen {
		return s
	}
	cut := MaxJobErrorLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// SweepResult summarizes one stale-job sweep.
type SweepResult struct {
	Requeued     int
	Failed       int
	FailedJobIDs []string
}

// Recovered is the number of stale jobs moved out of running.
func (r SweepResult) Recovered() int {
	return r.Requeued + r.Failed
}

// JobStats is a point-in-time view of the queue used for gauges.
type JobStats struct {
	ByStatus       map[JobStatus]int
	OldestQueuedAt *time.Time
}

// OldestQueuedAge returns how long the oldest queued job has waited.
func (s JobStats) OldestQueuedAge(now time.Time) time.Duration {
	if s.OldestQueuedAt == nil {
		return 0
	}
	return now.Sub(*s.OldestQueuedAt)
}

// NewJob validates enqueue parameters and returns a queued job.
func NewJob(id, projectID string, maxItems, maxAttempts int, requestedBy, provider string) (*Job, error) {
	if id == "" || projectID == "" || maxItems <= 0 || maxAttempts <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if requestedBy == "" {
		requestedBy = "system"
	}
	now := time.Now().UTC()
	return &Job{
		ID:          id,
		ProjectID:   projectID,
		Status:      JobStatusQueued,
		MaxItems:    maxItems,
		MaxAttempts: maxAttempts,
		Provider:    provider,
		RequestedBy: requestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
