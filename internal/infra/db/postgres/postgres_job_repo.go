package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"agent-hub/internal/domain"
	"agent-hub/internal/domain/model"
	"agent-hub/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*jobRepo)(nil)

// jobRepo is the durable job store. Each transition is one conditional
// UPDATE keyed on the current status, so concurrent workers in separate
// processes serialize on the row itself.
type jobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *jobRepo {
	return &jobRepo{pool: pool}
}

const jobColumns = `id, project_id, status, max_items, max_attempts, attempt_count, provider, requested_by,
  worker_id, result, error, canceled, created_at, updated_at, claimed_at, heartbeat_at, finished_at, canceled_at`

func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		j      model.Job
		status string
		result []byte
	)
	err := row.Scan(
		&j.ID, &j.ProjectID, &status, &j.MaxItems, &j.MaxAttempts, &j.AttemptCount, &j.Provider, &j.RequestedBy,
		&j.WorkerID, &result, &j.Error, &j.Canceled, &j.CreatedAt, &j.UpdatedAt,
		&j.ClaimedAt, &j.HeartbeatAt, &j.FinishedAt, &j.CanceledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	j.Status = model.JobStatus(status)
	if len(result) > 0 {
		var r model.JobResult
		if err := json.Unmarshal(result, &r); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		j.Result = &r
	}
	return &j, nil
}

func (r *jobRepo) Enqueue(ctx context.Context, job *model.Job) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	job.UpdatedAt = job.CreatedAt
	job.Status = model.JobStatusQueued
	job.AttemptCount = 0

	const q = `
INSERT INTO autopilot_jobs (id, project_id, status, max_items, max_attempts, attempt_count, provider, requested_by, created_at, updated_at)
VALUES ($1, $2, 'queued', $3, $4, 0, $5, $6, $7, $7);`
	_, err := execSQL(ctx, r.pool, nil, q,
		job.ID, job.ProjectID, job.MaxItems, job.MaxAttempts, job.Provider, job.RequestedBy, job.CreatedAt)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return domain.ErrAlreadyExists
	case isForeignKeyViolation(err):
		return fmt.Errorf("project %s: %w", job.ProjectID, domain.ErrNotFound)
	default:
		return fmt.Errorf("enqueue job: %w", err)
	}
}

func (r *jobRepo) Get(ctx context.Context, id string) (*model.Job, error) {
	row, err := pickRow(ctx, r.pool, nil, `SELECT `+jobColumns+` FROM autopilot_jobs WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *jobRepo) List(ctx context.Context, f repository.JobFilter) ([]*model.Job, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	q := `
SELECT ` + jobColumns + `
  FROM autopilot_jobs
 WHERE ($1 = '' OR project_id = $1)
   AND ($2 = '' OR status = $2)
 ORDER BY created_at DESC, id DESC
 LIMIT $3 OFFSET $4;`
	rows, err := queryRows(ctx, r.pool, nil, q, f.ProjectID, string(f.Status), limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	out := make([]*model.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

// ClaimNext takes the oldest queued job whose project has nothing running.
// Two workers racing on different jobs of the same project both pass the
// NOT EXISTS check; the partial unique index rejects the loser, which is
// reported as "nothing eligible".
func (r *jobRepo) ClaimNext(ctx context.Context, workerID string) (*model.Job, error) {
	q := `
UPDATE autopilot_jobs AS j
   SET status = 'running', worker_id = $1, claimed_at = now(), heartbeat_at = now(), updated_at = now()
 WHERE j.id = (
        SELECT q.id
          FROM autopilot_jobs q
         WHERE q.status = 'queued'
           AND NOT EXISTS (
                SELECT 1 FROM autopilot_jobs b
                 WHERE b.project_id = q.project_id AND b.status = 'running')
         ORDER BY q.created_at, q.id
         LIMIT 1
           FOR UPDATE SKIP LOCKED)
   AND j.status = 'queued'
RETURNING ` + jobColumns + `;`
	row, err := pickRow(ctx, r.pool, nil, q, workerID)
	if err != nil {
		return nil, err
	}
	job, err := scanJob(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

func (r *jobRepo) Heartbeat(ctx context.Context, jobID, workerID string) error {
	const q = `
UPDATE autopilot_jobs
   SET heartbeat_at = now(), updated_at = now()
 WHERE id = $1 AND status = 'running' AND worker_id = $2;`
	tag, err := execSQL(ctx, r.pool, nil, q, jobID, workerID)
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.Get(ctx, jobID); err != nil {
		return err
	}
	return domain.ErrJobNotOwned
}

func (r *jobRepo) Complete(ctx context.Context, jobID, workerID string, outcome model.JobOutcome) (bool, error) {
	if outcome.Status != model.JobStatusSucceeded && outcome.Status != model.JobStatusFailed {
		return false, fmt.Errorf("%w: completion status %q", domain.ErrInvalidArgument, outcome.Status)
	}
	var result []byte
	if outcome.Status == model.JobStatusSucceeded && outcome.Result != nil {
		b, err := json.Marshal(outcome.Result)
		if err != nil {
			return false, err
		}
		result = b
	}
	const q = `
UPDATE autopilot_jobs
   SET status = $3, result = $4, error = $5,
       finished_at = now(), updated_at = now(), claimed_at = NULL, heartbeat_at = NULL
 WHERE id = $1 AND status = 'running' AND worker_id = $2;`
	tag, err := execSQL(ctx, r.pool, nil, q,
		jobID, workerID, string(outcome.Status), result, model.TruncateError(outcome.Error))
	if err != nil {
		return false, fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := r.Get(ctx, jobID); err != nil {
		return false, err
	}
	return false, nil
}

func (r *jobRepo) Release(ctx context.Context, jobID, workerID string) (bool, error) {
	const q = `
UPDATE autopilot_jobs
   SET status = 'queued', worker_id = '', claimed_at = NULL, heartbeat_at = NULL, updated_at = now()
 WHERE id = $1 AND status = 'running' AND worker_id = $2;`
	tag, err := execSQL(ctx, r.pool, nil, q, jobID, workerID)
	if err != nil {
		return false, fmt.Errorf("release job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := r.Get(ctx, jobID); err != nil {
		return false, err
	}
	return false, nil
}

func (r *jobRepo) Cancel(ctx context.Context, jobID string) (*model.Job, error) {
	q := `
UPDATE autopilot_jobs
   SET status = 'canceled', canceled = TRUE, canceled_at = now(), finished_at = now(),
       updated_at = now(), claimed_at = NULL, heartbeat_at = NULL
 WHERE id = $1 AND status IN ('queued', 'running')
RETURNING ` + jobColumns + `;`
	row, err := pickRow(ctx, r.pool, nil, q, jobID)
	if err != nil {
		return nil, err
	}
	job, err := scanJob(row)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	current, err := r.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return nil, model.ValidateTransition(current.Status, model.JobStatusCanceled)
}

func (r *jobRepo) Retry(ctx context.Context, jobID string) (*model.Job, error) {
	q := `
UPDATE autopilot_jobs
   SET status = 'queued', attempt_count = attempt_count + 1, worker_id = '',
       claimed_at = NULL, heartbeat_at = NULL, finished_at = NULL, canceled_at = NULL,
       canceled = FALSE, result = NULL, error = '', updated_at = now()
 WHERE id = $1 AND status IN ('failed', 'canceled') AND attempt_count < max_attempts
RETURNING ` + jobColumns + `;`
	row, err := pickRow(ctx, r.pool, nil, q, jobID)
	if err != nil {
		return nil, err
	}
	job, err := scanJob(row)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	current, err := r.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	switch {
	case current.Status.Active():
		return nil, fmt.Errorf("%w: job is %s", domain.ErrConflict, current.Status)
	case current.Status == model.JobStatusSucceeded:
		return nil, model.ValidateTransition(current.Status, model.JobStatusQueued)
	default:
		return nil, domain.ErrAttemptsExhausted
	}
}

// SweepStale recovers every stale running job in one statement. SET
// expressions read the pre-update row, so the budget check and the increment
// agree.
func (r *jobRepo) SweepStale(ctx context.Context, timeout time.Duration) (model.SweepResult, error) {
	res := model.SweepResult{}
	if timeout <= 0 {
		return res, nil
	}
	const q = `
WITH stale AS (
    SELECT id FROM autopilot_jobs
     WHERE status = 'running' AND heartbeat_at < now() - make_interval(secs => $1)
       FOR UPDATE SKIP LOCKED
)
UPDATE autopilot_jobs AS j
   SET status        = CASE WHEN j.attempt_count < j.max_attempts THEN 'queued' ELSE 'failed' END,
       attempt_count = CASE WHEN j.attempt_count < j.max_attempts THEN j.attempt_count + 1 ELSE j.attempt_count END,
       error         = CASE WHEN j.attempt_count < j.max_attempts THEN '' ELSE $2 END,
       worker_id     = CASE WHEN j.attempt_count < j.max_attempts THEN '' ELSE j.worker_id END,
       finished_at   = CASE WHEN j.attempt_count < j.max_attempts THEN NULL ELSE now() END,
       claimed_at = NULL, heartbeat_at = NULL, updated_at = now()
  FROM stale
 WHERE j.id = stale.id
RETURNING j.id, j.status;`
	rows, err := queryRows(ctx, r.pool, nil, q, timeout.Seconds(), model.StaleJobError)
	if err != nil {
		return res, fmt.Errorf("sweep stale jobs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			return res, domain.ErrReadDatabaseRow
		}
		if model.JobStatus(status) == model.JobStatusQueued {
			res.Requeued++
			continue
		}
		res.Failed++
		res.FailedJobIDs = append(res.FailedJobIDs, id)
	}
	if err := rows.Err(); err != nil {
		return res, fmt.Errorf("sweep stale jobs: %w", err)
	}
	return res, nil
}

func (r *jobRepo) Stats(ctx context.Context) (model.JobStats, error) {
	st := model.JobStats{ByStatus: map[model.JobStatus]int{}}
	rows, err := queryRows(ctx, r.pool, nil, `SELECT status, count(*) FROM autopilot_jobs GROUP BY status;`)
	if err != nil {
		return st, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return st, domain.ErrReadDatabaseRow
		}
		st.ByStatus[model.JobStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return st, domain.ErrReadDatabaseRow
	}

	row, err := pickRow(ctx, r.pool, nil, `SELECT min(created_at) FROM autopilot_jobs WHERE status = 'queued';`)
	if err != nil {
		return st, err
	}
	if err := row.Scan(&st.OldestQueuedAt); err != nil {
		return st, fmt.Errorf("oldest queued job: %w", err)
	}
	return st, nil
}
