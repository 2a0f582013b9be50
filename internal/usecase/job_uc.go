package usecase

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"agent-hub/internal/domain"
	"agent-hub/internal/domain/model"
	"agent-hub/internal/domain/ports/repository"
	"agent-hub/internal/infra/logging"
)

var validate = validator.New()

// Compile-time check
var _ JobUseCase = (*jobUC)(nil)

// EnqueueParams are the caller-facing knobs of an autopilot job. Zero
// MaxItems or MaxAttempts take the configured defaults.
type EnqueueParams struct {
	ProjectID   string `validate:"required,max=128"`
	MaxItems    int    `validate:"gte=0,lte=50"`
	MaxAttempts int    `validate:"gte=0,lte=10"`
	RequestedBy string `validate:"max=128"`
	Provider    string `validate:"omitempty,oneof=rule_based openai gemini"`
}

type JobDefaults struct {
	MaxItems    int
	MaxAttempts int
}

type JobUseCase interface {
	Enqueue(ctx context.Context, p EnqueueParams) (*model.Job, error)
	Get(ctx context.Context, jobID string) (*model.Job, error)
	List(ctx context.Context, f repository.JobFilter) ([]*model.Job, error)
	// Cancel fails with domain.ErrInvalidTransition on terminal jobs.
	Cancel(ctx context.Context, jobID string) (*model.Job, error)
	// Retry fails with domain.ErrConflict while the job is queued or running
	// and with domain.ErrAttemptsExhausted once the budget is spent.
	Retry(ctx context.Context, jobID string) (*model.Job, error)
	// RunSynchronously executes one orchestration pass in the caller's
	// goroutine, bypassing the queue.
	RunSynchronously(ctx context.Context, projectID string, maxItems int, provider string) (*model.RunOutcome, error)
	Stats(ctx context.Context) (model.JobStats, error)
}

type jobUC struct {
	jobs     repository.JobRepository
	projects repository.ProjectRepository
	engine   OrchestrationUseCase
	defaults JobDefaults
	log      *zerolog.Logger
}

func NewJobUseCase(
	jobs repository.JobRepository,
	projects repository.ProjectRepository,
	engine OrchestrationUseCase,
	defaults JobDefaults,
	logger *zerolog.Logger,
) *jobUC {
	if defaults.MaxItems <= 0 {
		defaults.MaxItems = 3
	}
	if defaults.MaxAttempts <= 0 {
		defaults.MaxAttempts = 1
	}
	l := logger.With().Str("component", "jobs").Logger()
	return &jobUC{jobs: jobs, projects: projects, engine: engine, defaults: defaults, log: &l}
}

func (u *jobUC) Enqueue(ctx context.Context, p EnqueueParams) (*model.Job, error) {
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if p.MaxItems == 0 {
		p.MaxItems = u.defaults.MaxItems
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = u.defaults.MaxAttempts
	}
	if _, err := u.projects.FindByID(ctx, repository.NoTX, p.ProjectID); err != nil {
		return nil, fmt.Errorf("project %s: %w", p.ProjectID, err)
	}

	job, err := model.NewJob(ulid.Make().String(), p.ProjectID, p.MaxItems, p.MaxAttempts, p.RequestedBy, p.Provider)
	if err != nil {
		return nil, err
	}
	if err := u.jobs.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	logging.With(logging.WithJobID(ctx, job.ID), u.log).Info().
		Str("project_id", job.ProjectID).
		Int("max_items", job.MaxItems).
		Int("max_attempts", job.MaxAttempts).
		Str("requested_by", job.RequestedBy).
		Msg("job enqueued")
	return job, nil
}

func (u *jobUC) Get(ctx context.Context, jobID string) (*model.Job, error) {
	return u.jobs.Get(ctx, jobID)
}

func (u *jobUC) List(ctx context.Context, f repository.JobFilter) ([]*model.Job, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidArgument, f.Status)
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return u.jobs.List(ctx, f)
}

func (u *jobUC) Cancel(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := u.jobs.Cancel(ctx, jobID)
	if err != nil {
		return nil, err
	}
	logging.With(logging.WithJobID(ctx, jobID), u.log).Info().Msg("job canceled")
	return job, nil
}

func (u *jobUC) Retry(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := u.jobs.Retry(ctx, jobID)
	if err != nil {
		return nil, err
	}
	logging.With(logging.WithJobID(ctx, jobID), u.log).Info().
		Int("attempt_count", job.AttemptCount).
		Int("max_attempts", job.MaxAttempts).
		Msg("job requeued")
	return job, nil
}

func (u *jobUC) RunSynchronously(ctx context.Context, projectID string, maxItems int, provider string) (*model.RunOutcome, error) {
	if projectID == "" || maxItems < 0 || maxItems > 50 {
		return nil, domain.ErrInvalidArgument
	}
	return u.engine.Run(ctx, RunRequest{ProjectID: projectID, MaxItems: maxItems, Provider: provider})
}

func (u *jobUC) Stats(ctx context.Context) (model.JobStats, error) {
	return u.jobs.Stats(ctx)
}
