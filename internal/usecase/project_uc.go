package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"agent-hub/internal/domain"
	"agent-hub/internal/domain/model"
	"agent-hub/internal/domain/ports/repository"
)

var _ ProjectUseCase = (*projectUC)(nil)

type RegisterProjectParams struct {
	ID                string `validate:"required,max=128"`
	Name              string `validate:"required,max=200"`
	RepoURL           string `validate:"required"`
	DefaultBranch     string `validate:"omitempty,max=200"`
	ValidationCommand string
}

// ProjectUseCase manages projects and their automation policies.
type ProjectUseCase interface {
	// Register creates or updates a project. A new project gets the default
	// policy; an existing policy is left alone.
	Register(ctx context.Context, p RegisterProjectParams) (*model.Project, error)
	Get(ctx context.Context, id string) (*model.Project, error)
	List(ctx context.Context) ([]*model.Project, error)
	Policy(ctx context.Context, projectID string) (*model.Policy, error)
	UpdatePolicy(ctx context.Context, policy *model.Policy) error
}

type projectUC struct {
	projects repository.ProjectRepository
	policies repository.PolicyRepository
	tx       repository.TransactionManager
	log      *zerolog.Logger
}

func NewProjectUseCase(
	projects repository.ProjectRepository,
	policies repository.PolicyRepository,
	tx repository.TransactionManager,
	logger *zerolog.Logger,
) *projectUC {
	l := logger.With().Str("component", "projects").Logger()
	return &projectUC{projects: projects, policies: policies, tx: tx, log: &l}
}

func (u *projectUC) Register(ctx context.Context, p RegisterProjectParams) (*model.Project, error) {
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	project := &model.Project{
		ID:                strings.TrimSpace(p.ID),
		Name:              strings.TrimSpace(p.Name),
		RepoURL:           strings.TrimSpace(p.RepoURL),
		DefaultBranch:     strings.TrimSpace(p.DefaultBranch),
		ValidationCommand: strings.TrimSpace(p.ValidationCommand),
		CreatedAt:         time.Now().UTC(),
	}
	if project.DefaultBranch == "" {
		project.DefaultBranch = "main"
	}
	if existing, err := u.projects.FindByID(ctx, repository.NoTX, project.ID); err == nil {
		project.CreatedAt = existing.CreatedAt
	}

	err := u.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.projects.Save(ctx, tx, project); err != nil {
			return err
		}
		if _, err := u.policies.GetByProject(ctx, tx, project.ID); err == nil {
			return nil
		}
		return u.policies.Save(ctx, tx, model.DefaultPolicy(project.ID))
	})
	if err != nil {
		return nil, fmt.Errorf("register project %s: %w", project.ID, err)
	}
	u.log.Info().Str("project_id", project.ID).Str("repo_url", project.RepoURL).Msg("project registered")
	return project, nil
}

func (u *projectUC) Get(ctx context.Context, id string) (*model.Project, error) {
	return u.projects.FindByID(ctx, repository.NoTX, id)
}

func (u *projectUC) List(ctx context.Context) ([]*model.Project, error) {
	return u.projects.ListAll(ctx, repository.NoTX)
}

func (u *projectUC) Policy(ctx context.Context, projectID string) (*model.Policy, error) {
	return u.policies.GetByProject(ctx, repository.NoTX, projectID)
}

func (u *projectUC) UpdatePolicy(ctx context.Context, policy *model.Policy) error {
	if policy == nil || policy.ProjectID == "" || policy.MinReviewApprovals < 0 || policy.MinReviewApprovals > 2 {
		return domain.ErrInvalidArgument
	}
	if _, err := u.projects.FindByID(ctx, repository.NoTX, policy.ProjectID); err != nil {
		return err
	}
	return u.policies.Save(ctx, repository.NoTX, policy)
}
