package repository

import (
	"context"

	"agent-hub/internal/domain/model"
)

type PullRequestRepository interface {
	Save(ctx context.Context, tx Tx, pr *model.PullRequest) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.PullRequest, error)
	ListByProject(ctx context.Context, tx Tx, projectID string) ([]*model.PullRequest, error)
}
