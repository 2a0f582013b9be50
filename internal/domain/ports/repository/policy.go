package repository

import (
	"context"

	"agent-hub/internal/domain/model"
)

type PolicyRepository interface {
	// GetByProject returns domain.ErrNotFound when the project has no policy.
	GetByProject(ctx context.Context, tx Tx, projectID string) (*model.Policy, error)
	Save(ctx context.Context, tx Tx, p *model.Policy) error
}
