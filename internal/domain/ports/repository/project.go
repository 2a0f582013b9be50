package repository

import (
	"context"

	"agent-hub/internal/domain/model"
)

type ProjectRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Project) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Project, error)
	ListAll(ctx context.Context, tx Tx) ([]*model.Project, error)
}
