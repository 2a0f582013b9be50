package repository

import (
	"context"

	"agent-hub/internal/domain/model"
)

type WorkItemRepository interface {
	Save(ctx context.Context, tx Tx, item *model.WorkItem) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.WorkItem, error)
	// ListSelectable returns pending and in-progress items ordered by
	// priority then creation time.
	ListSelectable(ctx context.Context, tx Tx, projectID string, limit int) ([]*model.WorkItem, error)
	ListByProject(ctx context.Context, tx Tx, projectID string) ([]*model.WorkItem, error)
}
