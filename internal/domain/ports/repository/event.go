package repository

import (
	"context"

	"agent-hub/internal/domain/model"
)

type EventRepository interface {
	Append(ctx context.Context, tx Tx, e *model.Event) error
	ListByProject(ctx context.Context, tx Tx, projectID string, limit int) ([]*model.Event, error)
}
