package repository

import (
	"context"

	"agent-hub/internal/domain/model"
)

type ObjectiveRepository interface {
	Save(ctx context.Context, tx Tx, o *model.Objective) error
	// NextPending returns the oldest pending objective or domain.ErrNotFound.
	NextPending(ctx context.Context, tx Tx, projectID string) (*model.Objective, error)
	MarkDecomposed(ctx context.Context, tx Tx, id string) error
}
