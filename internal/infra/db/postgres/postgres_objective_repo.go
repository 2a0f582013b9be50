package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"agent-hub/internal/domain"
	"agent-hub/internal/domain/model"
	"agent-hub/internal/domain/ports/repository"
)

var _ repository.ObjectiveRepository = (*objectiveRepo)(nil)

type objectiveRepo struct {
	pool *pgxpool.Pool
}

func NewObjectiveRepo(pool *pgxpool.Pool) *objectiveRepo {
	return &objectiveRepo{pool: pool}
}

func (r *objectiveRepo) Save(ctx context.Context, tx repository.Tx, o *model.Objective) error {
	const q = `
INSERT INTO objectives (id, project_id, text, max_work_items, created_by, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status;`
	_, err := execSQL(ctx, r.pool, tx, q, o.ID, o.ProjectID, o.Text, o.MaxWorkItems, o.CreatedBy, string(o.Status), o.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("project %s: %w", o.ProjectID, domain.ErrNotFound)
		}
		return fmt.Errorf("save objective: %w", err)
	}
	return nil
}

func (r *objectiveRepo) NextPending(ctx context.Context, tx repository.Tx, projectID string) (*model.Objective, error) {
	const q = `
SELECT id, project_id, text, max_work_items, created_by, status, created_at
  FROM objectives
 WHERE project_id = $1 AND status = 'pending'
 ORDER BY created_at, id
 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, projectID)
	if err != nil {
		return nil, err
	}
	var o model.Objective
	var status string
	if err := row.Scan(&o.ID, &o.ProjectID, &o.Text, &o.MaxWorkItems, &o.CreatedBy, &status, &o.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	o.Status = model.ObjectiveStatus(status)
	return &o, nil
}

func (r *objectiveRepo) MarkDecomposed(ctx context.Context, tx repository.Tx, id string) error {
	tag, err := execSQL(ctx, r.pool, tx, `UPDATE objectives SET status = 'decomposed' WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("mark objective decomposed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
