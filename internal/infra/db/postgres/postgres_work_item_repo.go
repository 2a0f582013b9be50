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

var _ repository.WorkItemRepository = (*workItemRepo)(nil)

type workItemRepo struct {
	pool *pgxpool.Pool
}

func NewWorkItemRepo(pool *pgxpool.Pool) *workItemRepo {
	return &workItemRepo{pool: pool}
}

const workItemColumns = `id, project_id, objective_id, title, description, priority, status, assigned_agent,
  branch, pull_request_id, last_error, created_at, updated_at, completed_at`

func scanWorkItem(row pgx.Row) (*model.WorkItem, error) {
	var w model.WorkItem
	var status string
	err := row.Scan(&w.ID, &w.ProjectID, &w.ObjectiveID, &w.Title, &w.Description, &w.Priority, &status,
		&w.AssignedAgent, &w.Branch, &w.PullRequestID, &w.LastError, &w.CreatedAt, &w.UpdatedAt, &w.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	w.Status = model.WorkItemStatus(status)
	return &w, nil
}

func (r *workItemRepo) Save(ctx context.Context, tx repository.Tx, w *model.WorkItem) error {
	const q = `
INSERT INTO work_items (id, project_id, objective_id, title, description, priority, status, assigned_agent,
  branch, pull_request_id, last_error, created_at, updated_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, COALESCE($12, now()), now(), $13)
ON CONFLICT (id) DO UPDATE SET
  title = EXCLUDED.title,
  description = EXCLUDED.description,
  priority = EXCLUDED.priority,
  status = EXCLUDED.status,
  assigned_agent = EXCLUDED.assigned_agent,
  branch = EXCLUDED.branch,
  pull_request_id = EXCLUDED.pull_request_id,
  last_error = EXCLUDED.last_error,
  updated_at = now(),
  completed_at = EXCLUDED.completed_at
RETURNING created_at, updated_at;`
	var created interface{}
	if !w.CreatedAt.IsZero() {
		created = w.CreatedAt
	}
	row, err := pickRow(ctx, r.pool, tx, q, w.ID, w.ProjectID, w.ObjectiveID, w.Title, w.Description, w.Priority,
		string(w.Status), w.AssignedAgent, w.Branch, w.PullRequestID, w.LastError, created, w.CompletedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&w.CreatedAt, &w.UpdatedAt); err != nil {
		return fmt.Errorf("save work item: %w", err)
	}
	return nil
}

func (r *workItemRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.WorkItem, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+workItemColumns+` FROM work_items WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanWorkItem(row)
}

func (r *workItemRepo) ListSelectable(ctx context.Context, tx repository.Tx, projectID string, limit int) ([]*model.WorkItem, error) {
	q := `
SELECT ` + workItemColumns + `
  FROM work_items
 WHERE project_id = $1 AND status IN ('pending', 'in_progress')
 ORDER BY priority, created_at, id
 LIMIT $2;`
	return r.list(ctx, tx, q, projectID, limit)
}

func (r *workItemRepo) ListByProject(ctx context.Context, tx repository.Tx, projectID string) ([]*model.WorkItem, error) {
	q := `SELECT ` + workItemColumns + ` FROM work_items WHERE project_id = $1 ORDER BY priority, created_at, id;`
	return r.list(ctx, tx, q, projectID)
}

func (r *workItemRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.WorkItem, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list work items: %w", err)
	}
	defer rows.Close()
	out := make([]*model.WorkItem, 0)
	for rows.Next() {
		w, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
