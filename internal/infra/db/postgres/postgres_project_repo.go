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

var _ repository.ProjectRepository = (*projectRepo)(nil)

type projectRepo struct {
	pool *pgxpool.Pool
}

func NewProjectRepo(pool *pgxpool.Pool) *projectRepo {
	return &projectRepo{pool: pool}
}

func (r *projectRepo) Save(ctx context.Context, tx repository.Tx, p *model.Project) error {
	const q = `
INSERT INTO projects (id, name, repo_url, default_branch, validation_command, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name,
  repo_url = EXCLUDED.repo_url,
  default_branch = EXCLUDED.default_branch,
  validation_command = EXCLUDED.validation_command;`
	if p.DefaultBranch == "" {
		p.DefaultBranch = "main"
	}
	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.Name, p.RepoURL, p.DefaultBranch, p.ValidationCommand, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	return nil
}

const projectColumns = `id, name, repo_url, default_branch, validation_command, created_at`

func scanProject(row pgx.Row) (*model.Project, error) {
	var p model.Project
	if err := row.Scan(&p.ID, &p.Name, &p.RepoURL, &p.DefaultBranch, &p.ValidationCommand, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return &p, nil
}

func (r *projectRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Project, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+projectColumns+` FROM projects WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanProject(row)
}

func (r *projectRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Project, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+projectColumns+` FROM projects ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()
	var out []*model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
