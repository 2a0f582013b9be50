package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"agent-hub/internal/domain"
	"agent-hub/internal/domain/model"
	"agent-hub/internal/domain/ports/repository"
)

var _ repository.PullRequestRepository = (*pullRequestRepo)(nil)

type pullRequestRepo struct {
	pool *pgxpool.Pool
}

func NewPullRequestRepo(pool *pgxpool.Pool) *pullRequestRepo {
	return &pullRequestRepo{pool: pool}
}

const pullRequestColumns = `id, project_id, work_item_id, title, description, source_branch, target_branch, status,
  approvals, checks_passed, commit_sha, merge_sha, external_ref, reviews, created_at, merged_at`

func scanPullRequest(row pgx.Row) (*model.PullRequest, error) {
	var p model.PullRequest
	var status string
	var reviews []byte
	err := row.Scan(&p.ID, &p.ProjectID, &p.WorkItemID, &p.Title, &p.Description, &p.SourceBranch, &p.TargetBranch,
		&status, &p.Approvals, &p.ChecksPassed, &p.CommitSHA, &p.MergeSHA, &p.ExternalRef, &reviews, &p.CreatedAt, &p.MergedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	p.Status = model.PullRequestStatus(status)
	if len(reviews) > 0 {
		if err := json.Unmarshal(reviews, &p.Reviews); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &p, nil
}

func (r *pullRequestRepo) Save(ctx context.Context, tx repository.Tx, p *model.PullRequest) error {
	reviews, err := json.Marshal(p.Reviews)
	if err != nil {
		return err
	}
	if p.Reviews == nil {
		reviews = []byte("[]")
	}
	const q = `
INSERT INTO pull_requests (id, project_id, work_item_id, title, description, source_branch, target_branch, status,
  approvals, checks_passed, commit_sha, merge_sha, external_ref, reviews, created_at, merged_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
ON CONFLICT (id) DO UPDATE SET
  description = EXCLUDED.description,
  status = EXCLUDED.status,
  approvals = EXCLUDED.approvals,
  checks_passed = EXCLUDED.checks_passed,
  merge_sha = EXCLUDED.merge_sha,
  reviews = EXCLUDED.reviews,
  merged_at = EXCLUDED.merged_at;`
	_, err = execSQL(ctx, r.pool, tx, q, p.ID, p.ProjectID, p.WorkItemID, p.Title, p.Description, p.SourceBranch,
		p.TargetBranch, string(p.Status), p.Approvals, p.ChecksPassed, p.CommitSHA, p.MergeSHA, p.ExternalRef,
		reviews, p.CreatedAt, p.MergedAt)
	if err != nil {
		return fmt.Errorf("save pull request: %w", err)
	}
	return nil
}

func (r *pullRequestRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PullRequest, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+pullRequestColumns+` FROM pull_requests WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanPullRequest(row)
}

func (r *pullRequestRepo) ListByProject(ctx context.Context, tx repository.Tx, projectID string) ([]*model.PullRequest, error) {
	rows, err := queryRows(ctx, r.pool, tx,
		`SELECT `+pullRequestColumns+` FROM pull_requests WHERE project_id = $1 ORDER BY created_at, id;`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list pull requests: %w", err)
	}
	defer rows.Close()
	out := make([]*model.PullRequest, 0)
	for rows.Next() {
		p, err := scanPullRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
