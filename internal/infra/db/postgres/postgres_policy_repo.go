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

var _ repository.PolicyRepository = (*policyRepo)(nil)

type policyRepo struct {
	pool *pgxpool.Pool
}

func NewPolicyRepo(pool *pgxpool.Pool) *policyRepo {
	return &policyRepo{pool: pool}
}

func (r *policyRepo) GetByProject(ctx context.Context, tx repository.Tx, projectID string) (*model.Policy, error) {
	const q = `
SELECT project_id, auto_triage, auto_assign, auto_review, auto_merge, min_review_approvals, require_test_cmd, updated_at
  FROM automation_policies
 WHERE project_id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, projectID)
	if err != nil {
		return nil, err
	}
	var p model.Policy
	if err := row.Scan(&p.ProjectID, &p.AutoTriage, &p.AutoAssign, &p.AutoReview, &p.AutoMerge,
		&p.MinReviewApprovals, &p.RequireTestCmd, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return &p, nil
}

func (r *policyRepo) Save(ctx context.Context, tx repository.Tx, p *model.Policy) error {
	const q = `
INSERT INTO automation_policies (project_id, auto_triage, auto_assign, auto_review, auto_merge, min_review_approvals, require_test_cmd, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (project_id) DO UPDATE SET
  auto_triage = EXCLUDED.auto_triage,
  auto_assign = EXCLUDED.auto_assign,
  auto_review = EXCLUDED.auto_review,
  auto_merge = EXCLUDED.auto_merge,
  min_review_approvals = EXCLUDED.min_review_approvals,
  require_test_cmd = EXCLUDED.require_test_cmd,
  updated_at = now();`
	_, err := execSQL(ctx, r.pool, tx, q, p.ProjectID, p.AutoTriage, p.AutoAssign, p.AutoReview, p.AutoMerge,
		p.MinReviewApprovals, p.RequireTestCmd)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("project %s: %w", p.ProjectID, domain.ErrNotFound)
		}
		return fmt.Errorf("save policy: %w", err)
	}
	return nil
}
