package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"agent-hub/internal/domain"
	"agent-hub/internal/domain/model"
	"agent-hub/internal/domain/ports/repository"
)

var _ repository.EventRepository = (*eventRepo)(nil)

type eventRepo struct {
	pool *pgxpool.Pool
}

func NewEventRepo(pool *pgxpool.Pool) *eventRepo {
	return &eventRepo{pool: pool}
}

func (r *eventRepo) Append(ctx context.Context, tx repository.Tx, e *model.Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	if e.Payload == nil {
		payload = []byte("{}")
	}
	const q = `
INSERT INTO events (id, project_id, type, payload, created_at)
VALUES ($1, $2, $3, $4, $5);`
	if _, err := execSQL(ctx, r.pool, tx, q, e.ID, e.ProjectID, e.Type, payload, e.CreatedAt); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (r *eventRepo) ListByProject(ctx context.Context, tx repository.Tx, projectID string, limit int) ([]*model.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT id, project_id, type, payload, created_at
  FROM events
 WHERE project_id = $1
 ORDER BY created_at DESC, id DESC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	out := make([]*model.Event, 0)
	for rows.Next() {
		var e model.Event
		var payload []byte
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Type, &payload, &e.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
