package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"agent-hub/internal/domain/model"
	"agent-hub/internal/domain/ports/adapter"
	"agent-hub/internal/domain/ports/repository"
)

// EventRecorder appends project events to the store and forwards them to the
// publisher. Neither step can fail the caller.
type EventRecorder struct {
	repo repository.EventRepository
	pub  adapter.EventPublisher
	log  zerolog.Logger
}

func NewEventRecorder(repo repository.EventRepository, pub adapter.EventPublisher, logger *zerolog.Logger) *EventRecorder {
	return &EventRecorder{repo: repo, pub: pub, log: logger.With().Str("component", "events").Logger()}
}

func (r *EventRecorder) Record(ctx context.Context, projectID, eventType string, payload map[string]any) {
	if r == nil {
		return
	}
	e := &model.Event{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Type:      eventType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	// storage writes must survive a canceled request context
	wctx := context.WithoutCancel(ctx)
	if r.repo != nil {
		if err := r.repo.Append(wctx, repository.NoTX, e); err != nil {
			r.log.Error().Err(err).Str("type", eventType).Str("project_id", projectID).Msg("append event failed")
		}
	}
	if r.pub != nil {
		if err := r.pub.Publish(wctx, e); err != nil {
			r.log.Warn().Err(err).Str("type", eventType).Msg("publish event failed")
		}
	}
}
