package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"agent-hub/internal/domain"
	"agent-hub/internal/domain/model"
	"agent-hub/internal/domain/ports/adapter"
	"agent-hub/internal/domain/ports/repository"
)

var _ ObjectiveUseCase = (*objectiveUC)(nil)

type SubmitObjectiveParams struct {
	ProjectID    string `validate:"required,max=128"`
	Text         string `validate:"required,max=8000"`
	MaxWorkItems int    `validate:"gte=0,lte=12"`
	CreatedBy    string `validate:"max=128"`
}

// ObjectiveUseCase queues objectives; runs decompose them lazily.
type ObjectiveUseCase interface {
	Submit(ctx context.Context, p SubmitObjectiveParams) (*model.Objective, error)
}

type objectiveUC struct {
	projects   repository.ProjectRepository
	objectives repository.ObjectiveRepository
	events     *EventRecorder
	log        *zerolog.Logger
}

func NewObjectiveUseCase(
	projects repository.ProjectRepository,
	objectives repository.ObjectiveRepository,
	events repository.EventRepository,
	pub adapter.EventPublisher,
	logger *zerolog.Logger,
) *objectiveUC {
	l := logger.With().Str("component", "objectives").Logger()
	return &objectiveUC{
		projects:   projects,
		objectives: objectives,
		events:     NewEventRecorder(events, pub, logger),
		log:        &l,
	}
}

func (u *objectiveUC) Submit(ctx context.Context, p SubmitObjectiveParams) (*model.Objective, error) {
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if _, err := u.projects.FindByID(ctx, repository.NoTX, p.ProjectID); err != nil {
		return nil, fmt.Errorf("project %s: %w", p.ProjectID, err)
	}
	obj, err := model.NewObjective(uuid.NewString(), p.ProjectID, p.Text, p.MaxWorkItems, p.CreatedBy)
	if err != nil {
		return nil, err
	}
	if err := u.objectives.Save(ctx, repository.NoTX, obj); err != nil {
		return nil, err
	}
	u.events.Record(ctx, obj.ProjectID, model.EventObjectiveIngested, map[string]any{
		"objective_id":   obj.ID,
		"max_work_items": obj.MaxWorkItems,
	})
	u.log.Info().Str("project_id", obj.ProjectID).Str("objective_id", obj.ID).Msg("objective submitted")
	return obj, nil
}
