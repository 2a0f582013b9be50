package adapter

import (
	"context"

	"agent-hub/internal/domain/model"
)

// WorkItemDraft is one decomposed segment of an objective.
type WorkItemDraft struct {
	Title       string
	Description string
	Priority    int
}

type DecomposeRequest struct {
	Project   *model.Project
	Objective *model.Objective
	// Split is false when auto-triage is off; the objective then yields a
	// single item.
	Split bool
}

type ChangeRequest struct {
	Project *model.Project
	Item    *model.WorkItem
	Branch  string
	Agent   string
}

type ReviewRequest struct {
	Project      *model.Project
	Item         *model.WorkItem
	Role         model.ReviewRole
	ChecksPassed bool
}

// ContentProvider produces the content of agent work. Implementations form a
// small closed set selected by configuration: a deterministic rule-based
// provider and model-backed ones that fall back to it per call.
type ContentProvider interface {
	Name() string
	Decompose(ctx context.Context, req DecomposeRequest) ([]WorkItemDraft, error)
	ProposeChange(ctx context.Context, req ChangeRequest) (*Change, error)
	Review(ctx context.Context, req ReviewRequest) (model.Review, error)
}

// ProviderResolver returns the provider for a name; "" means the configured
// default.
type ProviderResolver interface {
	Resolve(name string) (ContentProvider, error)
}
