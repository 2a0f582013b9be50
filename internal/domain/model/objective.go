package model

import (
	"strings"
	"time"

	"agent-hub/internal/domain"
)

type ObjectiveStatus string

const (
	ObjectivePending    ObjectiveStatus = "pending"
	ObjectiveDecomposed ObjectiveStatus = "decomposed"
)

const (
	DefaultObjectiveWorkItems = 4
	MaxObjectiveWorkItems     = 12
)

// Objective is a human-submitted goal waiting to be split into work items.
type Objective struct {
	ID           string          `json:"id"`
	ProjectID    string          `json:"project_id"`
	Text         string          `json:"text"`
	MaxWorkItems int             `json:"max_work_items"`
	CreatedBy    string          `json:"created_by"`
	Status       ObjectiveStatus `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
}

func NewObjective(id, projectID, text string, maxWorkItems int, createdBy string) (*Objective, error) {
	text = strings.TrimSpace(text)
	if id == "" || projectID == "" || text == "" {
		return nil, domain.ErrInvalidArgument
	}
	if maxWorkItems == 0 {
		maxWorkItems = DefaultObjectiveWorkItems
	}
	if maxWorkItems < 1 || maxWorkItems > MaxObjectiveWorkItems {
		return nil, domain.ErrInvalidArgument
	}
	if createdBy == "" {
		createdBy = "system"
	}
	return &Objective{
		ID:           id,
		ProjectID:    projectID,
		Text:         text,
		MaxWorkItems: maxWorkItems,
		CreatedBy:    createdBy,
		Status:       ObjectivePending,
		CreatedAt:    time.Now().UTC(),
	}, nil
}
