package model

import "time"

const (
	EventWorkItemFailed    = "work_item_failed"
	EventWorkItemSkipped   = "work_item_skipped_unassigned"
	EventObjectiveIngested = "objective_ingested"
	EventObjectiveSplit    = "objective_decomposed"
	EventPROpened          = "pr_opened"
	EventPRMerged          = "pr_merged"
	EventPRMergeFailed     = "pr_merge_failed"
	EventAutoReviewOff     = "auto_review_disabled"
	EventCycleCompleted    = "autopilot_cycle_completed"
	EventJobFinished       = "job_finished"
	EventJobStaleFailed    = "job_stale_failed"
)

// Event is an append-only project activity record.
type Event struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"project_id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}
