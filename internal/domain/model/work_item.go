package model

import (
	"regexp"
	"strings"
	"time"
)

type WorkItemStatus string

const (
	WorkItemPending    WorkItemStatus = "pending"
	WorkItemInProgress WorkItemStatus = "in_progress"
	WorkItemSucceeded  WorkItemStatus = "succeeded"
	WorkItemFailed     WorkItemStatus = "failed"
)

// DefaultCoderAgent is assigned to unassigned items when auto-assign is on.
const DefaultCoderAgent = "forge-coder"

const branchSlugLen = 36

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

type WorkItem struct {
	ID            string         `json:"id"`
	ProjectID     string         `json:"project_id"`
	ObjectiveID   string         `json:"objective_id,omitempty"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Priority      int            `json:"priority"`
	Status        WorkItemStatus `json:"status"`
	AssignedAgent string         `json:"assigned_agent,omitempty"`
	Branch        string         `json:"branch,omitempty"`
	PullRequestID string         `json:"pull_request_id,omitempty"`
	LastError     string         `json:"last_error,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

// Selectable reports whether a run may pick the item up.
func (w *WorkItem) Selectable() bool {
	return w.Status == WorkItemPending || w.Status == WorkItemInProgress
}

// BranchName is deterministic for a given item: agent/<id-suffix>-<slug>.
func (w *WorkItem) BranchName() string {
	id := w.ID
	if len(id) > 8 {
		id = id[len(id)-8:]
	}
	return "agent/" + strings.ToLower(id) + "-" + Slugify(w.Title, branchSlugLen)
}

// Slugify lowercases s, collapses non-alphanumerics to '-' and truncates to max.
func Slugify(s string, max int) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if max > 0 && len(slug) > max {
		slug = strings.TrimRight(slug[:max], "-")
	}
	if slug == "" {
		return "change"
	}
	return slug
}
