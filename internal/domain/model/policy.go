package model

import "time"

// Policy is the per-project automation configuration. The engine only reads it.
type Policy struct {
	ProjectID          string    `json:"project_id"`
	AutoTriage         bool      `json:"auto_triage"`
	AutoAssign         bool      `json:"auto_assign"`
	AutoReview         bool      `json:"auto_review"`
	AutoMerge          bool      `json:"auto_merge"`
	MinReviewApprovals int       `json:"min_review_approvals"`
	RequireTestCmd     bool      `json:"require_test_cmd"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// DefaultPolicy mirrors the defaults a project is created with.
func DefaultPolicy(projectID string) *Policy {
	return &Policy{
		ProjectID:          projectID,
		AutoTriage:         true,
		AutoAssign:         true,
		AutoReview:         true,
		AutoMerge:          true,
		MinReviewApprovals: 1,
		UpdatedAt:          time.Now().UTC(),
	}
}
