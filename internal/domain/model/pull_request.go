package model

import "time"

type PullRequestStatus string

const (
	PullRequestOpen   PullRequestStatus = "open"
	PullRequestMerged PullRequestStatus = "merged"
	PullRequestClosed PullRequestStatus = "closed"
)

type ReviewRole string

const (
	RoleReviewer ReviewRole = "reviewer"
	RoleTester   ReviewRole = "tester"
)

type ReviewDecision string

const (
	DecisionApprove        ReviewDecision = "approve"
	DecisionRequestChanges ReviewDecision = "request_changes"
)

type Review struct {
	Role     ReviewRole     `json:"role"`
	Decision ReviewDecision `json:"decision"`
	Comment  string         `json:"comment"`
}

// PullRequest records a proposed change. ExternalRef is filled by an external
// sync and never set by the engine.
type PullRequest struct {
	ID           string            `json:"id"`
	ProjectID    string            `json:"project_id"`
	WorkItemID   string            `json:"work_item_id"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	SourceBranch string            `json:"source_branch"`
	TargetBranch string            `json:"target_branch"`
	Status       PullRequestStatus `json:"status"`
	Approvals    int               `json:"approvals"`
	ChecksPassed bool              `json:"checks_passed"`
	CommitSHA    string            `json:"commit_sha"`
	MergeSHA     string            `json:"merge_sha,omitempty"`
	ExternalRef  string            `json:"external_ref,omitempty"`
	Reviews      []Review          `json:"reviews,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	MergedAt     *time.Time        `json:"merged_at,omitempty"`
}

// CountApprovals returns how many attached reviews approve the change.
func (p *PullRequest) CountApprovals() int {
	n := 0
	for _, r := range p.Reviews {
		if r.Decision == DecisionApprove {
			n++
		}
	}
	return n
}
