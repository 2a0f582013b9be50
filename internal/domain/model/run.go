package model

type ItemStatus string

const (
	ItemSucceeded ItemStatus = "succeeded"
	ItemFailed    ItemStatus = "failed"
	ItemSkipped   ItemStatus = "skipped"
)

// ItemResult is the per-item outcome of one pipeline pass. Failures are data,
// the run itself keeps going.
type ItemResult struct {
	WorkItemID    string     `json:"work_item_id"`
	Status        ItemStatus `json:"status"`
	Error         string     `json:"error,omitempty"`
	Branch        string     `json:"branch,omitempty"`
	PullRequestID string     `json:"pull_request_id,omitempty"`
	Merged        bool       `json:"merged"`
}

// RunOutcome reports one orchestration pass over a project.
type RunOutcome struct {
	ProjectID      string       `json:"project_id"`
	ProcessedItems int          `json:"processed_items"`
	Items          []ItemResult `json:"items"`
	CreatedPRIDs   []string     `json:"created_pr_ids"`
	MergedPRIDs    []string     `json:"merged_pr_ids"`
	Canceled       bool         `json:"canceled"`
}

// Failed returns the number of items that ended in failure.
func (o *RunOutcome) Failed() int {
	n := 0
	for _, r := range o.Items {
		if r.Status == ItemFailed {
			n++
		}
	}
	return n
}

// JobResult condenses the outcome into what the job row keeps.
func (o *RunOutcome) JobResult() *JobResult {
	if o == nil {
		return &JobResult{MergedPRIDs: []string{}}
	}
	merged := append([]string{}, o.MergedPRIDs...)
	return &JobResult{
		ProcessedItems: o.ProcessedItems,
		CreatedPRs:     len(o.CreatedPRIDs),
		MergedPRs:      len(o.MergedPRIDs),
		MergedPRIDs:    merged,
	}
}
