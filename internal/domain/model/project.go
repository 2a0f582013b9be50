package model

import "time"

// Project is a repository the engine drives. ValidationCommand, when set,
// overrides the workspace-wide validation command.
type Project struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	RepoURL           string    `json:"repo_url"`
	DefaultBranch     string    `json:"default_branch"`
	ValidationCommand string    `json:"validation_command,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}
