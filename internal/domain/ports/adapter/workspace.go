package adapter

import (
	"context"
	"errors"
	"fmt"
)

// RepoRef identifies the repository a project works on.
type RepoRef struct {
	ProjectID     string
	URL           string
	DefaultBranch string
}

type FileChange struct {
	Path    string
	Content string
}

// Change is a proposed commit.
type Change struct {
	Files         []FileChange
	CommitMessage string
	Summary       string
}

type ValidationResult struct {
	Passed   bool
	ExitCode int
	Output   string
}

// WorkspaceError is returned by every Workspace operation. Transient errors
// were retried up to the configured bound before surfacing.
type WorkspaceError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *WorkspaceError) Error() string {
	return fmt.Sprintf("workspace %s: %v", e.Op, e.Err)
}

func (e *WorkspaceError) Unwrap() error { return e.Err }

// IsTransient reports whether err carries a transient WorkspaceError.
func IsTransient(err error) bool {
	var we *WorkspaceError
	return errors.As(err, &we) && we.Transient
}

// Workspace is the version-control collaborator. Each call is bounded by its
// own timeout; a cancel request does not interrupt a call in flight.
type Workspace interface {
	EnsureDefaultBranch(ctx context.Context, repo RepoRef) error
	CreateBranch(ctx context.Context, repo RepoRef, branch string) error
	Commit(ctx context.Context, repo RepoRef, branch, message string, files []FileChange) (sha string, err error)
	Validate(ctx context.Context, repo RepoRef, command string) (ValidationResult, error)
	Merge(ctx context.Context, repo RepoRef, branch, into string) (sha string, err error)
	Push(ctx context.Context, repo RepoRef, branch string) error
}
