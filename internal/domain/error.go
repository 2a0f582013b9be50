package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrOperationFailed    = errors.New("operation failed")

	// Job lifecycle errors. These are surfaced to callers verbatim and map to
	// stable API error codes.
	ErrConflict          = errors.New("job is already scheduled or executing")
	ErrInvalidTransition = errors.New("invalid job state transition")
	ErrAttemptsExhausted = errors.New("job retry attempts exhausted")
	ErrJobNotOwned       = errors.New("job is no longer claimed by this worker")

	// Run-level preconditions; any of these aborts an orchestration run.
	ErrPolicyMissing        = errors.New("automation policy missing for project")
	ErrProjectBusy          = errors.New("project already has an active run")
	ErrLockLost             = errors.New("project run lock lost")
	ErrWorkspaceUnavailable = errors.New("workspace unavailable")
)
