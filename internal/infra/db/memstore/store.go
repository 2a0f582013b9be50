// Package memstore keeps every repository in process memory behind one mutex.
// It backs dev mode and unit tests and applies the same compare-and-swap rules
// as the Postgres store.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"agent-hub/internal/domain/model"
	"agent-hub/internal/domain/ports/repository"
)

type Store struct {
	mu  sync.Mutex
	now func() time.Time

	jobs       map[string]*model.Job
	items      map[string]*model.WorkItem
	objectives map[string]*model.Objective
	prs        map[string]*model.PullRequest
	policies   map[string]*model.Policy
	projects   map[string]*model.Project
	events     []*model.Event
}

func NewStore() *Store {
	return &Store{
		now:        func() time.Time { return time.Now().UTC() },
		jobs:       map[string]*model.Job{},
		items:      map[string]*model.WorkItem{},
		objectives: map[string]*model.Objective{},
		prs:        map[string]*model.PullRequest{},
		policies:   map[string]*model.Policy{},
		projects:   map[string]*model.Project{},
	}
}

// SetClock replaces the time source; tests use it to age heartbeats.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Jobs() repository.JobRepository                 { return &jobRepo{s: s} }
func (s *Store) WorkItems() repository.WorkItemRepository       { return &workItemRepo{s: s} }
func (s *Store) Objectives() repository.ObjectiveRepository     { return &objectiveRepo{s: s} }
func (s *Store) PullRequests() repository.PullRequestRepository { return &pullRequestRepo{s: s} }
func (s *Store) Policies() repository.PolicyRepository          { return &policyRepo{s: s} }
func (s *Store) Projects() repository.ProjectRepository         { return &projectRepo{s: s} }
func (s *Store) Events() repository.EventRepository             { return &eventRepo{s: s} }

var _ repository.TransactionManager = (*TxManager)(nil)

// TxManager runs fn directly; every memstore call is already atomic.
type TxManager struct{}

func (TxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, repository.NoTX)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
