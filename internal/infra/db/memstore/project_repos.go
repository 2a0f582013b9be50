package memstore

import (
	"context"
	"sort"

	"agent-hub/internal/domain"
	"agent-hub/internal/domain/model"
	"agent-hub/internal/domain/ports/repository"
)

var (
	_ repository.WorkItemRepository    = (*workItemRepo)(nil)
	_ repository.ObjectiveRepository   = (*objectiveRepo)(nil)
	_ repository.PullRequestRepository = (*pullRequestRepo)(nil)
	_ repository.PolicyRepository      = (*policyRepo)(nil)
	_ repository.ProjectRepository     = (*projectRepo)(nil)
	_ repository.EventRepository       = (*eventRepo)(nil)
)

// ---- work items ----

type workItemRepo struct{ s *Store }

func cloneItem(w *model.WorkItem) *model.WorkItem {
	cp := *w
	cp.CompletedAt = cloneTime(w.CompletedAt)
	return &cp
}

func (r *workItemRepo) Save(ctx context.Context, tx repository.Tx, item *model.WorkItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	r.s.items[item.ID] = cloneItem(item)
	return nil
}

func (r *workItemRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.WorkItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneItem(w), nil
}

func (r *workItemRepo) ListSelectable(ctx context.Context, tx repository.Tx, projectID string, limit int) ([]*model.WorkItem, error) {
	all, _ := r.ListByProject(ctx, tx, projectID)
	out := make([]*model.WorkItem, 0, len(all))
	for _, w := range all {
		if w.Selectable() {
			out = append(out, w)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *workItemRepo) ListByProject(ctx context.Context, tx repository.Tx, projectID string) ([]*model.WorkItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*model.WorkItem, 0)
	for _, w := range r.s.items {
		if w.ProjectID == projectID {
			out = append(out, cloneItem(w))
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Priority != out[b].Priority {
			return out[a].Priority < out[b].Priority
		}
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.Before(out[b].CreatedAt)
		}
		return out[a].ID < out[b].ID
	})
	return out, nil
}

// ---- objectives ----

type objectiveRepo struct{ s *Store }

func (r *objectiveRepo) Save(ctx context.Context, tx repository.Tx, o *model.Objective) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = r.s.now()
	}
	cp := *o
	r.s.objectives[o.ID] = &cp
	return nil
}

func (r *objectiveRepo) NextPending(ctx context.Context, tx repository.Tx, projectID string) (*model.Objective, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var next *model.Objective
	for _, o := range r.s.objectives {
		if o.ProjectID != projectID || o.Status != model.ObjectivePending {
			continue
		}
		if next == nil || o.CreatedAt.Before(next.CreatedAt) ||
			(o.CreatedAt.Equal(next.CreatedAt) && o.ID < next.ID) {
			next = o
		}
	}
	if next == nil {
		return nil, domain.ErrNotFound
	}
	cp := *next
	return &cp, nil
}

func (r *objectiveRepo) MarkDecomposed(ctx context.Context, tx repository.Tx, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.objectives[id]
	if !ok {
		return domain.ErrNotFound
	}
	o.Status = model.ObjectiveDecomposed
	return nil
}

// ---- pull requests ----

type pullRequestRepo struct{ s *Store }

func clonePR(p *model.PullRequest) *model.PullRequest {
	cp := *p
	cp.Reviews = append([]model.Review(nil), p.Reviews...)
	cp.MergedAt = cloneTime(p.MergedAt)
	return &cp
}

func (r *pullRequestRepo) Save(ctx context.Context, tx repository.Tx, pr *model.PullRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if pr.CreatedAt.IsZero() {
		pr.CreatedAt = r.s.now()
	}
	r.s.prs[pr.ID] = clonePR(pr)
	return nil
}

func (r *pullRequestRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PullRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.prs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clonePR(p), nil
}

func (r *pullRequestRepo) ListByProject(ctx context.Context, tx repository.Tx, projectID string) ([]*model.PullRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*model.PullRequest, 0)
	for _, p := range r.s.prs {
		if p.ProjectID == projectID {
			out = append(out, clonePR(p))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

// ---- policies ----

type policyRepo struct{ s *Store }

func (r *policyRepo) GetByProject(ctx context.Context, tx repository.Tx, projectID string) (*model.Policy, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.policies[projectID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *policyRepo) Save(ctx context.Context, tx repository.Tx, p *model.Policy) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p.UpdatedAt = r.s.now()
	cp := *p
	r.s.policies[p.ProjectID] = &cp
	return nil
}

// ---- projects ----

type projectRepo struct{ s *Store }

func (r *projectRepo) Save(ctx context.Context, tx repository.Tx, p *model.Project) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.s.now()
	}
	cp := *p
	r.s.projects[p.ID] = &cp
	return nil
}

func (r *projectRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Project, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.projects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *projectRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Project, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*model.Project, 0, len(r.s.projects))
	for _, p := range r.s.projects {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

// ---- events ----

type eventRepo struct{ s *Store }

func (r *eventRepo) Append(ctx context.Context, tx repository.Tx, e *model.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.s.now()
	}
	cp := *e
	r.s.events = append(r.s.events, &cp)
	return nil
}

// ListByProject returns the newest events first.
func (r *eventRepo) ListByProject(ctx context.Context, tx repository.Tx, projectID string, limit int) ([]*model.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*model.Event, 0)
	for i := len(r.s.events) - 1; i >= 0; i-- {
		e := r.s.events[i]
		if e.ProjectID != projectID {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
