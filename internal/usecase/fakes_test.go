//go:build !integration

package usecase_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"agent-hub/internal/domain"
	"agent-hub/internal/domain/model"
	"agent-hub/internal/domain/ports/adapter"
	"agent-hub/internal/domain/ports/repository"
	"agent-hub/internal/infra/db/memstore"
	"agent-hub/internal/infra/redis"
	"agent-hub/internal/usecase"
)

func newLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// fakeWorkspace succeeds on every call unless a Func field says otherwise.
type fakeWorkspace struct {
	mu    sync.Mutex
	calls []string

	EnsureFunc   func(ctx context.Context, repo adapter.RepoRef) error
	CommitFunc   func(ctx context.Context, branch string, files []adapter.FileChange) (string, error)
	ValidateFunc func(ctx context.Context, command string) (adapter.ValidationResult, error)
	MergeFunc    func(ctx context.Context, branch, into string) (string, error)
	PushFunc     func(ctx context.Context, branch string) error
}

var _ adapter.Workspace = (*fakeWorkspace)(nil)

func (w *fakeWorkspace) record(call string) {
	w.mu.Lock()
	w.calls = append(w.calls, call)
	w.mu.Unlock()
}

func (w *fakeWorkspace) Calls(prefix string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, c := range w.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (w *fakeWorkspace) EnsureDefaultBranch(ctx context.Context, repo adapter.RepoRef) error {
	w.record("ensure")
	if w.EnsureFunc != nil {
		return w.EnsureFunc(ctx, repo)
	}
	return nil
}

func (w *fakeWorkspace) CreateBranch(ctx context.Context, repo adapter.RepoRef, branch string) error {
	w.record("branch " + branch)
	return nil
}

func (w *fakeWorkspace) Commit(ctx context.Context, repo adapter.RepoRef, branch, message string, files []adapter.FileChange) (string, error) {
	w.record("commit " + branch)
	if w.CommitFunc != nil {
		return w.CommitFunc(ctx, branch, files)
	}
	return "c0ffee" + fmt.Sprint(len(files)), nil
}

func (w *fakeWorkspace) Validate(ctx context.Context, repo adapter.RepoRef, command string) (adapter.ValidationResult, error) {
	w.record("validate " + command)
	if w.ValidateFunc != nil {
		return w.ValidateFunc(ctx, command)
	}
	return adapter.ValidationResult{Passed: true}, nil
}

func (w *fakeWorkspace) Merge(ctx context.Context, repo adapter.RepoRef, branch, into string) (string, error) {
	w.record("merge " + branch)
	if w.MergeFunc != nil {
		return w.MergeFunc(ctx, branch, into)
	}
	return "merged-" + branch, nil
}

func (w *fakeWorkspace) Push(ctx context.Context, repo adapter.RepoRef, branch string) error {
	w.record("push " + branch)
	if w.PushFunc != nil {
		return w.PushFunc(ctx, branch)
	}
	return nil
}

// stubProvider splits objectives on '.', writes one file per item and
// approves every review unless told otherwise.
type stubProvider struct {
	ProposeFunc func(ctx context.Context, req adapter.ChangeRequest) (*adapter.Change, error)
	ReviewFunc  func(ctx context.Context, req adapter.ReviewRequest) (model.Review, error)
}

var _ adapter.ContentProvider = (*stubProvider)(nil)

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Decompose(ctx context.Context, req adapter.DecomposeRequest) ([]adapter.WorkItemDraft, error) {
	if !req.Split {
		return []adapter.WorkItemDraft{{Title: "Scope: " + req.Objective.Text, Priority: 0}}, nil
	}
	var out []adapter.WorkItemDraft
	for i, seg := range strings.Split(req.Objective.Text, ".") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		out = append(out, adapter.WorkItemDraft{Title: seg, Description: seg, Priority: i})
	}
	return out, nil
}

func (p *stubProvider) ProposeChange(ctx context.Context, req adapter.ChangeRequest) (*adapter.Change, error) {
	if p.ProposeFunc != nil {
		return p.ProposeFunc(ctx, req)
	}
	return &adapter.Change{
		Files:         []adapter.FileChange{{Path: "notes/" + req.Item.ID + ".md", Content: req.Item.Title}},
		CommitMessage: "agent: implement work item " + req.Item.ID,
	}, nil
}

func (p *stubProvider) Review(ctx context.Context, req adapter.ReviewRequest) (model.Review, error) {
	if p.ReviewFunc != nil {
		return p.ReviewFunc(ctx, req)
	}
	return model.Review{Role: req.Role, Decision: model.DecisionApprove, Comment: "ok"}, nil
}

type stubResolver struct{ p adapter.ContentProvider }

func (r stubResolver) Resolve(name string) (adapter.ContentProvider, error) {
	if name != "" && name != r.p.Name() {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return r.p, nil
}

// recordingPublisher keeps published events in memory.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*model.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e *model.Event) error {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type harness struct {
	store    *memstore.Store
	ws       *fakeWorkspace
	provider *stubProvider
	locker   *redis.LocalLocker
	pub      *recordingPublisher
	engine   usecase.OrchestrationUseCase
}

const testProject = "proj-1"

// newHarness seeds one project whose policy is DefaultPolicy adjusted by tune.
func newHarness(t *testing.T, tune func(p *model.Policy)) *harness {
	t.Helper()
	h := &harness{
		store:    memstore.NewStore(),
		ws:       &fakeWorkspace{},
		provider: &stubProvider{},
		locker:   redis.NewLocalLocker(),
		pub:      &recordingPublisher{},
	}
	ctx := context.Background()
	project := &model.Project{ID: testProject, Name: "Demo", RepoURL: "file:///tmp/demo", DefaultBranch: "main", ValidationCommand: "make test"}
	if err := h.store.Projects().Save(ctx, repository.NoTX, project); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	if tune != nil {
		policy := model.DefaultPolicy(testProject)
		tune(policy)
		if err := h.store.Policies().Save(ctx, repository.NoTX, policy); err != nil {
			t.Fatalf("seed policy: %v", err)
		}
	}
	h.rebuild(h.locker, usecase.OrchestrationOptions{})
	return h
}

// rebuild replaces the engine, keeping the seeded store and fakes.
func (h *harness) rebuild(locker adapter.Locker, opts usecase.OrchestrationOptions) {
	h.engine = usecase.NewOrchestrationUseCase(usecase.OrchestrationDeps{
		Projects:     h.store.Projects(),
		Policies:     h.store.Policies(),
		WorkItems:    h.store.WorkItems(),
		Objectives:   h.store.Objectives(),
		PullRequests: h.store.PullRequests(),
		Events:       h.store.Events(),
		Tx:           memstore.TxManager{},
		Workspace:    h.ws,
		Providers:    stubResolver{p: h.provider},
		Locker:       locker,
		Publisher:    h.pub,
	}, opts, newLogger())
}

// losingLocker grants the lock but fails every renewal.
type losingLocker struct {
	*redis.LocalLocker
}

func (losingLocker) Extend(ctx context.Context, key, token string, ttl time.Duration) error {
	return domain.ErrLockLost
}

// seedItems stores n pending items with ascending priority.
func (h *harness) seedItems(t *testing.T, n int, agent string) []*model.WorkItem {
	t.Helper()
	items := make([]*model.WorkItem, 0, n)
	for i := 0; i < n; i++ {
		w := &model.WorkItem{
			ID:            fmt.Sprintf("item-%02d-abcdef", i),
			ProjectID:     testProject,
			Title:         fmt.Sprintf("Task %d", i),
			Priority:      i,
			Status:        model.WorkItemPending,
			AssignedAgent: agent,
		}
		if err := h.store.WorkItems().Save(context.Background(), repository.NoTX, w); err != nil {
			t.Fatalf("seed item: %v", err)
		}
		items = append(items, w)
	}
	return items
}

func (h *harness) item(t *testing.T, id string) *model.WorkItem {
	t.Helper()
	w, err := h.store.WorkItems().FindByID(context.Background(), repository.NoTX, id)
	if err != nil {
		t.Fatalf("find item %s: %v", id, err)
	}
	return w
}
