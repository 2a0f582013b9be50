//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"agent-hub/internal/domain"
	"agent-hub/internal/domain/model"
	"agent-hub/internal/domain/ports/adapter"
	"agent-hub/internal/domain/ports/repository"
	"agent-hub/internal/infra/db/memstore"
	"agent-hub/internal/usecase"
)

func TestOrchestrationRun_Preconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("should process nothing when max items is zero", func(t *testing.T) {
		h := newHarness(t, func(p *model.Policy) {})
		h.seedItems(t, 2, "forge-coder")

		out, err := h.engine.Run(ctx, usecase.RunRequest{ProjectID: testProject, MaxItems: 0})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if out.ProcessedItems != 0 || len(out.Items) != 0 {
			t.Errorf("expected empty outcome, got %+v", out)
		}
		if n := h.ws.Calls(""); n != 0 {
			t.Errorf("expected no workspace calls, got %d", n)
		}
	})

	t.Run("should fail the run when the policy is missing", func(t *testing.T) {
		h := newHarness(t, nil)
		_, err := h.engine.Run(ctx, usecase.RunRequest{ProjectID: testProject, MaxItems: 1})
		if !errors.Is(err, domain.ErrPolicyMissing) {
			t.Fatalf("expected ErrPolicyMissing, got %v", err)
		}
	})

	t.Run("should fail the run for an unknown project", func(t *testing.T) {
		h := newHarness(t, func(p *model.Policy) {})
		_, err := h.engine.Run(ctx, usecase.RunRequest{ProjectID: "ghost", MaxItems: 1})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should refuse to run a project that already has an active run", func(t *testing.T) {
		h := newHarness(t, func(p *model.Policy) {})
		if _, err := h.locker.TryLock(ctx, adapter.ProjectRunKey(testProject), time.Hour); err != nil {
			t.Fatalf("pre-lock: %v", err)
		}
		_, err := h.engine.Run(ctx, usecase.RunRequest{ProjectID: testProject, MaxItems: 1})
		if !errors.Is(err, domain.ErrProjectBusy) {
			t.Fatalf("expected ErrProjectBusy, got %v", err)
		}
	})

	t.Run("should fail the run when the workspace is unreachable", func(t *testing.T) {
		h := newHarness(t, func(p *model.Policy) {})
		h.seedItems(t, 1, "forge-coder")
		h.ws.EnsureFunc = func(ctx context.Context, repo adapter.RepoRef) error {
			return &adapter.WorkspaceError{Op: "fetch", Transient: true, Err: errors.New("connection reset")}
		}
		_, err := h.engine.Run(ctx, usecase.RunRequest{ProjectID: testProject, MaxItems: 1})
		if !errors.Is(err, domain.ErrWorkspaceUnavailable) {
			t.Fatalf("expected ErrWorkspaceUnavailable, got %v", err)
		}
		if got := h.item(t, "item-00-abcdef"); got.Status != model.WorkItemPending {
			t.Errorf("expected item untouched, got %s", got.Status)
		}
	})

	t.Run("should release the project lock after a run", func(t *testing.T) {
		h := newHarness(t, func(p *model.Policy) {})
		if _, err := h.engine.Run(ctx, usecase.RunRequest{ProjectID: testProject, MaxItems: 1}); err != nil {
			t.Fatalf("first run: %v", err)
		}
		if _, err := h.engine.Run(ctx, usecase.RunRequest{ProjectID: testProject, MaxItems: 1}); err != nil {
			t.Fatalf("second run: %v", err)
		}
	})
}

func TestOrchestrationRun_Pipeline(t *testing.T) {
	ctx := context.Background()

	t.Run("should absorb one failed validation out of three items", func(t *testing.T) {
		h := newHarness(t, func(p *model.Policy) { p.RequireTestCmd = true })
		items := h.seedItems(t, 3, "forge-coder")
		validations := 0
		h.ws.ValidateFunc = func(ctx context.Context, command string) (adapter.ValidationResult, error) {
			validations++
			if command != "make test" {
				t.Errorf("expected project validation command, got %q", command)
			}
			if validations == 2 {
				return adapter.ValidationResult{Passed: false, ExitCode: 2, Output: "FAIL"}, nil
			}
			return adapter.ValidationResult{Passed: true}, nil
		}

		out, err := h.engine.Run(ctx, usecase.RunRequest{ProjectID: testProject, MaxItems: 3})
		if err != nil {
			t.Fatalf("expected no run error, got %v", err)
		}
		if out.ProcessedItems != 3 {
			t.Fatalf("expected 3 processed items, got %d", out.ProcessedItems)
		}
		if out.Failed() != 1 || len(out.MergedPRIDs) != 2 {
			t.Errorf("expected 1 failure and 2 merges, got %+v", out)
		}
		failed := h.item(t, items[1].ID)
		if failed.Status != model.WorkItemFailed || !strings.Contains(failed.LastError, "exit code 2") {
			t.Errorf("expected failed item with validation error, got %+v", failed)
		}
		for _, i := range []int{0, 2} {
			if got := h.item(t, items[i].ID); got.Status != model.WorkItemSucceeded || got.CompletedAt == nil {
				t.Errorf("expected item %d succeeded, got %+v", i, got)
			}
		}
		if h.pub.Count(model.EventWorkItemFailed) != 1 || h.pub.Count(model.EventPRMerged) != 2 {
			t.Errorf("unexpected events: failed=%d merged=%d",
				h.pub.Count(model.EventWorkItemFailed), h.pub.Count(model.EventPRMerged))
		}
		if h.pub.Count(model.EventCycleCompleted) != 1 {
			t.Error("expected a cycle completed event")
		}
	})

	t.Run("should fail an item when validation is required but no command exists", func(t *testing.T) {
		h := newHarness(t, func(p *model.Policy) { p.RequireTestCmd = true })
		ctx := context.Background()
		project, _ := h.store.Projects().FindByID(ctx, repository.NoTX, testProject)
		project.ValidationCommand = ""
		_ = h.store.Projects().Save(ctx, repository.NoTX, project)
		h.seedItems(t, 1, "forge-coder")

		out, err := h.engine.Run(ctx, usecase.RunRequest{ProjectID: testProject, MaxItems: 1})
		if err != nil {
			t.Fatalf("expected no run error, got %v", err)
		}
		if out.Failed() != 1 || !strings.Contains(out.Items[0].Error, "no command") {
			t.Errorf("expected missing command failure, got %+v", out.Items)
		}
	})

	t.Run("should keep going after a provider failure", func(t *testing.T) {
		h := newHarness(t, func(p *model.Policy) {})
		items := h.seedItems(t, 2, "forge-coder")
		h.provider.ProposeFunc = func(ctx context.Context, req adapter.ChangeRequest) (*adapter.Change, error) {
			if req.Item.ID == items[0].ID {
				return nil, errors.New("model overloaded")
			}
			return &adapter.Change{Files: []adapter.FileChange{{Path: "a.md", Content: "x"}}, CommitMessage: "m"}, nil
		}

		out, err := h.engine.Run(ctx, usecase.RunRequest{ProjectID: testProject, MaxItems: 2})
		if err != nil {
			t.Fatalf("expected no run error, got %v", err)
		}
		if out.ProcessedItems != 2 || out.Items[0].Status != model.ItemFailed || out.Items[1].Status != model.ItemSucceeded {
			t.Errorf("unexpected results: %+v", out.Items)
		}
	})

	t.Run("should use deterministic branch names", func(t *testing.T) {
		h := newHarness(t, func(p *model.Policy) {})
		items := h.seedItems(t, 1, "forge-coder")
		out, err := h.engine.Run(ctx, usecase.RunRequest{ProjectID: testProject, MaxItems: 1})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if want := items[0].BranchName(); out.Items[0].Branch != want || h.ws.Calls("branch "+want) != 1 {
			t.Errorf("expected branch %s, got %s", want, out.Items[0].Branch)
		}
	})

	t.Run("should fail an item with insufficient approvals", func(t *testing.T) {
		h := newHarness(t, func(p *model.Policy) { p.MinReviewApprovals = 2 })
		h.seedItems(t, 1, "forge-coder")
		h.provider.ReviewFunc = func(ctx context.Context, req adapter.ReviewRequest) (model.Review, error) {
			if req.Role == model.RoleTester {
				return model.Review{Role: req.Role, Decision: model.DecisionRequestChanges}, nil
			}
			return model.Review{Role: req.Role, Decision: model.DecisionApprove}, nil
		}

		out, err := h.engine.Run(ctx, usecase.RunRequest{ProjectID: testProject, MaxItems: 1})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if out.Items[0].Status != model.ItemFailed || !strings.Contains(out.Items[0].Error, "insufficient approvals") {
			t.Errorf("expected approval failure, got %+v", out.Items[0])
		}
		if h.ws.Calls("merge") != 0 {
			t.Error("expected no merge")
		}
		pr, err := h.store.PullRequests().FindByID(ctx, repository.NoTX, out.Items[0].PullRequestID)
		if err != nil {
			t.Fatalf("expected the pull request to be stored: %v", err)
		}
		if pr.Status != model.PullRequestOpen || len(pr.Reviews) != 2 || pr.Approvals != 1 {
			t.Errorf("unexpected pull request: %+v", pr)
		}
	})

	t.Run("should leave the pull request open when review is off and approvals are required", func(t *testing.T) {
		h := newHarness(t, func(p *model.Policy) { p.AutoReview = false })
		h.seedItems(t, 1, "forge-coder")

		out, err := h.engine.Run(ctx, usecase.RunRequest{ProjectID: testProject, MaxItems: 1})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if out.Items[0].Status != model.ItemSucceeded || out.Items[0].Merged {
			t.Errorf("expected open pull request, got %+v", out.Items[0])
		}
		if len(out.CreatedPRIDs) != 1 || len(out.MergedPRIDs) != 0 {
			t.Errorf("unexpected pr ids: %+v", out)
		}
		if h.pub.Count(model.EventAutoReviewOff) != 1 || h.pub.Count(model.EventPROpened) != 1 {
			t.Error("expected auto_review_disabled and pr_opened events")
		}
	})

	t.Run("should merge without review when no approvals are required", func(t *testing.T) {
		h := newHarness(t, func(p *model.Policy) {
			p.AutoReview = false
			p.MinReviewApprovals = 0
		})
		h.seedItems(t, 1, "forge-coder")

		out, err := h.engine.Run(ctx, usecase.RunRequest{ProjectID: testProject, MaxItems: 1})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if !out.Items[0].Merged || len(out.MergedPRIDs) != 1 {
			t.Errorf("expected merge, got %+v", out.Items[0])
		}
	})

	t.Run("should fail the item when the merge fails", func(t *testing.T) {
		h := newHarness(t, func(p *model.Policy) {})
		h.seedItems(t, 1, "forge-coder")
		h.ws.MergeFunc = func(ctx context.Context, branch, into string) (string, error) {
			return "", &adapter.WorkspaceError{Op: "merge", Err: errors.New("conflict")}
		}

		out, err := h.engine.Run(ctx, usecase.RunRequest{ProjectID: testProject, MaxItems: 1})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if out.Items[0].Status != model.ItemFailed || h.pub.Count(model.EventPRMergeFailed) != 1 {
			t.Errorf("expected merge failure, got %+v", out.Items[0])
		}
	})

	t.Run("should skip unassigned items when auto assign is off", func(t *testing.T) {
		h := newHarness(t, func(p *model.Policy) { p.AutoAssign = false })
		items := h.seedItems(t, 2, "")

		out, err := h.engine.Run(ctx, usecase.RunRequest{ProjectID: testProject, MaxItems: 2})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if out.ProcessedItems != 2 || len(out.Items) != 2 || out.Items[0].Status != model.ItemSkipped {
			t.Errorf("expected two skipped items counted as processed, got %+v", out)
		}
		if len(out.CreatedPRIDs) != 0 || out.Failed() != 0 {
			t.Errorf("expected no pull requests or failures for skipped items, got %+v", out)
		}
		if h.pub.Count(model.EventWorkItemSkipped) != 2 {
			t.Error("expected skip events")
		}
		if got := h.item(t, items[0].ID); got.Status != model.WorkItemPending {
			t.Errorf("expected skipped item to stay pending, got %s", got.Status)
		}
	})

	t.Run("should auto assign the default coder", func(t *testing.T) {
		h := newHarness(t, func(p *model.Policy) {})
		items := h.seedItems(t, 1, "")
		if _, err := h.engine.Run(ctx, usecase.RunRequest{ProjectID: testProject, MaxItems: 1}); err != nil {
			t.Fatalf("run: %v", err)
		}
		if got := h.item(t, items[0].ID); got.AssignedAgent != model.DefaultCoderAgent {
			t.Errorf("expected %s, got %q", model.DefaultCoderAgent, got.AssignedAgent)
		}
	})

	t.Run("should push after merge when configured", func(t *testing.T) {
		h := newHarness(t, func(p *model.Policy) {})
		h.seedItems(t, 1, "forge-coder")
		engine := usecase.NewOrchestrationUseCase(usecase.OrchestrationDeps{
			Projects:     h.store.Projects(),
			Policies:     h.store.Policies(),
			WorkItems:    h.store.WorkItems(),
			Objectives:   h.store.Objectives(),
			PullRequests: h.store.PullRequests(),
			Events:       h.store.Events(),
			Tx:           memstore.TxManager{},
			Workspace:    h.ws,
			Providers:    stubResolver{p: h.provider},
			Locker:       h.locker,
		}, usecase.OrchestrationOptions{AutoPush: true}, newLogger())

		if _, err := engine.Run(ctx, usecase.RunRequest{ProjectID: testProject, MaxItems: 1}); err != nil {
			t.Fatalf("run: %v", err)
		}
		if h.ws.Calls("push main") != 1 {
			t.Error("expected a push of the default branch")
		}
	})

	t.Run("should not report a merge when the push fails", func(t *testing.T) {
		h := newHarness(t, func(p *model.Policy) {})
		items := h.seedItems(t, 1, "forge-coder")
		h.rebuild(h.locker, usecase.OrchestrationOptions{AutoPush: true})
		h.ws.PushFunc = func(ctx context.Context, branch string) error {
			return &adapter.WorkspaceError{Op: "push", Err: errors.New("remote rejected")}
		}

		out, err := h.engine.Run(ctx, usecase.RunRequest{ProjectID: testProject, MaxItems: 1})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		res := out.Items[0]
		if res.Status != model.ItemFailed || res.Merged || len(out.MergedPRIDs) != 0 {
			t.Fatalf("expected failed unmerged item, got %+v / merged %v", res, out.MergedPRIDs)
		}
		pr, err := h.store.PullRequests().FindByID(ctx, repository.NoTX, res.PullRequestID)
		if err != nil {
			t.Fatalf("find pr: %v", err)
		}
		if pr.Status != model.PullRequestOpen {
			t.Errorf("expected the pull request to stay open, got %s", pr.Status)
		}
		if h.pub.Count(model.EventPRMergeFailed) != 1 || h.pub.Count(model.EventPRMerged) != 0 {
			t.Error("expected a merge failure event and no merged event")
		}
		if got := h.item(t, items[0].ID); got.Status != model.WorkItemFailed || !strings.Contains(got.LastError, "remote rejected") {
			t.Errorf("expected failed item with push error, got %s %q", got.Status, got.LastError)
		}
	})

	t.Run("should store validation output cut on a rune boundary", func(t *testing.T) {
		h := newHarness(t, func(p *model.Policy) { p.RequireTestCmd = true })
		items := h.seedItems(t, 1, "forge-coder")
		h.ws.ValidateFunc = func(ctx context.Context, command string) (adapter.ValidationResult, error) {
			return adapter.ValidationResult{ExitCode: 1, Output: "é" + strings.Repeat("b", 399)}, nil
		}

		out, err := h.engine.Run(ctx, usecase.RunRequest{ProjectID: testProject, MaxItems: 1})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if !utf8.ValidString(out.Items[0].Error) {
			t.Errorf("expected valid utf8 item error, got %q", out.Items[0].Error)
		}
		if got := h.item(t, items[0].ID); got.Status != model.WorkItemFailed || !utf8.ValidString(got.LastError) {
			t.Errorf("expected failed item with valid error text, got %s", got.Status)
		}
	})
}

func TestOrchestrationRun_Selection(t *testing.T) {
	ctx := context.Background()

	t.Run("should decompose the next objective when the backlog is short", func(t *testing.T) {
		h := newHarness(t, func(p *model.Policy) {})
		obj, _ := model.NewObjective("obj-1", testProject, "Add login. Add logout. Write docs", 0, "tester")
		if err := h.store.Objectives().Save(ctx, repository.NoTX, obj); err != nil {
			t.Fatalf("seed objective: %v", err)
		}

		out, err := h.engine.Run(ctx, usecase.RunRequest{ProjectID: testProject, MaxItems: 2})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if out.ProcessedItems != 2 {
			t.Fatalf("expected 2 processed items, got %d", out.ProcessedItems)
		}
		all, _ := h.store.WorkItems().ListByProject(ctx, repository.NoTX, testProject)
		if len(all) != 3 {
			t.Fatalf("expected 3 created items, got %d", len(all))
		}
		if all[2].Status != model.WorkItemPending {
			t.Errorf("expected the last item left pending, got %s", all[2].Status)
		}
		if _, err := h.store.Objectives().NextPending(ctx, repository.NoTX, testProject); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected objective marked decomposed, got %v", err)
		}
	})

	t.Run("should keep a single item when auto triage is off", func(t *testing.T) {
		h := newHarness(t, func(p *model.Policy) { p.AutoTriage = false })
		obj, _ := model.NewObjective("obj-1", testProject, "Add login. Add logout", 0, "tester")
		_ = h.store.Objectives().Save(ctx, repository.NoTX, obj)

		out, err := h.engine.Run(ctx, usecase.RunRequest{ProjectID: testProject, MaxItems: 5})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if out.ProcessedItems != 1 {
			t.Errorf("expected a single item, got %d", out.ProcessedItems)
		}
	})

	t.Run("should cap decomposition at the objective's limit", func(t *testing.T) {
		h := newHarness(t, func(p *model.Policy) {})
		obj, _ := model.NewObjective("obj-1", testProject, "a. b. c. d. e", 2, "tester")
		_ = h.store.Objectives().Save(ctx, repository.NoTX, obj)

		if _, err := h.engine.Run(ctx, usecase.RunRequest{ProjectID: testProject, MaxItems: 10}); err != nil {
			t.Fatalf("run: %v", err)
		}
		all, _ := h.store.WorkItems().ListByProject(ctx, repository.NoTX, testProject)
		if len(all) != 2 {
			t.Errorf("expected 2 items, got %d", len(all))
		}
	})

	t.Run("should treat an exhausted backlog as success", func(t *testing.T) {
		h := newHarness(t, func(p *model.Policy) {})
		h.seedItems(t, 1, "forge-coder")
		out, err := h.engine.Run(ctx, usecase.RunRequest{ProjectID: testProject, MaxItems: 5})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if out.ProcessedItems != 1 {
			t.Errorf("expected 1 processed item, got %d", out.ProcessedItems)
		}
	})

	t.Run("should stop at the next item boundary when canceled", func(t *testing.T) {
		h := newHarness(t, func(p *model.Policy) {})
		items := h.seedItems(t, 3, "forge-coder")
		cancel := make(chan struct{})
		h.provider.ProposeFunc = func(ctx context.Context, req adapter.ChangeRequest) (*adapter.Change, error) {
			if req.Item.ID == items[0].ID {
				close(cancel)
			}
			return &adapter.Change{Files: []adapter.FileChange{{Path: "a.md", Content: "x"}}, CommitMessage: "m"}, nil
		}

		out, err := h.engine.Run(ctx, usecase.RunRequest{ProjectID: testProject, MaxItems: 3, Cancel: cancel})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if !out.Canceled || out.ProcessedItems != 1 {
			t.Errorf("expected cancellation after one item, got %+v", out)
		}
		if got := h.item(t, items[1].ID); got.Status != model.WorkItemPending {
			t.Errorf("expected untouched second item, got %s", got.Status)
		}
	})

	t.Run("should not call the provider once canceled before generation", func(t *testing.T) {
		h := newHarness(t, func(p *model.Policy) {})
		items := h.seedItems(t, 1, "forge-coder")
		cancel := make(chan struct{})
		h.ws.EnsureFunc = func(ctx context.Context, repo adapter.RepoRef) error {
			if h.ws.Calls("ensure") == 2 {
				close(cancel)
			}
			return nil
		}
		called := false
		h.provider.ProposeFunc = func(ctx context.Context, req adapter.ChangeRequest) (*adapter.Change, error) {
			called = true
			return nil, errors.New("unreachable")
		}

		out, err := h.engine.Run(ctx, usecase.RunRequest{ProjectID: testProject, MaxItems: 1, Cancel: cancel})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if called || !out.Canceled || out.ProcessedItems != 0 {
			t.Errorf("expected interruption before the provider, got %+v", out)
		}
		if got := h.item(t, items[0].ID); got.Status != model.WorkItemInProgress {
			t.Errorf("expected item left in progress, got %s", got.Status)
		}
	})
}

func TestOrchestrationRun_ProjectLease(t *testing.T) {
	ctx := context.Background()

	t.Run("should keep the project locked past the lease ttl while running", func(t *testing.T) {
		h := newHarness(t, func(p *model.Policy) {})
		h.seedItems(t, 1, "forge-coder")
		h.rebuild(h.locker, usecase.OrchestrationOptions{LockTTL: 90 * time.Millisecond})
		var midRun error
		h.provider.ProposeFunc = func(ctx context.Context, req adapter.ChangeRequest) (*adapter.Change, error) {
			time.Sleep(300 * time.Millisecond)
			_, midRun = h.locker.TryLock(ctx, adapter.ProjectRunKey(testProject), time.Minute)
			return &adapter.Change{Files: []adapter.FileChange{{Path: "a.md", Content: "x"}}, CommitMessage: "m"}, nil
		}

		if _, err := h.engine.Run(ctx, usecase.RunRequest{ProjectID: testProject, MaxItems: 1}); err != nil {
			t.Fatalf("run: %v", err)
		}
		if !errors.Is(midRun, domain.ErrProjectBusy) {
			t.Fatalf("expected the renewed lease to hold, got %v", midRun)
		}
		tok, err := h.locker.TryLock(ctx, adapter.ProjectRunKey(testProject), time.Minute)
		if err != nil {
			t.Fatalf("expected the lock released after the run, got %v", err)
		}
		_ = h.locker.Unlock(ctx, adapter.ProjectRunKey(testProject), tok)
	})

	t.Run("should stop at the next item boundary when the lease is lost", func(t *testing.T) {
		h := newHarness(t, func(p *model.Policy) {})
		items := h.seedItems(t, 2, "forge-coder")
		h.rebuild(losingLocker{h.locker}, usecase.OrchestrationOptions{LockTTL: 30 * time.Millisecond})
		h.provider.ProposeFunc = func(ctx context.Context, req adapter.ChangeRequest) (*adapter.Change, error) {
			time.Sleep(150 * time.Millisecond)
			return &adapter.Change{Files: []adapter.FileChange{{Path: "a.md", Content: "x"}}, CommitMessage: "m"}, nil
		}

		out, err := h.engine.Run(ctx, usecase.RunRequest{ProjectID: testProject, MaxItems: 2})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if !out.Canceled || out.ProcessedItems != 1 {
			t.Errorf("expected the run to stop after one item, got %+v", out)
		}
		if got := h.item(t, items[1].ID); got.Status != model.WorkItemPending {
			t.Errorf("expected second item untouched, got %s", got.Status)
		}
	})
}
