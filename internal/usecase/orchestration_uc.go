package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"agent-hub/internal/domain"
	"agent-hub/internal/domain/model"
	"agent-hub/internal/domain/ports/adapter"
	"agent-hub/internal/domain/ports/repository"
	"agent-hub/internal/infra/logging"
	"agent-hub/internal/infra/metrics"
)

// Compile-time check
var _ OrchestrationUseCase = (*orchestrationUC)(nil)

// RunRequest asks for one orchestration pass over a project.
type RunRequest struct {
	ProjectID string
	MaxItems  int
	// Provider overrides the configured content provider when set.
	Provider string
	// JobID is only used for logs and events.
	JobID string
	// Cancel is closed to stop the run at the next item boundary. A nil
	// channel never fires.
	Cancel <-chan struct{}
}

type OrchestrationUseCase interface {
	// Run processes up to MaxItems work items. Item failures are reported in
	// the outcome; only run-level preconditions return an error.
	Run(ctx context.Context, req RunRequest) (*model.RunOutcome, error)
}

type OrchestrationOptions struct {
	// LockTTL bounds the project lease of a run. The lease is renewed every
	// LockTTL/3 while the run is alive, so a crashed run frees the project
	// after at most LockTTL.
	LockTTL                  time.Duration
	DefaultValidationCommand string
	AutoPush                 bool
}

// OrchestrationDeps groups the collaborators of the run engine.
type OrchestrationDeps struct {
	Projects     repository.ProjectRepository
	Policies     repository.PolicyRepository
	WorkItems    repository.WorkItemRepository
	Objectives   repository.ObjectiveRepository
	PullRequests repository.PullRequestRepository
	Events       repository.EventRepository
	Tx           repository.TransactionManager
	Workspace    adapter.Workspace
	Providers    adapter.ProviderResolver
	Locker       adapter.Locker
	Publisher    adapter.EventPublisher
}

type orchestrationUC struct {
	projects   repository.ProjectRepository
	policies   repository.PolicyRepository
	items      repository.WorkItemRepository
	objectives repository.ObjectiveRepository
	prs        repository.PullRequestRepository
	tx         repository.TransactionManager
	workspace  adapter.Workspace
	providers  adapter.ProviderResolver
	locker     adapter.Locker
	events     *EventRecorder
	opts       OrchestrationOptions
	now        func() time.Time
	log        *zerolog.Logger
}

func NewOrchestrationUseCase(deps OrchestrationDeps, opts OrchestrationOptions, logger *zerolog.Logger) *orchestrationUC {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 2 * time.Minute
	}
	l := logger.With().Str("component", "orchestration").Logger()
	return &orchestrationUC{
		projects:   deps.Projects,
		policies:   deps.Policies,
		items:      deps.WorkItems,
		objectives: deps.Objectives,
		prs:        deps.PullRequests,
		tx:         deps.Tx,
		workspace:  deps.Workspace,
		providers:  deps.Providers,
		locker:     deps.Locker,
		events:     NewEventRecorder(deps.Events, deps.Publisher, logger),
		opts:       opts,
		now:        func() time.Time { return time.Now().UTC() },
		log:        &l,
	}
}

// runContext is the state shared by every item of one run.
type runContext struct {
	project  *model.Project
	policy   *model.Policy
	provider adapter.ContentProvider
	repo     adapter.RepoRef
	cancel   <-chan struct{}
	// leaseLost is closed when the project lock could not be renewed.
	leaseLost <-chan struct{}
	log       *zerolog.Logger
}

func (rc *runContext) canceled(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return closed(rc.cancel) || closed(rc.leaseLost)
}

// closed reports whether ch is closed. A nil channel never is.
func closed(ch <-chan struct{}) bool {
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func (o *orchestrationUC) Run(ctx context.Context, req RunRequest) (*model.RunOutcome, error) {
	out := &model.RunOutcome{
		ProjectID:    req.ProjectID,
		Items:        []model.ItemResult{},
		CreatedPRIDs: []string{},
		MergedPRIDs:  []string{},
	}
	if req.MaxItems <= 0 {
		return out, nil
	}

	ctx = logging.WithProjectID(ctx, req.ProjectID)
	if req.JobID != "" {
		ctx = logging.WithJobID(ctx, req.JobID)
	}
	log := logging.With(ctx, o.log)
	defer logging.TraceDuration(log, "OrchestrationUC.Run")()

	project, err := o.projects.FindByID(ctx, repository.NoTX, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", req.ProjectID, err)
	}
	policy, err := o.policies.GetByProject(ctx, repository.NoTX, project.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrPolicyMissing, project.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	provider, err := o.providers.Resolve(req.Provider)
	if err != nil {
		return nil, fmt.Errorf("resolve provider %q: %w", req.Provider, err)
	}

	key := adapter.ProjectRunKey(project.ID)
	token, err := o.locker.TryLock(ctx, key, o.opts.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("lock project %s: %w", project.ID, err)
	}
	defer func() {
		if err := o.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			log.Warn().Err(err).Msg("release project lock failed")
		}
	}()
	leaseLost := make(chan struct{})
	stopLease := o.keepLease(ctx, log, key, token, leaseLost)
	defer stopLease()

	rc := &runContext{
		project:  project,
		policy:   policy,
		provider: provider,
		repo: adapter.RepoRef{
			ProjectID:     project.ID,
			URL:           project.RepoURL,
			DefaultBranch: project.DefaultBranch,
		},
		cancel:    req.Cancel,
		leaseLost: leaseLost,
		log:       log,
	}

	if err := o.workspace.EnsureDefaultBranch(ctx, rc.repo); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrWorkspaceUnavailable, err)
	}

	items, err := o.selectItems(ctx, rc, req.MaxItems)
	if err != nil {
		return nil, err
	}
	log.Info().Int("selected", len(items)).Str("provider", provider.Name()).Msg("autopilot run started")

	for _, item := range items {
		if rc.canceled(ctx) {
			out.Canceled = true
			break
		}
		res, interrupted := o.processItem(ctx, rc, item)
		if interrupted {
			out.Canceled = true
			break
		}
		out.Items = append(out.Items, res)
		out.ProcessedItems++
		metrics.IncWorkItem(string(res.Status))
		if res.PullRequestID != "" {
			out.CreatedPRIDs = append(out.CreatedPRIDs, res.PullRequestID)
			if res.Merged {
				out.MergedPRIDs = append(out.MergedPRIDs, res.PullRequestID)
			}
		}
	}

	o.events.Record(ctx, project.ID, model.EventCycleCompleted, map[string]any{
		"job_id":          req.JobID,
		"processed_items": out.ProcessedItems,
		"created_prs":     len(out.CreatedPRIDs),
		"merged_prs":      len(out.MergedPRIDs),
		"failed_items":    out.Failed(),
		"canceled":        out.Canceled,
	})
	log.Info().
		Int("processed", out.ProcessedItems).
		Int("failed", out.Failed()).
		Int("merged", len(out.MergedPRIDs)).
		Bool("canceled", out.Canceled).
		Msg("autopilot run finished")
	return out, nil
}

// keepLease renews the project lock until the returned stop func is called.
// A lease taken over by someone else closes lost.
func (o *orchestrationUC) keepLease(ctx context.Context, log *zerolog.Logger, key, token string, lost chan<- struct{}) (stop func()) {
	lctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(o.opts.LockTTL / 3)
		defer t.Stop()
		for {
			select {
			case <-lctx.Done():
				return
			case <-t.C:
				err := o.locker.Extend(lctx, key, token, o.opts.LockTTL)
				switch {
				case err == nil:
				case errors.Is(err, domain.ErrLockLost):
					log.Warn().Msg("project lock lost; stopping run at next item boundary")
					close(lost)
					return
				case lctx.Err() != nil:
					return
				default:
					log.Warn().Err(err).Msg("renew project lock failed")
				}
			}
		}
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

// selectItems reuses open items first and decomposes pending objectives
// until the budget is met or the backlog runs dry.
func (o *orchestrationUC) selectItems(ctx context.Context, rc *runContext, max int) ([]*model.WorkItem, error) {
	items, err := o.items.ListSelectable(ctx, repository.NoTX, rc.project.ID, max)
	if err != nil {
		return nil, fmt.Errorf("list work items: %w", err)
	}
	for len(items) < max {
		if rc.canceled(ctx) {
			break
		}
		obj, err := o.objectives.NextPending(ctx, repository.NoTX, rc.project.ID)
		if errors.Is(err, domain.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("next objective: %w", err)
		}
		if err := o.decompose(ctx, rc, obj); err != nil {
			return nil, err
		}
		items, err = o.items.ListSelectable(ctx, repository.NoTX, rc.project.ID, max)
		if err != nil {
			return nil, fmt.Errorf("list work items: %w", err)
		}
	}
	return items, nil
}

func (o *orchestrationUC) decompose(ctx context.Context, rc *runContext, obj *model.Objective) error {
	drafts, err := rc.provider.Decompose(ctx, adapter.DecomposeRequest{
		Project:   rc.project,
		Objective: obj,
		Split:     rc.policy.AutoTriage,
	})
	if err != nil {
		return fmt.Errorf("decompose objective %s: %w", obj.ID, err)
	}
	if len(drafts) > obj.MaxWorkItems {
		drafts = drafts[:obj.MaxWorkItems]
	}

	created := make([]string, 0, len(drafts))
	err = o.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		for _, d := range drafts {
			item := &model.WorkItem{
				ID:          uuid.NewString(),
				ProjectID:   rc.project.ID,
				ObjectiveID: obj.ID,
				Title:       d.Title,
				Description: d.Description,
				Priority:    d.Priority,
				Status:      model.WorkItemPending,
			}
			if err := o.items.Save(ctx, tx, item); err != nil {
				return err
			}
			created = append(created, item.ID)
		}
		return o.objectives.MarkDecomposed(ctx, tx, obj.ID)
	})
	if err != nil {
		return fmt.Errorf("store decomposition of %s: %w", obj.ID, err)
	}
	o.events.Record(ctx, rc.project.ID, model.EventObjectiveSplit, map[string]any{
		"objective_id":  obj.ID,
		"work_item_ids": created,
	})
	rc.log.Debug().Str("objective_id", obj.ID).Int("items", len(created)).Msg("objective decomposed")
	return nil
}

// processItem runs the pipeline for one item. interrupted is true when the
// cancel signal was seen before the provider call; the item then stays
// in progress and is picked up by a later run.
func (o *orchestrationUC) processItem(ctx context.Context, rc *runContext, item *model.WorkItem) (res model.ItemResult, interrupted bool) {
	res = model.ItemResult{WorkItemID: item.ID}
	log := rc.log.With().Str("work_item_id", item.ID).Logger()

	if item.AssignedAgent == "" {
		if !rc.policy.AutoAssign {
			o.events.Record(ctx, rc.project.ID, model.EventWorkItemSkipped, map[string]any{"work_item_id": item.ID})
			log.Info().Msg("work item skipped: no agent assigned")
			res.Status = model.ItemSkipped
			return res, false
		}
		item.AssignedAgent = model.DefaultCoderAgent
	}

	branch := item.BranchName()
	item.Status = model.WorkItemInProgress
	item.Branch = branch
	item.LastError = ""
	if err := o.items.Save(ctx, repository.NoTX, item); err != nil {
		return o.failItem(ctx, rc, item, res, fmt.Errorf("mark in progress: %w", err)), false
	}
	res.Branch = branch

	if err := o.workspace.EnsureDefaultBranch(ctx, rc.repo); err != nil {
		return o.failItem(ctx, rc, item, res, err), false
	}
	if err := o.workspace.CreateBranch(ctx, rc.repo, branch); err != nil {
		return o.failItem(ctx, rc, item, res, err), false
	}

	if rc.canceled(ctx) {
		log.Info().Msg("run canceled before content generation")
		return res, true
	}
	change, err := rc.provider.ProposeChange(ctx, adapter.ChangeRequest{
		Project: rc.project,
		Item:    item,
		Branch:  branch,
		Agent:   item.AssignedAgent,
	})
	if err != nil {
		return o.failItem(ctx, rc, item, res, fmt.Errorf("propose change: %w", err)), false
	}
	if change == nil || len(change.Files) == 0 {
		return o.failItem(ctx, rc, item, res, errors.New("propose change: provider returned no files")), false
	}

	sha, err := o.workspace.Commit(ctx, rc.repo, branch, change.CommitMessage, change.Files)
	if err != nil {
		return o.failItem(ctx, rc, item, res, err), false
	}

	checksPassed := true
	if rc.policy.RequireTestCmd {
		cmd := rc.project.ValidationCommand
		if cmd == "" {
			cmd = o.opts.DefaultValidationCommand
		}
		if cmd == "" {
			return o.failItem(ctx, rc, item, res, errors.New("validation required but no command configured")), false
		}
		vr, err := o.workspace.Validate(ctx, rc.repo, cmd)
		if err != nil {
			return o.failItem(ctx, rc, item, res, err), false
		}
		if !vr.Passed {
			return o.failItem(ctx, rc, item, res, fmt.Errorf("validation failed with exit code %d: %s", vr.ExitCode, tail(vr.Output, 400))), false
		}
		checksPassed = vr.Passed
	}

	description := fmt.Sprintf("Autonomous agent delivery with real git branch and commit.\n\n- branch: %s\n- commit: %s\n- summary: %s",
		branch, sha, change.Summary)
	pr := &model.PullRequest{
		ID:           uuid.NewString(),
		ProjectID:    rc.project.ID,
		WorkItemID:   item.ID,
		Title:        "[agent] " + item.Title,
		Description:  description,
		SourceBranch: branch,
		TargetBranch: rc.project.DefaultBranch,
		Status:       model.PullRequestOpen,
		ChecksPassed: checksPassed,
		CommitSHA:    sha,
		CreatedAt:    o.now(),
	}
	if err := o.prs.Save(ctx, repository.NoTX, pr); err != nil {
		return o.failItem(ctx, rc, item, res, fmt.Errorf("open pull request: %w", err)), false
	}
	metrics.IncPullRequest("opened")
	res.PullRequestID = pr.ID
	item.PullRequestID = pr.ID

	reviewPassed := rc.policy.MinReviewApprovals == 0
	if rc.policy.AutoReview {
		for _, role := range []model.ReviewRole{model.RoleReviewer, model.RoleTester} {
			rv, err := rc.provider.Review(ctx, adapter.ReviewRequest{
				Project:      rc.project,
				Item:         item,
				Role:         role,
				ChecksPassed: checksPassed,
			})
			if err != nil {
				o.savePR(ctx, rc, pr)
				return o.failItem(ctx, rc, item, res, fmt.Errorf("%s review: %w", role, err)), false
			}
			pr.Reviews = append(pr.Reviews, rv)
		}
		pr.Approvals = pr.CountApprovals()
		if pr.Approvals < rc.policy.MinReviewApprovals {
			o.savePR(ctx, rc, pr)
			return o.failItem(ctx, rc, item, res, fmt.Errorf("insufficient approvals: %d of %d", pr.Approvals, rc.policy.MinReviewApprovals)), false
		}
		reviewPassed = true
	} else {
		o.events.Record(ctx, rc.project.ID, model.EventAutoReviewOff, map[string]any{
			"pull_request_id": pr.ID,
			"work_item_id":    item.ID,
		})
	}

	if rc.policy.AutoMerge && reviewPassed {
		mergeSHA, err := o.workspace.Merge(ctx, rc.repo, branch, rc.project.DefaultBranch)
		if err == nil && o.opts.AutoPush {
			if err = o.workspace.Push(ctx, rc.repo, rc.project.DefaultBranch); err != nil {
				err = fmt.Errorf("push %s: %w", rc.project.DefaultBranch, err)
			}
		}
		if err != nil {
			o.savePR(ctx, rc, pr)
			o.events.Record(ctx, rc.project.ID, model.EventPRMergeFailed, map[string]any{
				"pull_request_id": pr.ID,
				"work_item_id":    item.ID,
				"error":           err.Error(),
			})
			return o.failItem(ctx, rc, item, res, err), false
		}
		now := o.now()
		pr.Status = model.PullRequestMerged
		pr.MergeSHA = mergeSHA
		pr.MergedAt = &now
		pr.Description += "\n- merged_sha: " + mergeSHA
		o.savePR(ctx, rc, pr)
		metrics.IncPullRequest("merged")
		res.Merged = true
		o.events.Record(ctx, rc.project.ID, model.EventPRMerged, map[string]any{
			"pull_request_id": pr.ID,
			"work_item_id":    item.ID,
			"approvals":       pr.Approvals,
			"merged_sha":      mergeSHA,
		})
	} else {
		o.savePR(ctx, rc, pr)
		o.events.Record(ctx, rc.project.ID, model.EventPROpened, map[string]any{
			"pull_request_id": pr.ID,
			"work_item_id":    item.ID,
			"approvals":       pr.Approvals,
			"checks_passed":   pr.ChecksPassed,
		})
	}

	now := o.now()
	item.Status = model.WorkItemSucceeded
	item.CompletedAt = &now
	if err := o.items.Save(ctx, repository.NoTX, item); err != nil {
		log.Error().Err(err).Msg("persist succeeded work item failed")
	}
	res.Status = model.ItemSucceeded
	log.Info().Str("pull_request_id", pr.ID).Bool("merged", res.Merged).Msg("work item delivered")
	return res, false
}

func (o *orchestrationUC) savePR(ctx context.Context, rc *runContext, pr *model.PullRequest) {
	if err := o.prs.Save(context.WithoutCancel(ctx), repository.NoTX, pr); err != nil {
		rc.log.Error().Err(err).Str("pull_request_id", pr.ID).Msg("persist pull request failed")
	}
}

// failItem records an item failure. The run goes on with the next item.
func (o *orchestrationUC) failItem(ctx context.Context, rc *runContext, item *model.WorkItem, res model.ItemResult, cause error) model.ItemResult {
	msg := model.TruncateError(cause.Error())
	item.Status = model.WorkItemFailed
	item.LastError = msg
	if err := o.items.Save(context.WithoutCancel(ctx), repository.NoTX, item); err != nil {
		rc.log.Error().Err(err).Str("work_item_id", item.ID).Msg("persist failed work item failed")
	}
	o.events.Record(ctx, rc.project.ID, model.EventWorkItemFailed, map[string]any{
		"work_item_id": item.ID,
		"error":        msg,
	})
	rc.log.Warn().Err(cause).Str("work_item_id", item.ID).Bool("transient", adapter.IsTransient(cause)).Msg("work item failed")
	res.Status = model.ItemFailed
	res.Error = msg
	return res
}

// tail keeps the last n bytes of s, starting on a rune boundary.
func tail(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}
