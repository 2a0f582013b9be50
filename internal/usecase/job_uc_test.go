//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"

	"agent-hub/internal/domain"
	"agent-hub/internal/domain/model"
	"agent-hub/internal/domain/ports/repository"
	"agent-hub/internal/infra/db/memstore"
	"agent-hub/internal/usecase"
)

type stubEngine struct {
	RunFunc func(ctx context.Context, req usecase.RunRequest) (*model.RunOutcome, error)
}

func (e *stubEngine) Run(ctx context.Context, req usecase.RunRequest) (*model.RunOutcome, error) {
	return e.RunFunc(ctx, req)
}

func newJobUC(t *testing.T, engine usecase.OrchestrationUseCase) (usecase.JobUseCase, *memstore.Store) {
	t.Helper()
	store := memstore.NewStore()
	if err := store.Projects().Save(context.Background(), repository.NoTX, &model.Project{ID: "p1", Name: "p1", RepoURL: "file:///tmp/p1"}); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	uc := usecase.NewJobUseCase(store.Jobs(), store.Projects(), engine, usecase.JobDefaults{MaxItems: 3, MaxAttempts: 2}, newLogger())
	return uc, store
}

func TestJobUseCase_Enqueue(t *testing.T) {
	ctx := context.Background()

	t.Run("should apply defaults and queue the job", func(t *testing.T) {
		uc, _ := newJobUC(t, nil)
		job, err := uc.Enqueue(ctx, usecase.EnqueueParams{ProjectID: "p1", RequestedBy: "alice"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if job.Status != model.JobStatusQueued || job.MaxItems != 3 || job.MaxAttempts != 2 || job.AttemptCount != 0 {
			t.Errorf("unexpected job: %+v", job)
		}
		if len(job.ID) != 26 {
			t.Errorf("expected a ulid job id, got %q", job.ID)
		}
		got, err := uc.Get(ctx, job.ID)
		if err != nil || got.RequestedBy != "alice" {
			t.Errorf("expected stored job, got %+v / %v", got, err)
		}
	})

	t.Run("should reject out of range parameters", func(t *testing.T) {
		uc, _ := newJobUC(t, nil)
		cases := []usecase.EnqueueParams{
			{ProjectID: "p1", MaxItems: 51},
			{ProjectID: "p1", MaxAttempts: 11},
			{ProjectID: "p1", MaxItems: -1},
			{ProjectID: ""},
			{ProjectID: "p1", Provider: "magic"},
		}
		for _, c := range cases {
			if _, err := uc.Enqueue(ctx, c); !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument for %+v, got %v", c, err)
			}
		}
	})

	t.Run("should reject an unknown project", func(t *testing.T) {
		uc, _ := newJobUC(t, nil)
		if _, err := uc.Enqueue(ctx, usecase.EnqueueParams{ProjectID: "ghost"}); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestJobUseCase_Lifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("should cancel, retry and then conflict", func(t *testing.T) {
		uc, _ := newJobUC(t, nil)
		job, _ := uc.Enqueue(ctx, usecase.EnqueueParams{ProjectID: "p1", MaxAttempts: 2})

		canceled, err := uc.Cancel(ctx, job.ID)
		if err != nil || canceled.Status != model.JobStatusCanceled || canceled.AttemptCount != 0 {
			t.Fatalf("unexpected cancel result: %+v / %v", canceled, err)
		}
		retried, err := uc.Retry(ctx, job.ID)
		if err != nil || retried.Status != model.JobStatusQueued || retried.AttemptCount != 1 {
			t.Fatalf("unexpected retry result: %+v / %v", retried, err)
		}
		if _, err := uc.Retry(ctx, job.ID); !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		got, _ := uc.Get(ctx, job.ID)
		if got.Status != model.JobStatusQueued || got.AttemptCount != 1 {
			t.Errorf("expected job unchanged by the rejected retry, got %+v", got)
		}
	})

	t.Run("should surface invalid transitions on terminal jobs", func(t *testing.T) {
		uc, store := newJobUC(t, nil)
		job, _ := uc.Enqueue(ctx, usecase.EnqueueParams{ProjectID: "p1"})
		if _, err := store.Jobs().ClaimNext(ctx, "w1"); err != nil {
			t.Fatalf("claim: %v", err)
		}
		if _, err := store.Jobs().Complete(ctx, job.ID, "w1", model.Failed("boom")); err != nil {
			t.Fatalf("complete: %v", err)
		}
		if _, err := uc.Cancel(ctx, job.ID); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("should list jobs with a valid status filter only", func(t *testing.T) {
		uc, _ := newJobUC(t, nil)
		_, _ = uc.Enqueue(ctx, usecase.EnqueueParams{ProjectID: "p1"})
		_, _ = uc.Enqueue(ctx, usecase.EnqueueParams{ProjectID: "p1"})

		jobs, err := uc.List(ctx, repository.JobFilter{ProjectID: "p1", Status: model.JobStatusQueued})
		if err != nil || len(jobs) != 2 {
			t.Fatalf("expected 2 queued jobs, got %d / %v", len(jobs), err)
		}
		if _, err := uc.List(ctx, repository.JobFilter{Status: "paused"}); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("should run synchronously through the engine", func(t *testing.T) {
		var seen usecase.RunRequest
		engine := &stubEngine{RunFunc: func(ctx context.Context, req usecase.RunRequest) (*model.RunOutcome, error) {
			seen = req
			return &model.RunOutcome{ProjectID: req.ProjectID, ProcessedItems: 2}, nil
		}}
		uc, _ := newJobUC(t, engine)

		out, err := uc.RunSynchronously(ctx, "p1", 2, "stub")
		if err != nil || out.ProcessedItems != 2 {
			t.Fatalf("unexpected outcome: %+v / %v", out, err)
		}
		if seen.ProjectID != "p1" || seen.MaxItems != 2 || seen.Provider != "stub" || seen.Cancel != nil {
			t.Errorf("unexpected run request: %+v", seen)
		}
		if _, err := uc.RunSynchronously(ctx, "p1", 51, ""); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}
