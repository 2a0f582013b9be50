//go:build !integration

package apiv1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"agent-hub/internal/domain"
	"agent-hub/internal/domain/model"
	apiv1 "agent-hub/internal/infra/api/apiv1"
	"agent-hub/internal/infra/db/memstore"
	"agent-hub/internal/usecase"
)

type stubEngine struct {
	RunFunc func(ctx context.Context, req usecase.RunRequest) (*model.RunOutcome, error)
}

func (s *stubEngine) Run(ctx context.Context, req usecase.RunRequest) (*model.RunOutcome, error) {
	if s.RunFunc != nil {
		return s.RunFunc(ctx, req)
	}
	return &model.RunOutcome{ProjectID: req.ProjectID}, nil
}

func newLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

type fixture struct {
	store  *memstore.Store
	engine *stubEngine
	router *chi.Mux
}

func newFixture(t *testing.T, opts apiv1.Options) *fixture {
	t.Helper()
	store := memstore.NewStore()
	engine := &stubEngine{}
	tx := memstore.TxManager{}

	projects := usecase.NewProjectUseCase(store.Projects(), store.Policies(), tx, newLogger())
	jobs := usecase.NewJobUseCase(store.Jobs(), store.Projects(), engine, usecase.JobDefaults{MaxItems: 3, MaxAttempts: 2}, newLogger())
	objectives := usecase.NewObjectiveUseCase(store.Projects(), store.Objectives(), store.Events(), nil, newLogger())

	r := chi.NewRouter()
	apiv1.RegisterAPIV1(r, apiv1.NewServer(jobs, projects, objectives, opts, newLogger()))

	f := &fixture{store: store, engine: engine, router: r}
	rec := f.do(t, http.MethodPut, "/api/v1/projects/p1", `{"name":"Demo","repo_url":"/tmp/demo.git"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("seed project: got %d, body=%s", rec.Code, rec.Body.String())
	}
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeJob(t *testing.T, rec *httptest.ResponseRecorder) *model.Job {
	t.Helper()
	var job model.Job
	if err := json.NewDecoder(rec.Body).Decode(&job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	return &job
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error apiv1.ErrorBody `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v (raw=%s)", err, rec.Body.String())
	}
	return body.Error.Code
}

func (f *fixture) enqueue(t *testing.T, body string) *model.Job {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/projects/p1/jobs", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("enqueue: got %d, body=%s", rec.Code, rec.Body.String())
	}
	return decodeJob(t, rec)
}

func TestJobs_Enqueue(t *testing.T) {
	t.Run("should create a queued job with defaults", func(t *testing.T) {
		f := newFixture(t, apiv1.Options{})
		rec := f.do(t, http.MethodPost, "/api/v1/projects/p1/jobs", "")
		if rec.Code != http.StatusCreated {
			t.Fatalf("want 201, got %d, body=%s", rec.Code, rec.Body.String())
		}
		if loc := rec.Header().Get("Location"); loc == "" {
			t.Error("expected a Location header")
		}
		job := decodeJob(t, rec)
		if job.Status != model.JobStatusQueued || job.MaxItems != 3 || job.MaxAttempts != 2 {
			t.Errorf("unexpected job: %+v", job)
		}
		if job.RequestedBy != "api" {
			t.Errorf("expected requested_by api, got %s", job.RequestedBy)
		}
	})

	t.Run("should reject out of range max_items with invalid_argument", func(t *testing.T) {
		f := newFixture(t, apiv1.Options{})
		rec := f.do(t, http.MethodPost, "/api/v1/projects/p1/jobs", `{"max_items":51}`)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("want 422, got %d", rec.Code)
		}
		if code := errorCode(t, rec); code != apiv1.CodeInvalidArgument {
			t.Errorf("want invalid_argument, got %s", code)
		}
	})

	t.Run("should return not_found for unknown projects", func(t *testing.T) {
		f := newFixture(t, apiv1.Options{})
		rec := f.do(t, http.MethodPost, "/api/v1/projects/nope/jobs", `{}`)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("want 404, got %d", rec.Code)
		}
		if code := errorCode(t, rec); code != apiv1.CodeNotFound {
			t.Errorf("want not_found, got %s", code)
		}
	})

	t.Run("should reject malformed json", func(t *testing.T) {
		f := newFixture(t, apiv1.Options{})
		rec := f.do(t, http.MethodPost, "/api/v1/projects/p1/jobs", `{"max_items":`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d", rec.Code)
		}
	})
}

func TestJobs_Lifecycle(t *testing.T) {
	t.Run("should cancel then retry then report conflict", func(t *testing.T) {
		f := newFixture(t, apiv1.Options{})
		job := f.enqueue(t, `{"max_attempts":3}`)

		rec := f.do(t, http.MethodPost, "/api/v1/jobs/"+job.ID+"/cancel", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("cancel: want 200, got %d, body=%s", rec.Code, rec.Body.String())
		}
		if got := decodeJob(t, rec); got.Status != model.JobStatusCanceled {
			t.Fatalf("expected canceled, got %s", got.Status)
		}

		rec = f.do(t, http.MethodPost, "/api/v1/jobs/"+job.ID+"/retry", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("retry: want 200, got %d, body=%s", rec.Code, rec.Body.String())
		}
		if got := decodeJob(t, rec); got.Status != model.JobStatusQueued {
			t.Fatalf("expected queued, got %s", got.Status)
		}

		rec = f.do(t, http.MethodPost, "/api/v1/jobs/"+job.ID+"/retry", "")
		if rec.Code != http.StatusConflict {
			t.Fatalf("second retry: want 409, got %d", rec.Code)
		}
		if code := errorCode(t, rec); code != apiv1.CodeConflict {
			t.Errorf("want conflict, got %s", code)
		}
	})

	t.Run("should report invalid_transition when canceling a finished job", func(t *testing.T) {
		f := newFixture(t, apiv1.Options{})
		job := f.enqueue(t, "")
		claimed, err := f.store.Jobs().ClaimNext(context.Background(), "w1")
		if err != nil || claimed.ID != job.ID {
			t.Fatalf("claim: %v", err)
		}
		if _, err := f.store.Jobs().Complete(context.Background(), job.ID, "w1", model.Succeeded(&model.RunOutcome{})); err != nil {
			t.Fatalf("complete: %v", err)
		}

		rec := f.do(t, http.MethodPost, "/api/v1/jobs/"+job.ID+"/cancel", "")
		if rec.Code != http.StatusConflict {
			t.Fatalf("want 409, got %d", rec.Code)
		}
		if code := errorCode(t, rec); code != apiv1.CodeInvalidTransition {
			t.Errorf("want invalid_transition, got %s", code)
		}
	})

	t.Run("should report attempts_exhausted when the budget is spent", func(t *testing.T) {
		f := newFixture(t, apiv1.Options{})
		job := f.enqueue(t, `{"max_attempts":1}`)
		fail := func() {
			t.Helper()
			if _, err := f.store.Jobs().ClaimNext(context.Background(), "w1"); err != nil {
				t.Fatalf("claim: %v", err)
			}
			if _, err := f.store.Jobs().Complete(context.Background(), job.ID, "w1", model.Failed("boom")); err != nil {
				t.Fatalf("complete: %v", err)
			}
		}
		fail()
		if rec := f.do(t, http.MethodPost, "/api/v1/jobs/"+job.ID+"/retry", ""); rec.Code != http.StatusOK {
			t.Fatalf("first retry: want 200, got %d", rec.Code)
		}
		fail()

		rec := f.do(t, http.MethodPost, "/api/v1/jobs/"+job.ID+"/retry", "")
		if rec.Code != http.StatusConflict {
			t.Fatalf("want 409, got %d", rec.Code)
		}
		if code := errorCode(t, rec); code != apiv1.CodeAttemptsExhausted {
			t.Errorf("want attempts_exhausted, got %s", code)
		}
	})

	t.Run("should 404 unknown jobs", func(t *testing.T) {
		f := newFixture(t, apiv1.Options{})
		rec := f.do(t, http.MethodGet, "/api/v1/jobs/missing", "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("want 404, got %d", rec.Code)
		}
	})
}

func TestJobs_List(t *testing.T) {
	f := newFixture(t, apiv1.Options{})
	first := f.enqueue(t, "")
	f.enqueue(t, "")
	if rec := f.do(t, http.MethodPost, "/api/v1/jobs/"+first.ID+"/cancel", ""); rec.Code != http.StatusOK {
		t.Fatalf("cancel: %d", rec.Code)
	}

	t.Run("should filter by status", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/projects/p1/jobs?status=canceled", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", rec.Code)
		}
		var body apiv1.JobList
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Items) != 1 || body.Items[0].ID != first.ID {
			t.Fatalf("unexpected items: %+v", body.Items)
		}
	})

	t.Run("should list across projects", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/jobs?limit=10", "")
		var body apiv1.JobList
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Items) != 2 {
			t.Fatalf("want 2 jobs, got %d", len(body.Items))
		}
	})

	t.Run("should reject unknown status and bad paging", func(t *testing.T) {
		if rec := f.do(t, http.MethodGet, "/api/v1/jobs?status=bogus", ""); rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("want 422, got %d", rec.Code)
		}
		if rec := f.do(t, http.MethodGet, "/api/v1/jobs?limit=-1", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("want 400, got %d", rec.Code)
		}
	})

	t.Run("should expose queue stats", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/stats", "")
		var body apiv1.StatsResponse
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.ByStatus["queued"] != 1 || body.ByStatus["canceled"] != 1 {
			t.Errorf("unexpected stats: %+v", body.ByStatus)
		}
	})
}

func TestRuns(t *testing.T) {
	t.Run("should run synchronously with the request knobs", func(t *testing.T) {
		f := newFixture(t, apiv1.Options{DefaultRunItems: 2})
		var got usecase.RunRequest
		f.engine.RunFunc = func(ctx context.Context, req usecase.RunRequest) (*model.RunOutcome, error) {
			got = req
			return &model.RunOutcome{ProjectID: req.ProjectID, ProcessedItems: 1}, nil
		}
		rec := f.do(t, http.MethodPost, "/api/v1/projects/p1/runs", `{"max_items":0,"provider":"rule_based"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d, body=%s", rec.Code, rec.Body.String())
		}
		if got.MaxItems != 0 || got.Provider != "rule_based" || got.ProjectID != "p1" {
			t.Errorf("unexpected request: %+v", got)
		}

		rec = f.do(t, http.MethodPost, "/api/v1/projects/p1/runs", "")
		if rec.Code != http.StatusOK || got.MaxItems != 2 {
			t.Errorf("expected default max items 2, got %d (status %d)", got.MaxItems, rec.Code)
		}
	})

	t.Run("should map a busy project to project_busy", func(t *testing.T) {
		f := newFixture(t, apiv1.Options{})
		f.engine.RunFunc = func(context.Context, usecase.RunRequest) (*model.RunOutcome, error) {
			return nil, domain.ErrProjectBusy
		}
		rec := f.do(t, http.MethodPost, "/api/v1/projects/p1/runs", `{}`)
		if rec.Code != http.StatusConflict {
			t.Fatalf("want 409, got %d", rec.Code)
		}
		if code := errorCode(t, rec); code != apiv1.CodeProjectBusy {
			t.Errorf("want project_busy, got %s", code)
		}
	})

	t.Run("should bound the run with the sync timeout", func(t *testing.T) {
		f := newFixture(t, apiv1.Options{SyncRunTimeout: 20 * time.Millisecond})
		f.engine.RunFunc = func(ctx context.Context, _ usecase.RunRequest) (*model.RunOutcome, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		rec := f.do(t, http.MethodPost, "/api/v1/projects/p1/runs", `{}`)
		if rec.Code != http.StatusGatewayTimeout {
			t.Fatalf("want 504, got %d", rec.Code)
		}
	})
}

func TestProjects(t *testing.T) {
	t.Run("should patch the policy", func(t *testing.T) {
		f := newFixture(t, apiv1.Options{})
		rec := f.do(t, http.MethodPut, "/api/v1/projects/p1/policy", `{"auto_merge":false,"min_review_approvals":2}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d, body=%s", rec.Code, rec.Body.String())
		}
		var p model.Policy
		if err := json.NewDecoder(rec.Body).Decode(&p); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if p.AutoMerge || p.MinReviewApprovals != 2 || !p.AutoReview {
			t.Errorf("unexpected policy: %+v", p)
		}
	})

	t.Run("should reject an invalid policy", func(t *testing.T) {
		f := newFixture(t, apiv1.Options{})
		rec := f.do(t, http.MethodPut, "/api/v1/projects/p1/policy", `{"min_review_approvals":5}`)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("want 422, got %d", rec.Code)
		}
	})

	t.Run("should list registered projects", func(t *testing.T) {
		f := newFixture(t, apiv1.Options{})
		rec := f.do(t, http.MethodGet, "/api/v1/projects", "")
		var body apiv1.ProjectList
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Items) != 1 || body.Items[0].DefaultBranch != "main" {
			t.Fatalf("unexpected projects: %+v", body.Items)
		}
	})

	t.Run("should require a body to register", func(t *testing.T) {
		f := newFixture(t, apiv1.Options{})
		if rec := f.do(t, http.MethodPut, "/api/v1/projects/p2", ""); rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d", rec.Code)
		}
	})

	t.Run("should accept objectives", func(t *testing.T) {
		f := newFixture(t, apiv1.Options{})
		rec := f.do(t, http.MethodPost, "/api/v1/projects/p1/objectives", `{"text":"Add login. Add logout."}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("want 201, got %d, body=%s", rec.Code, rec.Body.String())
		}
		var obj model.Objective
		if err := json.NewDecoder(rec.Body).Decode(&obj); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if obj.MaxWorkItems != model.DefaultObjectiveWorkItems || obj.CreatedBy != "api" {
			t.Errorf("unexpected objective: %+v", obj)
		}
	})
}
