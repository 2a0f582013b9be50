package apiv1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"agent-hub/internal/domain/model"
	"agent-hub/internal/domain/ports/repository"
	"agent-hub/internal/infra/logging"
	"agent-hub/internal/usecase"
)

// Options tunes handler behavior.
type Options struct {
	// SyncRunTimeout bounds POST /projects/{id}/runs. Zero means no bound
	// beyond the request context.
	SyncRunTimeout time.Duration
	// DefaultRunItems is used when a synchronous run omits max_items.
	DefaultRunItems int
}

// Server implements the /api/v1 management surface.
type Server struct {
	jobs       usecase.JobUseCase
	projects   usecase.ProjectUseCase
	objectives usecase.ObjectiveUseCase
	opts       Options
	log        *zerolog.Logger
}

func NewServer(
	jobs usecase.JobUseCase,
	projects usecase.ProjectUseCase,
	objectives usecase.ObjectiveUseCase,
	opts Options,
	logger *zerolog.Logger,
) *Server {
	if opts.DefaultRunItems <= 0 {
		opts.DefaultRunItems = 3
	}
	l := logger.With().Str("component", "apiv1").Logger()
	return &Server{jobs: jobs, projects: projects, objectives: objectives, opts: opts, log: &l}
}

// RegisterAPIV1 mounts every route under /api/v1 on r.
func RegisterAPIV1(r chi.Router, s *Server) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", s.getStats)

		r.Get("/projects", s.listProjects)
		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Put("/", s.registerProject)
			r.Get("/", s.getProject)
			r.Get("/policy", s.getPolicy)
			r.Put("/policy", s.updatePolicy)
			r.Post("/jobs", s.enqueueJob)
			r.Get("/jobs", s.listProjectJobs)
			r.Post("/runs", s.runProject)
			r.Post("/objectives", s.submitObjective)
		})

		r.Get("/jobs", s.listJobs)
		r.Route("/jobs/{jobID}", func(r chi.Router) {
			r.Get("/", s.getJob)
			r.Post("/cancel", s.cancelJob)
			r.Post("/retry", s.retryJob)
		})
	})
}

// ===== request/response shapes =====

type RegisterProjectRequest struct {
	Name              string `json:"name"`
	RepoURL           string `json:"repo_url"`
	DefaultBranch     string `json:"default_branch"`
	ValidationCommand string `json:"validation_command"`
}

type PolicyPatch struct {
	AutoTriage         *bool `json:"auto_triage"`
	AutoAssign         *bool `json:"auto_assign"`
	AutoReview         *bool `json:"auto_review"`
	AutoMerge          *bool `json:"auto_merge"`
	MinReviewApprovals *int  `json:"min_review_approvals"`
	RequireTestCmd     *bool `json:"require_test_cmd"`
}

type EnqueueJobRequest struct {
	MaxItems    int    `json:"max_items"`
	MaxAttempts int    `json:"max_attempts"`
	RequestedBy string `json:"requested_by"`
	Provider    string `json:"provider"`
}

type RunRequest struct {
	MaxItems *int   `json:"max_items"`
	Provider string `json:"provider"`
}

type SubmitObjectiveRequest struct {
	Text         string `json:"text"`
	MaxWorkItems int    `json:"max_work_items"`
}

type JobList struct {
	Items []*model.Job `json:"items"`
}

type ProjectList struct {
	Items []*model.Project `json:"items"`
}

type StatsResponse struct {
	ByStatus               map[string]int `json:"by_status"`
	OldestQueuedAgeSeconds float64        `json:"oldest_queued_age_seconds"`
}

// ===== projects =====

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	items, err := s.projects.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if items == nil {
		items = []*model.Project{}
	}
	writeJSON(w, http.StatusOK, ProjectList{Items: items})
}

func (s *Server) registerProject(w http.ResponseWriter, r *http.Request) {
	var req RegisterProjectRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := s.projects.Register(r.Context(), usecase.RegisterProjectParams{
		ID:                chi.URLParam(r, "projectID"),
		Name:              req.Name,
		RepoURL:           req.RepoURL,
		DefaultBranch:     req.DefaultBranch,
		ValidationCommand: req.ValidationCommand,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.projects.Get(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) getPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := s.projects.Policy(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) updatePolicy(w http.ResponseWriter, r *http.Request) {
	var patch PolicyPatch
	if !decode(w, r, &patch) {
		return
	}
	ctx := r.Context()
	p, err := s.projects.Policy(ctx, chi.URLParam(r, "projectID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	patch.apply(p)
	p.UpdatedAt = time.Now().UTC()
	if err := s.projects.UpdatePolicy(ctx, p); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (pp PolicyPatch) apply(p *model.Policy) {
	if pp.AutoTriage != nil {
		p.AutoTriage = *pp.AutoTriage
	}
	if pp.AutoAssign != nil {
		p.AutoAssign = *pp.AutoAssign
	}
	if pp.AutoReview != nil {
		p.AutoReview = *pp.AutoReview
	}
	if pp.AutoMerge != nil {
		p.AutoMerge = *pp.AutoMerge
	}
	if pp.MinReviewApprovals != nil {
		p.MinReviewApprovals = *pp.MinReviewApprovals
	}
	if pp.RequireTestCmd != nil {
		p.RequireTestCmd = *pp.RequireTestCmd
	}
}

func (s *Server) submitObjective(w http.ResponseWriter, r *http.Request) {
	var req SubmitObjectiveRequest
	if !decode(w, r, &req) {
		return
	}
	obj, err := s.objectives.Submit(r.Context(), usecase.SubmitObjectiveParams{
		ProjectID:    chi.URLParam(r, "projectID"),
		Text:         req.Text,
		MaxWorkItems: req.MaxWorkItems,
		CreatedBy:    Principal(r.Context()),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, obj)
}

// ===== jobs =====

func (s *Server) enqueueJob(w http.ResponseWriter, r *http.Request) {
	var req EnqueueJobRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	if req.RequestedBy == "" {
		req.RequestedBy = Principal(r.Context())
	}
	job, err := s.jobs.Enqueue(r.Context(), usecase.EnqueueParams{
		ProjectID:   chi.URLParam(r, "projectID"),
		MaxItems:    req.MaxItems,
		MaxAttempts: req.MaxAttempts,
		RequestedBy: req.RequestedBy,
		Provider:    req.Provider,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/jobs/"+job.ID)
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) listProjectJobs(w http.ResponseWriter, r *http.Request) {
	s.writeJobs(w, r, chi.URLParam(r, "projectID"))
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	s.writeJobs(w, r, r.URL.Query().Get("project_id"))
}

func (s *Server) writeJobs(w http.ResponseWriter, r *http.Request, projectID string) {
	q := r.URL.Query()
	limit, err1 := queryInt(q.Get("limit"))
	offset, err2 := queryInt(q.Get("offset"))
	if err := errors.Join(err1, err2); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidArgument, err.Error())
		return
	}
	items, err := s.jobs.List(r.Context(), repository.JobFilter{
		ProjectID: projectID,
		Status:    model.JobStatus(q.Get("status")),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if items == nil {
		items = []*model.Job{}
	}
	writeJSON(w, http.StatusOK, JobList{Items: items})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Cancel(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) retryJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Retry(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) runProject(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	maxItems := s.opts.DefaultRunItems
	if req.MaxItems != nil {
		maxItems = *req.MaxItems
	}
	ctx := r.Context()
	if s.opts.SyncRunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.SyncRunTimeout)
		defer cancel()
	}
	out, err := s.jobs.RunSynchronously(ctx, chi.URLParam(r, "projectID"), maxItems, req.Provider)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.jobs.Stats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := StatsResponse{ByStatus: map[string]int{}}
	for status, n := range st.ByStatus {
		resp.ByStatus[string(status)] = n
	}
	resp.OldestQueuedAgeSeconds = st.OldestQueuedAge(time.Now()).Seconds()
	writeJSON(w, http.StatusOK, resp)
}

// ===== helpers =====

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	l := logging.With(r.Context(), s.log)
	if status >= http.StatusInternalServerError {
		l.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, status, code, http.StatusText(status))
		return
	}
	l.Debug().Err(err).Str("code", code).Msg("request rejected")
	writeError(w, status, code, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		writeError(w, http.StatusBadRequest, CodeInvalidArgument, "missing request body")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		msg := "invalid request body"
		if errors.Is(err, io.EOF) {
			msg = "missing request body"
		}
		writeError(w, http.StatusBadRequest, CodeInvalidArgument, msg)
		return false
	}
	return true
}

// decodeOptional accepts an empty body and leaves v at its zero value.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, CodeInvalidArgument, "invalid request body")
		return false
	}
	return true
}

func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("expected a non-negative integer, got %q", v)
	}
	return n, nil
}
