package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eargollo/orgest/internal/config"
	"github.com/eargollo/orgest/internal/job"
	"github.com/eargollo/orgest/internal/stage"
)

// JobsHandler handles job-related API endpoints.
type JobsHandler struct {
	DB      *sql.DB
	Manager *job.Manager
	Cfg     *config.Config
	// BaseCtx bounds the subprocesses of jobs started over HTTP. The
	// request context cannot be used since it ends with the response.
	BaseCtx context.Context
}

type createJobRequest struct {
	Root      string   `json:"root"`
	Stages    []string `json:"stages"`
	Optimize  *bool    `json:"optimize"`
	PerFolder int      `json:"per_folder"`
}

// Create handles POST /api/jobs: starts a pipeline in the background.
func (h *JobsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	if req.Root == "" && h.Cfg != nil {
		req.Root = h.Cfg.Root
	}
	if req.Root == "" {
		writeError(w, http.StatusBadRequest, "ROOT_REQUIRED", "No root given and none configured")
		return
	}
	optimize := h.Cfg == nil || h.Cfg.OptimizeEnabled()
	if req.Optimize != nil {
		optimize = *req.Optimize
	}

	stages, err := stage.Build(req.Stages, optimize, stage.Options{PerFolder: req.PerFolder})
	if err != nil {
		writeError(w, http.StatusBadRequest, "UNKNOWN_STAGE", err.Error())
		return
	}

	ctx := h.BaseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	active, err := h.Manager.Start(ctx, job.Request{Root: req.Root, Stages: stages, TriggeredBy: "api"})
	switch {
	case errors.Is(err, job.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "JOB_ALREADY_RUNNING", "A job is already in progress")
		return
	case errors.Is(err, job.ErrRootBusy):
		writeError(w, http.StatusConflict, "ROOT_BUSY", err.Error())
		return
	case errors.Is(err, job.ErrInvalidRoot):
		writeError(w, http.StatusBadRequest, "INVALID_ROOT", err.Error())
		return
	case err != nil:
		slog.Error("jobs: start", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to start job")
		return
	}

	names := make([]string, len(stages))
	for i, st := range stages {
		names[i] = st.Name()
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":           active.ID,
		"status":       "running",
		"root":         active.Root,
		"stages":       names,
		"started_at":   active.StartedAt.UTC().Format(time.RFC3339),
		"triggered_by": active.TriggeredBy,
	})
}

// Cancel handles DELETE /api/jobs/current. The job stops after the file
// it is working on, so the response only confirms the request.
func (h *JobsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	active, err := h.Manager.Cancel()
	if errors.Is(err, job.ErrNoActiveJob) {
		writeError(w, http.StatusNotFound, "NO_ACTIVE_JOB", "No job is currently running")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":         active.ID,
		"status":     "cancelling",
		"started_at": active.StartedAt.UTC().Format(time.RFC3339),
	})
}

// List handles GET /api/jobs: job history, newest first.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	items, total, err := job.List(r.Context(), h.DB, limit, offset)
	if err != nil {
		slog.Error("jobs list", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[job.Record]{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// Get handles GET /api/jobs/{id}.
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := job.Get(r.Context(), h.DB, chi.URLParam(r, "id"))
	if errors.Is(err, job.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
