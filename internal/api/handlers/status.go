package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/eargollo/orgest/internal/job"
	"github.com/eargollo/orgest/internal/pipeline"
	"github.com/eargollo/orgest/internal/scheduler"
)

// StatusHandler handles GET /api/status.
type StatusHandler struct {
	DB      *sql.DB
	Manager *job.Manager
	Sched   *scheduler.Scheduler
	Version string
}

type statusResponse struct {
	Version         string          `json:"version"`
	ActiveJob       *pipeline.State `json:"active_job"`
	Schedule        scheduleInfo    `json:"schedule"`
	LastFinishedJob *job.Record     `json:"last_finished_job"`
}

type scheduleInfo struct {
	Cron      string     `json:"cron"`
	Paused    bool       `json:"paused"`
	NextRunAt *time.Time `json:"next_run_at"`
}

// ServeHTTP returns the system status as JSON.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Version: h.Version}

	if h.Manager != nil {
		if active := h.Manager.Active(); active != nil {
			st := active.State()
			resp.ActiveJob = &st
		}
	}
	if h.Sched != nil {
		resp.Schedule = scheduleInfo{
			Cron:      h.Sched.CronExpr(),
			Paused:    h.Sched.Paused(),
			NextRunAt: h.Sched.NextRunAt(),
		}
	}
	if h.DB != nil {
		last, err := job.LastFinished(r.Context(), h.DB)
		if err != nil {
			slog.Error("status: query last job", "error", err)
		}
		resp.LastFinishedJob = last
	}

	writeJSON(w, http.StatusOK, resp)
}
