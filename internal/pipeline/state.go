package pipeline

import (
	"time"

	"github.com/eargollo/orgest/internal/stage"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// StageResult is the recorded outcome of one stage of a job.
type StageResult struct {
	Index   int          `json:"index"`
	Name    string       `json:"name"`
	Title   string       `json:"title"`
	Outcome string       `json:"outcome"`
	Counts  stage.Counts `json:"counts,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// State is a point-in-time view of a job. Observers receive copies, so
// they may keep them.
type State struct {
	JobID      string        `json:"job_id"`
	Root       string        `json:"root"`
	Status     Status        `json:"status"`
	Stage      int           `json:"stage"` // 1-based; 0 before the first stage
	StageName  string        `json:"stage_name,omitempty"`
	StageTitle string        `json:"stage_title,omitempty"`
	Stages     int           `json:"stages"`
	Current    int           `json:"current"`
	Total      int           `json:"total"`
	Label      string        `json:"label,omitempty"`
	Fraction   float64       `json:"fraction"`
	Results    []StageResult `json:"results"`
	Error      string        `json:"error,omitempty"`
	Settled    bool          `json:"settled"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitzero"`

	err error
}

// Err returns the error that ended the job, if any.
func (s State) Err() error { return s.err }

// Done reports whether the job has reached a terminal status.
func (s State) Done() bool { return s.Status != StatusRunning }

func (s State) clone() State {
	c := s
	c.Results = make([]StageResult, len(s.Results))
	copy(c.Results, s.Results)
	return c
}

// Observer receives state snapshots. It is called on the job goroutine
// and must not block for long.
type Observer func(State)
