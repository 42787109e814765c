// Package pipeline runs an ordered list of stages as one job.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eargollo/orgest/internal/logging"
	"github.com/eargollo/orgest/internal/stage"
)

// ErrUnexpected wraps a panic recovered while a job was running.
var ErrUnexpected = errors.New("unexpected failure")

// StageError identifies which stage stopped a job.
type StageError struct {
	Index int // 1-based
	Name  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Job describes one pipeline run.
type Job struct {
	ID     string
	Stages []stage.Stage
	Token  *stage.Token
	// Env is copied for every stage; Progress and Cancel are replaced.
	Env      stage.Env
	Observer Observer
}

// Run executes the job's stages in order and returns the final state.
// It stops at the first failed or cancelled stage. The observer always
// receives a final snapshot with Settled set, even after a panic.
func Run(ctx context.Context, job Job) (final State, err error) {
	log := job.Env.Logger
	if log == nil {
		log = logging.Discard()
	}
	log = log.With("job", job.ID)
	if job.Token == nil {
		job.Token = stage.NewToken()
	}

	r := &runner{
		job: job,
		log: log,
		state: State{
			JobID:     job.ID,
			Root:      job.Env.Root,
			Status:    StatusRunning,
			Stages:    len(job.Stages),
			Results:   []StageResult{},
			StartedAt: time.Now(),
		},
	}

	defer func() {
		if p := recover(); p != nil {
			logging.Critical(log, "job crashed", "panic", p, "stage", r.state.StageName)
			r.finish(StatusFailed, fmt.Errorf("%w: %v", ErrUnexpected, p))
		}
		r.state.Settled = true
		r.emit()
		final, err = r.state.clone(), r.state.err
	}()

	log.Info("job started", "root", job.Env.Root, "stages", len(job.Stages))
	r.run(ctx)
	log.Info("job finished", "status", r.state.Status,
		"duration", r.state.FinishedAt.Sub(r.state.StartedAt).Round(time.Millisecond))
	return
}

type runner struct {
	job   Job
	log   *slog.Logger
	state State
}

func (r *runner) run(ctx context.Context) {
	n := len(r.job.Stages)
	r.emit()

	for i, st := range r.job.Stages {
		if r.job.Token.Cancelled() {
			r.log.Info("job cancelled before stage", "stage", st.Name())
			r.finish(StatusCancelled, nil)
			return
		}

		r.state.Stage = i + 1
		r.state.StageName = st.Name()
		r.state.StageTitle = st.Title()
		r.state.Current, r.state.Total, r.state.Label = 0, 0, ""
		r.setFraction(float64(i) / float64(n))
		r.emit()

		env := r.job.Env
		env.Cancel = r.job.Token
		env.Progress = stage.ProgressFunc(func(current, total int, label string) {
			r.state.Current, r.state.Total, r.state.Label = current, total, label
			frac := 0.0
			if total > 0 {
				frac = float64(current) / float64(total)
			}
			r.setFraction((float64(i) + frac) / float64(n))
			r.emit()
		})

		r.log.Info("stage started", "index", i+1, "stage", st.Name())
		started := time.Now()
		res := st.Run(ctx, &env)

		result := StageResult{Index: i + 1, Name: st.Name(), Title: st.Title(), Outcome: res.Outcome.String(), Counts: res.Counts}
		if res.Err != nil {
			result.Error = res.Err.Error()
		}
		r.state.Results = append(r.state.Results, result)
		r.log.Info("stage finished", "index", i+1, "stage", st.Name(), "outcome", res.Outcome,
			"counts", res.Counts, "duration", time.Since(started).Round(time.Millisecond))

		switch res.Outcome {
		case stage.Failed:
			err := &StageError{Index: i + 1, Name: st.Name(), Err: res.Err}
			r.log.Error("job failed", "error", err)
			r.finish(StatusFailed, err)
			return
		case stage.Cancelled:
			r.finish(StatusCancelled, nil)
			return
		}
	}

	r.setFraction(1)
	r.finish(StatusSucceeded, nil)
}

// setFraction never lets the global fraction move backwards.
func (r *runner) setFraction(f float64) {
	if f > 1 {
		f = 1
	}
	if f > r.state.Fraction {
		r.state.Fraction = f
	}
}

func (r *runner) finish(status Status, err error) {
	r.state.Status = status
	r.state.err = err
	if err != nil {
		r.state.Error = err.Error()
	}
	r.state.FinishedAt = time.Now()
}

// emit sends a snapshot unless the job already ended by cancellation and
// this is not the settled event.
func (r *runner) emit() {
	if r.job.Observer == nil {
		return
	}
	if r.state.Status == StatusCancelled && !r.state.Settled {
		return
	}
	r.job.Observer(r.state.clone())
}
