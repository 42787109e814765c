// Package job runs pipelines in the background, one at a time, and keeps
// their history in SQLite.
package job

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/eargollo/orgest/internal/logging"
	"github.com/eargollo/orgest/internal/pipeline"
	"github.com/eargollo/orgest/internal/stage"
)

var (
	// ErrAlreadyRunning is returned when a job is started while one is in progress.
	ErrAlreadyRunning = errors.New("a job is already in progress")
	// ErrNoActiveJob is returned when cancel is called with no job running.
	ErrNoActiveJob = errors.New("no job is currently running")
	// ErrRootBusy is returned when another process holds the root's lock.
	ErrRootBusy = errors.New("root is being processed by another orgest process")
	// ErrNoStages is returned for a request without stages.
	ErrNoStages = errors.New("no stages requested")
	// ErrInvalidRoot is returned when the root is missing or not a directory.
	ErrInvalidRoot = errors.New("invalid root")
)

// Request describes a job to start.
type Request struct {
	Root        string
	Stages      []stage.Stage
	TriggeredBy string
	// Observer, when set, also receives every state snapshot.
	Observer pipeline.Observer
}

// ActiveJob is a running (or just finished) job. It is safe for concurrent use.
type ActiveJob struct {
	ID          string
	Root        string
	TriggeredBy string
	StartedAt   time.Time

	token *stage.Token
	done  chan struct{}

	mu    sync.Mutex
	state pipeline.State
	err   error
}

// State returns the latest snapshot.
func (a *ActiveJob) State() pipeline.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Done is closed once the job has finished and its record is final.
func (a *ActiveJob) Done() <-chan struct{} { return a.done }

// Wait blocks until the job finishes or ctx is done.
func (a *ActiveJob) Wait(ctx context.Context) (pipeline.State, error) {
	select {
	case <-a.done:
	case <-ctx.Done():
		return a.State(), ctx.Err()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state, a.err
}

func (a *ActiveJob) observe(s pipeline.State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Manager enforces a single-active-job invariant and exposes start/cancel.
// It is safe for concurrent use.
type Manager struct {
	db      *sql.DB
	env     stage.Env
	lockDir string
	log     *slog.Logger

	mu     sync.Mutex
	active *ActiveJob
}

// NewManager creates a Manager. env is the template every job's stage
// environment is copied from; its Root is replaced per request.
func NewManager(db *sql.DB, env stage.Env, lockDir string) *Manager {
	log := env.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Manager{db: db, env: env, lockDir: lockDir, log: log}
}

// Start launches an asynchronous job. parentCtx bounds subprocesses the
// stages spawn; cancelling it is meant for shutdown, use Cancel to stop a
// job cleanly.
func (m *Manager) Start(parentCtx context.Context, req Request) (*ActiveJob, error) {
	if len(req.Stages) == 0 {
		return nil, ErrNoStages
	}
	root, err := filepath.Abs(req.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	if info, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("%w: %q is not a directory", ErrInvalidRoot, root)
	}
	if req.TriggeredBy == "" {
		req.TriggeredBy = "manual"
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil, ErrAlreadyRunning
	}

	lock, err := m.lockRoot(root)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(req.Stages))
	for i, st := range req.Stages {
		names[i] = st.Name()
	}

	// Create the record now so the ID is available to the caller before
	// the goroutine begins executing.
	aj := &ActiveJob{
		ID:          uuid.NewString(),
		Root:        root,
		TriggeredBy: req.TriggeredBy,
		StartedAt:   time.Now(),
		token:       stage.NewToken(),
		done:        make(chan struct{}),
	}
	rec := Record{ID: aj.ID, Root: root, Stages: names, TriggeredBy: req.TriggeredBy, Status: pipeline.StatusRunning, StartedAt: aj.StartedAt}
	if err := insertJob(m.db, rec); err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("create job record: %w", err)
	}
	aj.state = pipeline.State{JobID: aj.ID, Root: root, Status: pipeline.StatusRunning, Stages: len(names), StartedAt: aj.StartedAt}
	m.active = aj

	env := m.env
	env.Root = root
	env.Logger = m.log
	env.Report = m.reporter(aj.ID, m.env.Report)

	observer := func(s pipeline.State) {
		aj.observe(s)
		if req.Observer != nil {
			req.Observer(s)
		}
	}

	go func() {
		final, err := pipeline.Run(parentCtx, pipeline.Job{
			ID:       aj.ID,
			Stages:   req.Stages,
			Token:    aj.token,
			Env:      env,
			Observer: observer,
		})
		if ferr := finishJob(m.db, final); ferr != nil {
			m.log.Error("cannot record job result", "job", aj.ID, "error", ferr)
		}
		if uerr := lock.Unlock(); uerr != nil {
			m.log.Warn("cannot release root lock", "path", lock.Path(), "error", uerr)
		}

		aj.mu.Lock()
		aj.state, aj.err = final, err
		aj.mu.Unlock()

		m.mu.Lock()
		m.active = nil
		m.mu.Unlock()
		close(aj.done)
	}()

	return aj, nil
}

// Cancel asks the running job to stop after its current item. Returns
// ErrNoActiveJob if idle.
func (m *Manager) Cancel() (*ActiveJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return nil, ErrNoActiveJob
	}
	m.active.token.Cancel()
	m.log.Info("job cancellation requested", "job", m.active.ID)
	return m.active, nil
}

// Active returns the running job, or nil when idle.
func (m *Manager) Active() *ActiveJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// lockRoot takes an exclusive file lock keyed by root so that two
// processes never work the same tree.
func (m *Manager) lockRoot(root string) (*flock.Flock, error) {
	if err := os.MkdirAll(m.lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	sum := sha256.Sum256([]byte(root))
	lock := flock.New(filepath.Join(m.lockDir, hex.EncodeToString(sum[:8])+".lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire root lock: %w", err)
	}
	if !ok {
		return nil, ErrRootBusy
	}
	return lock, nil
}

// reporter persists per-item errors and forwards them to next.
func (m *Manager) reporter(jobID string, next func(path, stage, msg string)) func(path, stage, msg string) {
	return func(path, stg, msg string) {
		if err := insertItemError(m.db, jobID, stg, path, msg); err != nil {
			m.log.Warn("cannot record item error", "job", jobID, "path", path, "error", err)
		}
		if next != nil {
			next(path, stg, msg)
		}
	}
}
