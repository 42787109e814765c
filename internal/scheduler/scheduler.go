// Package scheduler triggers pipeline runs on a cron schedule.
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/eargollo/orgest/internal/logging"
)

// Scheduler wraps robfig/cron and tracks the next scheduled run. While
// paused, ticks are skipped but the entry is kept.
type Scheduler struct {
	mu       sync.RWMutex
	c        *cron.Cron
	entryID  cron.EntryID
	cronExpr string
	paused   bool
	log      *slog.Logger
}

// New creates a stopped Scheduler. Call Start to activate it.
func New(log *slog.Logger) *Scheduler {
	if log == nil {
		log = logging.Discard()
	}
	return &Scheduler{
		c:   cron.New(),
		log: log.With("component", "scheduler"),
	}
}

// SetJob replaces the current cron job with the given expression and
// callback. An empty expression only removes the current job. If the
// scheduler is already running, the new job takes effect immediately.
func (s *Scheduler) SetJob(expr string, fn func()) error {
	if expr != "" {
		if _, err := cron.ParseStandard(expr); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", expr, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID != 0 {
		s.c.Remove(s.entryID)
		s.entryID = 0
	}
	s.cronExpr = expr
	if expr == "" {
		s.log.Info("job cleared")
		return nil
	}

	id, err := s.c.AddFunc(expr, func() { s.fire(fn) })
	if err != nil {
		return err
	}
	s.entryID = id
	s.log.Info("job set", "cron", expr)
	return nil
}

func (s *Scheduler) fire(fn func()) {
	if s.Paused() {
		s.log.Info("tick skipped, schedule paused")
		return
	}
	s.log.Info("scheduled run triggered")
	fn()
}

// SetPaused pauses or resumes the schedule.
func (s *Scheduler) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// Paused reports whether ticks are being skipped.
func (s *Scheduler) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// Start begins the cron loop.
func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop halts the cron loop and waits for a running callback to return.
func (s *Scheduler) Stop() {
	<-s.c.Stop().Done()
}

// NextRunAt returns the next scheduled time, or nil if no job is set,
// the scheduler is not started or it is paused.
func (s *Scheduler) NextRunAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.entryID == 0 || s.paused {
		return nil
	}
	entry := s.c.Entry(s.entryID)
	if entry.ID == 0 || entry.Next.IsZero() {
		return nil
	}
	t := entry.Next
	return &t
}

// CronExpr returns the current cron expression.
func (s *Scheduler) CronExpr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cronExpr
}
