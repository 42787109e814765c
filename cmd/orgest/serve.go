package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eargollo/orgest/internal/api"
	"github.com/eargollo/orgest/internal/job"
	"github.com/eargollo/orgest/internal/scheduler"
	"github.com/eargollo/orgest/internal/stage"
)

const drainTimeout = 30 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the job API and run scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.config
			log := ctx.logger()
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			log.Info("orgest starting",
				"version", version,
				"log_level", cfg.LogLevel,
				"http_addr", cfg.HTTPAddr,
				"db_path", cfg.DBPath,
				"root", cfg.Root)

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			database, err := ctx.openDB(runCtx)
			if err != nil {
				return err
			}
			defer database.Close()

			// Mark any jobs that were 'running' when the last process exited as failed.
			if err := job.MarkStaleJobsFailed(database); err != nil {
				log.Warn("mark stale jobs", "error", err)
			}

			// Jobs outlive the signal context so an interrupt can stop them
			// cleanly through the token before their subprocesses are killed.
			jobCtx, killJobs := context.WithCancel(context.WithoutCancel(cmd.Context()))
			defer killJobs()
			mgr := job.NewManager(database, ctx.stageEnv(), cfg.LockDir())

			sched := scheduler.New(log)
			if cfg.Schedule != "" {
				if err := sched.SetJob(cfg.Schedule, func() { startScheduled(jobCtx, ctx, mgr) }); err != nil {
					log.Warn("invalid cron expression", "expr", cfg.Schedule, "error", err)
				}
			}
			sched.SetPaused(cfg.SchedulePaused)
			sched.Start()
			defer sched.Stop()

			srv := api.New(jobCtx, cfg.HTTPAddr, database, cfg, mgr, sched, version, log)
			err = srv.Run(runCtx)

			drain(mgr, killJobs, ctx)
			log.Info("orgest stopped")
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides http_addr)")
	return cmd
}

func startScheduled(jobCtx context.Context, ctx *commandContext, mgr *job.Manager) {
	cfg := ctx.config
	log := ctx.logger()
	if cfg.Root == "" {
		log.Warn("scheduled run skipped, no root configured")
		return
	}
	_, err := mgr.Start(jobCtx, job.Request{Root: cfg.Root, Stages: stage.Default(cfg.OptimizeEnabled()), TriggeredBy: "schedule"})
	switch {
	case errors.Is(err, job.ErrAlreadyRunning), errors.Is(err, job.ErrRootBusy):
		log.Info("scheduled run skipped", "reason", err)
	case err != nil:
		log.Error("scheduled run start", "error", err)
	}
}

// drain cancels a running job and waits for it to settle, killing its
// subprocesses if it takes longer than drainTimeout.
func drain(mgr *job.Manager, kill context.CancelFunc, ctx *commandContext) {
	active, err := mgr.Cancel()
	if err != nil {
		return
	}
	waitCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if _, err := active.Wait(waitCtx); errors.Is(err, context.DeadlineExceeded) {
		ctx.logger().Warn("job did not stop in time, aborting", "job", active.ID)
		kill()
		<-active.Done()
	}
}
