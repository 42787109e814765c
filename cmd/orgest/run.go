package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eargollo/orgest/internal/job"
	"github.com/eargollo/orgest/internal/pipeline"
	"github.com/eargollo/orgest/internal/stage"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var noOptimize bool

	cmd := &cobra.Command{
		Use:   "run [ROOT]",
		Short: "Run the full pipeline on ROOT in the foreground",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := ctx.resolveRoot(args)
			if err != nil {
				return err
			}
			withOptimize := ctx.config.OptimizeEnabled() && !noOptimize
			return ctx.runForeground(cmd, root, stage.Default(withOptimize))
		},
	}
	cmd.Flags().BoolVar(&noOptimize, "no-optimize", false, "Skip the media optimization stage")
	return cmd
}

// runForeground starts a recorded job and blocks until it settles,
// printing progress and a summary table.
func (c *commandContext) runForeground(cmd *cobra.Command, root string, stages []stage.Stage) error {
	cfg := c.config
	database, err := c.openDB(cmd.Context())
	if err != nil {
		return err
	}
	defer database.Close()

	runCtx, kill := context.WithCancel(cmd.Context())
	defer kill()

	mgr := job.NewManager(database, c.stageEnv(), cfg.LockDir())
	printer := newProgressPrinter(cmd.ErrOrStderr(), c.logger())
	active, err := mgr.Start(runCtx, job.Request{Root: root, Stages: stages, TriggeredBy: "cli", Observer: printer.observe})
	if err != nil {
		return err
	}

	stop := watchInterrupts(mgr, kill, c.logger())
	final, runErr := active.Wait(context.Background())
	stop()

	fmt.Fprintln(cmd.OutOrStdout(), renderResults(final))
	switch final.Status {
	case pipeline.StatusFailed:
		if runErr == nil {
			runErr = errors.New(final.Error)
		}
		return runErr
	case pipeline.StatusCancelled:
		fmt.Fprintln(cmd.OutOrStdout(), "Job cancelled.")
		return context.Canceled
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Job %s finished in %s.\n", active.ID, final.FinishedAt.Sub(final.StartedAt).Round(time.Millisecond))
	return nil
}

// watchInterrupts asks the job to stop on the first interrupt and kills
// running subprocesses on the second. The returned func stops watching.
func watchInterrupts(mgr *job.Manager, kill context.CancelFunc, log *slog.Logger) func() {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		n := 0
		for {
			select {
			case <-sigs:
				n++
				if n == 1 {
					log.Warn("interrupt received, stopping after the current file (interrupt again to abort)")
					if _, err := mgr.Cancel(); err != nil && !errors.Is(err, job.ErrNoActiveJob) {
						log.Error("cancel job", "error", err)
					}
					continue
				}
				log.Warn("second interrupt, aborting")
				kill()
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}
