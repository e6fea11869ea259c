package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run scheduled tasks (affiliate, unify, genderize)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context())
		},
	}
}

func runWorker(ctx context.Context) error {
	cfg, logger, flush, err := setup()
	if err != nil {
		return err
	}
	defer flush()

	if !cfg.SchedulerEnabled {
		return errors.New("the scheduler is disabled (SCHEDULER_ENABLED=false)")
	}

	a := newApp(cfg, logger, appOptions{recovery: cfg.UnifyRecoveryHome != ""})
	if err := a.Start(ctx); err != nil {
		return err
	}
	defer stopWithTimeout(cfg, logger, "app", a.Stop)

	exec := newExecutor(a)
	if err := exec.Start(ctx); err != nil {
		return err
	}
	defer stopWithTimeout(cfg, logger, "scheduler", exec.Stop)

	logger.WithField("poll_interval", cfg.SchedulerPollInterval).Info("Worker started")
	<-ctx.Done()
	return nil
}
