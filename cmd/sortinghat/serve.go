package main

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/sortinghat/config"
	"github.com/Ramsey-B/sortinghat/pkg/middleware"
	"github.com/Ramsey-B/sortinghat/pkg/routes/health"
	"github.com/Ramsey-B/sortinghat/pkg/scheduler"
	"github.com/Ramsey-B/sortinghat/pkg/server"
)

// setup loads config and the logger shared by every command.
func setup() (*config.Config, ectologger.Logger, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, flush, err := newLogger(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, flush, nil
}

func newServeCmd() *cobra.Command {
	var withWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), withWorker)
		},
	}
	cmd.Flags().BoolVar(&withWorker, "worker", false, "Also run the scheduled task executor in this process")
	return cmd
}

func runServe(ctx context.Context, withWorker bool) error {
	cfg, logger, flush, err := setup()
	if err != nil {
		return err
	}
	defer flush()

	a := newApp(cfg, logger, appOptions{recovery: cfg.UnifyRecoveryHome != ""})
	if err := a.Start(ctx); err != nil {
		return err
	}
	defer stopWithTimeout(cfg, logger, "app", a.Stop)

	var auth echo.MiddlewareFunc
	if cfg.AuthEnabled {
		if auth, err = middleware.Authentication(ctx, logger, cfg.AuthIssuerURL, cfg.AuthClientID); err != nil {
			return err
		}
	}

	checker := health.NewChecker(cfg.Version, a.checks...)
	srv := server.New(server.Config{
		AppName:      cfg.AppName,
		Port:         cfg.Port,
		UnifyLockTTL: cfg.RedisLockTTL,
	}, server.Dependencies{
		Registry:    a.registry,
		Recommender: a.recommender,
		Unifier:     a.unifier,
		Locker:      a.locker,
		Health:      checker,
		Auth:        auth,
	}, logger)

	if err := srv.Start(ctx); err != nil {
		return err
	}
	defer stopWithTimeout(cfg, logger, "server", srv.Stop)

	if withWorker && cfg.SchedulerEnabled {
		exec := newExecutor(a)
		if err := exec.Start(ctx); err != nil {
			return err
		}
		defer stopWithTimeout(cfg, logger, "scheduler", exec.Stop)
	}

	checker.SetReady(true)
	logger.WithField("port", cfg.Port).Info("sortinghat is ready")

	<-ctx.Done()
	checker.SetReady(false)
	logger.Info("Shutting down")
	return nil
}

func newExecutor(a *app) *scheduler.Executor {
	exec := scheduler.NewExecutor(a.registry, a.locker, scheduler.Config{
		PollInterval: a.cfg.SchedulerPollInterval,
		LockTTL:      a.cfg.RedisLockTTL,
	}, a.logger)
	scheduler.RegisterJobs(exec, a.recommender, a.unifier)
	return exec
}

func stopWithTimeout(cfg *config.Config, logger ectologger.Logger, name string, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.WithError(err).Errorf("Failed to stop %s", name)
	}
}
