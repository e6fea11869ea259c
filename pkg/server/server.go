// Package server assembles the HTTP API.
package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/sortinghat/pkg/middleware"
	"github.com/Ramsey-B/sortinghat/pkg/recommendation"
	"github.com/Ramsey-B/sortinghat/pkg/registry"
	"github.com/Ramsey-B/sortinghat/pkg/routes"
	"github.com/Ramsey-B/sortinghat/pkg/routes/audit"
	"github.com/Ramsey-B/sortinghat/pkg/routes/enrollment"
	"github.com/Ramsey-B/sortinghat/pkg/routes/exclusion"
	"github.com/Ramsey-B/sortinghat/pkg/routes/health"
	"github.com/Ramsey-B/sortinghat/pkg/routes/individual"
	"github.com/Ramsey-B/sortinghat/pkg/routes/organization"
	recroutes "github.com/Ramsey-B/sortinghat/pkg/routes/recommendation"
	"github.com/Ramsey-B/sortinghat/pkg/routes/task"
	"github.com/Ramsey-B/sortinghat/pkg/scheduler"
	"github.com/Ramsey-B/sortinghat/pkg/unify"
)

type Config struct {
	AppName string
	Port    int
	// UnifyLockTTL bounds how long a crashed unification run blocks others.
	UnifyLockTTL time.Duration
}

// Dependencies are the services the routes are served from. Auth is optional;
// without it the caller is taken from the X-User-ID header.
type Dependencies struct {
	Registry    *registry.Service
	Recommender *recommendation.Recommender
	Unifier     *unify.Unifier
	Locker      scheduler.Locker
	Health      *health.Checker
	Auth        echo.MiddlewareFunc
}

type Server struct {
	echo   *echo.Echo
	http   *http.Server
	logger ectologger.Logger
}

func New(cfg Config, deps Dependencies, logger ectologger.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = routes.NewValidator()
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	if deps.Health != nil {
		deps.Health.RegisterRoutes(e)
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	if deps.Auth != nil {
		api.Use(deps.Auth)
	}

	individual.Register(api, deps.Registry, logger)
	enrollment.Register(api, deps.Registry, logger)
	organization.Register(api, deps.Registry, logger)
	exclusion.Register(api, deps.Registry)
	task.Register(api.Group("/tasks"), deps.Registry, logger)
	audit.Register(api.Group("/transactions"), deps.Registry)

	if deps.Recommender != nil && deps.Unifier != nil {
		locker := deps.Locker
		if locker == nil {
			locker = scheduler.NewLocalLocker()
		}
		recroutes.Register(api, recroutes.NewHandler(deps.Recommender, deps.Unifier, locker, cfg.UnifyLockTTL, logger))
	}

	return &Server{
		echo: e,
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           e,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start binds the port and serves in the background. Errors after the
// listener is up are logged.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.http.Addr, err)
	}
	s.logger.WithField("addr", ln.Addr().String()).Info("HTTP server listening")

	go func() {
		if err := s.http.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("HTTP server stopped")
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
