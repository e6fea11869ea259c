package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
)

const checkTimeout = 5 * time.Second

// Check probes one dependency. Required checks make the service unhealthy
// when they fail; the others only degrade it.
type Check struct {
	Name     string
	Required bool
	Ping     func(ctx context.Context) error
}

// Checker handles health check endpoints
type Checker struct {
	checks    []Check
	version   string
	startTime time.Time
	ready     atomic.Bool
}

func NewChecker(version string, checks ...Check) *Checker {
	return &Checker{
		checks:    checks,
		version:   version,
		startTime: time.Now(),
	}
}

// SetReady sets the readiness state
func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

// RegisterRoutes registers health check endpoints
func (c *Checker) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/v1/health", c.Health)
	e.GET("/api/v1/health/live", c.Live)
	e.GET("/api/v1/health/ready", c.Ready)
}

type HealthStatus struct {
	Status     string                  `json:"status"`
	Version    string                  `json:"version"`
	Uptime     string                  `json:"uptime"`
	Checks     map[string]*CheckResult `json:"checks"`
	ReportedAt time.Time               `json:"reported_at"`
}

type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Health runs every check and reports the overall status
func (c *Checker) Health(ctx echo.Context) error {
	status := &HealthStatus{
		Status:     "healthy",
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		Checks:     make(map[string]*CheckResult, len(c.checks)),
		ReportedAt: time.Now(),
	}

	results := make([]*CheckResult, len(c.checks))
	var g errgroup.Group
	for i, check := range c.checks {
		g.Go(func() error {
			pingCtx, cancel := context.WithTimeout(ctx.Request().Context(), checkTimeout)
			defer cancel()
			start := time.Now()
			if err := check.Ping(pingCtx); err != nil {
				results[i] = &CheckResult{Status: "unhealthy", Message: err.Error()}
				return nil
			}
			results[i] = &CheckResult{Status: "healthy", Latency: time.Since(start).String()}
			return nil
		})
	}
	_ = g.Wait()

	for i, check := range c.checks {
		status.Checks[check.Name] = results[i]
		if results[i].Status == "healthy" {
			continue
		}
		switch {
		case check.Required:
			status.Status = "unhealthy"
		case status.Status == "healthy":
			status.Status = "degraded"
		}
	}

	httpStatus := http.StatusOK
	if status.Status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}

	return ctx.JSON(httpStatus, status)
}

// Live returns the liveness status (is the service running)
func (c *Checker) Live(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "alive"})
}

// Ready returns the readiness status (is the service ready to accept traffic)
func (c *Checker) Ready(ctx echo.Context) error {
	if c.ready.Load() {
		return ctx.JSON(http.StatusOK, map[string]string{"status": "ready"})
	}
	return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
}
