package health

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, c *Checker, path string) (*httptest.ResponseRecorder, HealthStatus) {
	e := echo.New()
	c.RegisterRoutes(e)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var status HealthStatus
	if path == "/api/v1/health" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	}
	return rec, status
}

func ok(context.Context) error   { return nil }
func down(context.Context) error { return stderrors.New("connection refused") }

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		checks []Check
		code   int
		status string
	}{
		{"all healthy", []Check{{Name: "database", Required: true, Ping: ok}, {Name: "redis", Ping: ok}}, http.StatusOK, "healthy"},
		{"optional down", []Check{{Name: "database", Required: true, Ping: ok}, {Name: "kafka", Ping: down}}, http.StatusOK, "degraded"},
		{"required down", []Check{{Name: "database", Required: true, Ping: down}, {Name: "kafka", Ping: down}}, http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, status := get(t, NewChecker("test", tt.checks...), "/api/v1/health")
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.status, status.Status)
			assert.Len(t, status.Checks, len(tt.checks))
		})
	}
}

func TestReady(t *testing.T) {
	c := NewChecker("test")

	rec, _ := get(t, c, "/api/v1/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	c.SetReady(true)
	rec, _ = get(t, c, "/api/v1/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = get(t, c, "/api/v1/health/live")
	assert.Equal(t, http.StatusOK, rec.Code)
}
