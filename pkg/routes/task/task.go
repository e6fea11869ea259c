package task

import (
	"encoding/json"
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sortinghat/pkg/registry"
	"github.com/Ramsey-B/sortinghat/pkg/routes"
)

type Handler struct {
	registry *registry.Service
	logger   ectologger.Logger
}

// Register registers scheduled task routes
func Register(g *echo.Group, svc *registry.Service, logger ectologger.Logger) {
	h := &Handler{registry: svc, logger: logger}

	g.GET("", h.ListTasks)
	g.POST("", h.AddTask)
	g.GET("/:id", h.GetTask)
	g.PUT("/:id", h.UpdateTask)
	g.DELETE("/:id", h.DeleteTask)
}

func (h *Handler) ListTasks(c echo.Context) error {
	tasks, err := h.registry.ListScheduledTasks(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tasks)
}

func (h *Handler) GetTask(c echo.Context) error {
	id, err := routes.ParamInt(c, "id")
	if err != nil {
		return err
	}
	task, err := h.registry.GetScheduledTask(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, task)
}

// AddTaskRequest schedules job_type every interval minutes; 0 runs it once.
type AddTaskRequest struct {
	JobType  string          `json:"job_type" validate:"required"`
	Interval int             `json:"interval" validate:"gte=0"`
	Args     json.RawMessage `json:"args,omitempty"`
}

func (h *Handler) AddTask(c echo.Context) error {
	ctx := c.Request().Context()

	var req AddTaskRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}
	task, err := h.registry.AddScheduledTask(ctx, req.JobType, req.Interval, req.Args)
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"id":       task.ID,
		"job_type": task.JobType,
		"interval": task.Interval,
	}).Info("Scheduled task")
	return c.JSON(http.StatusCreated, task)
}

type UpdateTaskRequest struct {
	Interval int             `json:"interval" validate:"gte=0"`
	Args     json.RawMessage `json:"args,omitempty"`
}

func (h *Handler) UpdateTask(c echo.Context) error {
	id, err := routes.ParamInt(c, "id")
	if err != nil {
		return err
	}
	var req UpdateTaskRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}
	task, err := h.registry.UpdateScheduledTask(c.Request().Context(), id, req.Interval, req.Args)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, task)
}

func (h *Handler) DeleteTask(c echo.Context) error {
	id, err := routes.ParamInt(c, "id")
	if err != nil {
		return err
	}
	task, err := h.registry.DeleteScheduledTask(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, task)
}
