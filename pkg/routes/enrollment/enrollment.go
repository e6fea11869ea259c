package enrollment

import (
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/period"
	"github.com/Ramsey-B/sortinghat/pkg/registry"
	"github.com/Ramsey-B/sortinghat/pkg/routes"
)

type Handler struct {
	registry *registry.Service
	logger   ectologger.Logger
}

// Register registers the enrollment routes of an individual
func Register(g *echo.Group, svc *registry.Service, logger ectologger.Logger) {
	h := &Handler{registry: svc, logger: logger}

	g.POST("/individuals/:mk/enrollments", h.Enroll)
	g.PUT("/individuals/:mk/enrollments", h.UpdateEnrollment)
	g.DELETE("/individuals/:mk/enrollments", h.DeleteEnrollment)
	g.POST("/individuals/:mk/enrollments/merge", h.MergeEnrollments)
	g.POST("/individuals/:mk/withdraw", h.Withdraw)
}

// EnrollRequest names a group and an optional period. Missing bounds default
// to the whole representable range.
type EnrollRequest struct {
	models.GroupRef
	Start  *time.Time `json:"start,omitempty"`
	End    *time.Time `json:"end,omitempty"`
	Strict bool       `json:"strict,omitempty"`
}

func (h *Handler) Enroll(c echo.Context) error {
	ctx := c.Request().Context()

	var req EnrollRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}

	individual, err := h.registry.AddEnrollment(ctx, c.Param("mk"), req.GroupRef, req.Start, req.End,
		registry.EnrollOptions{Strict: req.Strict})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, individual)
}

type UpdateRequest struct {
	models.GroupRef
	FromStart *time.Time `json:"from_start,omitempty"`
	FromEnd   *time.Time `json:"from_end,omitempty"`
	Start     *time.Time `json:"start" validate:"required"`
	End       *time.Time `json:"end" validate:"required"`
}

// UpdateEnrollment moves the bounds of the enrollment covering exactly
// [from_start, from_end].
func (h *Handler) UpdateEnrollment(c echo.Context) error {
	var req UpdateRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}
	from, err := period.WithDefaults(req.FromStart, req.FromEnd)
	if err != nil {
		return err
	}

	individual, err := h.registry.UpdateEnrollment(c.Request().Context(), c.Param("mk"), req.GroupRef, from, req.Start, req.End)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, individual)
}

// DeleteEnrollment removes the enrollment matching the group and period in
// the query string.
func (h *Handler) DeleteEnrollment(c echo.Context) error {
	ref := models.GroupRef{Name: c.QueryParam("group"), ParentOrg: c.QueryParam("parent_org")}
	start, err := routes.QueryTime(c, "start")
	if err != nil {
		return err
	}
	end, err := routes.QueryTime(c, "end")
	if err != nil {
		return err
	}

	individual, err := h.registry.DeleteEnrollment(c.Request().Context(), c.Param("mk"), ref, start, end)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, individual)
}

func (h *Handler) Withdraw(c echo.Context) error {
	var req EnrollRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}
	individual, err := h.registry.Withdraw(c.Request().Context(), c.Param("mk"), req.GroupRef, req.Start, req.End)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, individual)
}

func (h *Handler) MergeEnrollments(c echo.Context) error {
	var req models.GroupRef
	if err := routes.Bind(c, &req); err != nil {
		return err
	}
	individual, err := h.registry.MergeEnrollments(c.Request().Context(), c.Param("mk"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, individual)
}
