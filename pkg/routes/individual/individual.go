package individual

import (
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/registry"
	"github.com/Ramsey-B/sortinghat/pkg/routes"
)

type Handler struct {
	registry *registry.Service
	logger   ectologger.Logger
}

// Register registers individual and identity routes
func Register(g *echo.Group, svc *registry.Service, logger ectologger.Logger) {
	h := &Handler{registry: svc, logger: logger}

	g.GET("/individuals", h.ListIndividuals)
	g.POST("/individuals", h.AddIndividual)
	g.POST("/individuals/merge", h.MergeIndividuals)
	g.GET("/individuals/:mk", h.GetIndividual)
	g.DELETE("/individuals/:mk", h.DeleteIndividual)
	g.POST("/individuals/:mk/lock", h.LockIndividual)
	g.DELETE("/individuals/:mk/lock", h.UnlockIndividual)
	g.PATCH("/individuals/:mk/profile", h.UpdateProfile)
	g.POST("/individuals/:mk/identities", h.AddIdentity)

	g.POST("/identities", h.AddIdentity)
	g.GET("/identities/:uuid/individual", h.FindByIdentity)
	g.DELETE("/identities/:uuid", h.DeleteIdentity)
	g.POST("/identities/:uuid/move", h.MoveIdentity)
}

// ListIndividuals lists individuals matching term, sources and lock state
func (h *Handler) ListIndividuals(c echo.Context) error {
	ctx := c.Request().Context()

	filter := models.IndividualFilter{
		Term:    c.QueryParam("term"),
		Sources: routes.QueryList(c, "source"),
		MKs:     routes.QueryList(c, "mk"),
	}
	var err error
	if filter.IsLocked, err = routes.QueryBool(c, "is_locked"); err != nil {
		return err
	}
	if filter.Limit, err = routes.QueryInt(c, "limit"); err != nil {
		return err
	}
	if filter.Offset, err = routes.QueryInt(c, "offset"); err != nil {
		return err
	}

	individuals, err := h.registry.ListIndividuals(ctx, filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, individuals)
}

func (h *Handler) GetIndividual(c echo.Context) error {
	individual, err := h.registry.GetIndividual(c.Request().Context(), c.Param("mk"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, individual)
}

func (h *Handler) FindByIdentity(c echo.Context) error {
	individual, err := h.registry.FindIndividualByUUID(c.Request().Context(), c.Param("uuid"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, individual)
}

// AddIndividual creates an individual from its first identity
func (h *Handler) AddIndividual(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.IdentityData
	if err := routes.Bind(c, &req); err != nil {
		return err
	}

	individual, err := h.registry.AddIndividual(ctx, req)
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithField("mk", individual.MK).Info("Created individual")
	return c.JSON(http.StatusCreated, individual)
}

type AddIdentityRequest struct {
	models.IdentityData
	MK *string `json:"mk,omitempty"`
}

// AddIdentity adds an identity to the individual in the path or body. Without
// either a new individual is created for it.
func (h *Handler) AddIdentity(c echo.Context) error {
	ctx := c.Request().Context()

	var req AddIdentityRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}
	if mk := c.Param("mk"); mk != "" {
		req.MK = &mk
	}

	identity, err := h.registry.AddIdentity(ctx, req.IdentityData, req.MK)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, identity)
}

func (h *Handler) DeleteIndividual(c echo.Context) error {
	individual, err := h.registry.DeleteIndividual(c.Request().Context(), c.Param("mk"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, individual)
}

func (h *Handler) DeleteIdentity(c echo.Context) error {
	individual, err := h.registry.DeleteIdentity(c.Request().Context(), c.Param("uuid"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, individual)
}

func (h *Handler) LockIndividual(c echo.Context) error {
	individual, err := h.registry.LockIndividual(c.Request().Context(), c.Param("mk"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, individual)
}

func (h *Handler) UnlockIndividual(c echo.Context) error {
	individual, err := h.registry.UnlockIndividual(c.Request().Context(), c.Param("mk"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, individual)
}

// UpdateProfile applies a partial profile update. Fields listed in clear are
// reset to null.
func (h *Handler) UpdateProfile(c echo.Context) error {
	var req models.ProfileUpdate
	if err := routes.Bind(c, &req); err != nil {
		return err
	}
	individual, err := h.registry.UpdateProfile(c.Request().Context(), c.Param("mk"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, individual)
}

type MergeRequest struct {
	FromMKs []string `json:"from_mks" validate:"required,min=1,dive,required"`
	ToMK    string   `json:"to_mk" validate:"required"`
}

// MergeIndividuals merges every individual in from_mks into to_mk
func (h *Handler) MergeIndividuals(c echo.Context) error {
	ctx := c.Request().Context()

	var req MergeRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}

	individual, err := h.registry.MergeMany(ctx, req.FromMKs, req.ToMK)
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"from": req.FromMKs,
		"to":   req.ToMK,
	}).Info("Merged individuals")
	return c.JSON(http.StatusOK, individual)
}

type MoveRequest struct {
	ToMK string `json:"to_mk" validate:"required"`
}

// MoveIdentity moves an identity to another individual. Moving it onto its
// own uuid splits it into a new individual.
func (h *Handler) MoveIdentity(c echo.Context) error {
	var req MoveRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}
	individual, err := h.registry.MoveIdentity(c.Request().Context(), c.Param("uuid"), req.ToMK)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, individual)
}
