package exclusion

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sortinghat/pkg/registry"
	"github.com/Ramsey-B/sortinghat/pkg/routes"
)

type Handler struct {
	registry *registry.Service
}

// Register registers matching exclusion and country routes
func Register(g *echo.Group, svc *registry.Service) {
	h := &Handler{registry: svc}

	g.GET("/exclusions", h.ListExclusions)
	g.POST("/exclusions", h.AddExclusion)
	g.DELETE("/exclusions/:term", h.DeleteExclusion)

	g.GET("/countries", h.ListCountries)
	g.GET("/countries/:code", h.GetCountry)
}

func (h *Handler) ListExclusions(c echo.Context) error {
	exclusions, err := h.registry.ListExclusions(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, exclusions)
}

type ExclusionRequest struct {
	Term string `json:"term" validate:"required"`
}

func (h *Handler) AddExclusion(c echo.Context) error {
	var req ExclusionRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}
	exclusion, err := h.registry.AddExclusion(c.Request().Context(), req.Term)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, exclusion)
}

func (h *Handler) DeleteExclusion(c echo.Context) error {
	exclusion, err := h.registry.DeleteExclusion(c.Request().Context(), c.Param("term"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, exclusion)
}

func (h *Handler) ListCountries(c echo.Context) error {
	countries, err := h.registry.ListCountries(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, countries)
}

func (h *Handler) GetCountry(c echo.Context) error {
	country, err := h.registry.FindCountry(c.Request().Context(), c.Param("code"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, country)
}
