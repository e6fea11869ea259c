package organization

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

// Register registers organization, team, group, domain and alias routes
func Register(g *echo.Group, svc *registry.Service, logger ectologger.Logger) {
	h := &Handler{registry: svc, logger: logger}

	g.GET("/organizations", h.ListOrganizations)
	g.POST("/organizations", h.AddOrganization)
	g.GET("/organizations/:name", h.GetOrganization)
	g.DELETE("/organizations/:name", h.DeleteOrganization)

	g.POST("/organizations/:name/domains", h.AddDomain)
	g.PATCH("/domains/:domain", h.UpdateDomain)
	g.POST("/domains/:domain/move", h.MoveDomain)
	g.DELETE("/domains/:domain", h.DeleteDomain)

	g.POST("/organizations/:name/aliases", h.AddAlias)
	g.DELETE("/aliases/:alias", h.DeleteAlias)

	g.GET("/organizations/:name/teams", h.ListTeams)
	g.POST("/organizations/:name/teams", h.AddTeam)
	g.POST("/organizations/:name/teams/:team/move", h.MoveTeam)
	g.DELETE("/organizations/:name/teams/:team", h.DeleteTeam)

	g.POST("/groups", h.AddGroup)
	g.DELETE("/groups/:name", h.DeleteGroup)
}

func (h *Handler) ListOrganizations(c echo.Context) error {
	filter := models.OrganizationFilter{Term: c.QueryParam("term")}
	var err error
	if filter.Limit, err = routes.QueryInt(c, "limit"); err != nil {
		return err
	}
	if filter.Offset, err = routes.QueryInt(c, "offset"); err != nil {
		return err
	}

	orgs, err := h.registry.ListOrganizations(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, orgs)
}

// GetOrganization looks an organization up by name or alias
func (h *Handler) GetOrganization(c echo.Context) error {
	org, err := h.registry.FindOrganization(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, org)
}

type NameRequest struct {
	Name string `json:"name" validate:"required"`
}

func (h *Handler) AddOrganization(c echo.Context) error {
	ctx := c.Request().Context()

	var req NameRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}
	org, err := h.registry.AddOrganization(ctx, req.Name)
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{"id": org.ID, "name": org.Name}).Info("Created organization")
	return c.JSON(http.StatusCreated, org)
}

func (h *Handler) DeleteOrganization(c echo.Context) error {
	org, err := h.registry.DeleteOrganization(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, org)
}

type DomainRequest struct {
	Domain      string `json:"domain" validate:"required"`
	IsTopDomain bool   `json:"is_top_domain"`
}

func (h *Handler) AddDomain(c echo.Context) error {
	var req DomainRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}
	domain, err := h.registry.AddDomain(c.Request().Context(), c.Param("name"), req.Domain, req.IsTopDomain)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, domain)
}

type UpdateDomainRequest struct {
	IsTopDomain bool `json:"is_top_domain"`
}

func (h *Handler) UpdateDomain(c echo.Context) error {
	var req UpdateDomainRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}
	domain, err := h.registry.UpdateDomain(c.Request().Context(), c.Param("domain"), req.IsTopDomain)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, domain)
}

type MoveDomainRequest struct {
	Organization string `json:"organization" validate:"required"`
}

func (h *Handler) MoveDomain(c echo.Context) error {
	var req MoveDomainRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}
	domain, err := h.registry.MoveDomain(c.Request().Context(), c.Param("domain"), req.Organization)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, domain)
}

func (h *Handler) DeleteDomain(c echo.Context) error {
	domain, err := h.registry.DeleteDomain(c.Request().Context(), c.Param("domain"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, domain)
}

type AliasRequest struct {
	Alias string `json:"alias" validate:"required"`
}

func (h *Handler) AddAlias(c echo.Context) error {
	var req AliasRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}
	alias, err := h.registry.AddAlias(c.Request().Context(), c.Param("name"), req.Alias)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, alias)
}

func (h *Handler) DeleteAlias(c echo.Context) error {
	alias, err := h.registry.DeleteAlias(c.Request().Context(), c.Param("alias"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, alias)
}

// ListTeams lists the direct children of the organization or of ?parent=
func (h *Handler) ListTeams(c echo.Context) error {
	teams, err := h.registry.ListTeams(c.Request().Context(), c.Param("name"), c.QueryParam("parent"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, teams)
}

type TeamRequest struct {
	Name       string `json:"name" validate:"required"`
	ParentTeam string `json:"parent_team,omitempty"`
}

func (h *Handler) AddTeam(c echo.Context) error {
	var req TeamRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}
	team, err := h.registry.AddTeam(c.Request().Context(), req.Name, c.Param("name"), req.ParentTeam)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, team)
}

type MoveTeamRequest struct {
	Organization string `json:"organization,omitempty"`
	ParentTeam   string `json:"parent_team,omitempty"`
}

// MoveTeam reparents a team inside its organization or into another one
func (h *Handler) MoveTeam(c echo.Context) error {
	var req MoveTeamRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}
	if req.Organization == "" {
		req.Organization = c.Param("name")
	}
	team, err := h.registry.MoveTeam(c.Request().Context(), c.Param("team"), c.Param("name"), req.Organization, req.ParentTeam)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, team)
}

func (h *Handler) DeleteTeam(c echo.Context) error {
	team, err := h.registry.DeleteTeam(c.Request().Context(), c.Param("team"), c.Param("name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, team)
}

func (h *Handler) AddGroup(c echo.Context) error {
	var req NameRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}
	group, err := h.registry.AddGroup(c.Request().Context(), req.Name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, group)
}

func (h *Handler) DeleteGroup(c echo.Context) error {
	group, err := h.registry.DeleteGroup(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, group)
}
