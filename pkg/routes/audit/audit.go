package audit

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/registry"
	"github.com/Ramsey-B/sortinghat/pkg/routes"
)

type Handler struct {
	registry *registry.Service
}

// Register registers the read-only audit log routes
func Register(g *echo.Group, svc *registry.Service) {
	h := &Handler{registry: svc}

	g.GET("", h.ListTransactions)
	g.GET("/:tuid", h.GetTransaction)
	g.GET("/:tuid/operations", h.ListOperations)
}

// ListTransactions filters by name, author and creation window
func (h *Handler) ListTransactions(c echo.Context) error {
	filter := models.TransactionFilter{
		Name:       c.QueryParam("name"),
		AuthoredBy: c.QueryParam("authored_by"),
	}
	var err error
	if filter.FromDate, err = routes.QueryTime(c, "from_date"); err != nil {
		return err
	}
	if filter.ToDate, err = routes.QueryTime(c, "to_date"); err != nil {
		return err
	}
	if filter.Limit, err = routes.QueryInt(c, "limit"); err != nil {
		return err
	}
	if filter.Offset, err = routes.QueryInt(c, "offset"); err != nil {
		return err
	}

	trxs, err := h.registry.ListTransactions(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, trxs)
}

func (h *Handler) GetTransaction(c echo.Context) error {
	trx, err := h.registry.GetTransaction(c.Request().Context(), c.Param("tuid"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, trx)
}

func (h *Handler) ListOperations(c echo.Context) error {
	ops, err := h.registry.ListOperations(c.Request().Context(), c.Param("tuid"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ops)
}
