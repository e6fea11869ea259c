package recommendation

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sortinghat/pkg/recommendation"
	"github.com/Ramsey-B/sortinghat/pkg/redis"
	"github.com/Ramsey-B/sortinghat/pkg/routes"
	"github.com/Ramsey-B/sortinghat/pkg/scheduler"
	"github.com/Ramsey-B/sortinghat/pkg/unify"
)

type Handler struct {
	recommender *recommendation.Recommender
	unifier     *unify.Unifier
	locker      scheduler.Locker
	lockTTL     time.Duration
	logger      ectologger.Logger
}

func NewHandler(rec *recommendation.Recommender, u *unify.Unifier, locker scheduler.Locker, lockTTL time.Duration, logger ectologger.Logger) *Handler {
	return &Handler{
		recommender: rec,
		unifier:     u,
		locker:      locker,
		lockTTL:     lockTTL,
		logger:      logger,
	}
}

// Register registers recommendation, affiliate, genderize and unify routes
func Register(g *echo.Group, h *Handler) {
	g.GET("/recommendations", h.ListEngines)
	g.POST("/recommendations/:engine", h.Recommend)
	g.POST("/affiliate", h.Affiliate)
	g.POST("/genderize", h.Genderize)
	g.POST("/unify", h.Unify)
}

func (h *Handler) ListEngines(c echo.Context) error {
	return c.JSON(http.StatusOK, recommendation.Engines())
}

// Recommend runs the named engine. Keys are individual mks or identity
// uuids; empty keys cover every individual.
func (h *Handler) Recommend(c echo.Context) error {
	var req recommendation.Request
	if err := routes.Bind(c, &req); err != nil {
		return err
	}
	recs, err := h.recommender.Recommend(c.Request().Context(), c.Param("engine"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"results": recs})
}

type KeysRequest struct {
	UUIDs []string `json:"uuids,omitempty"`
}

func (h *Handler) Affiliate(c echo.Context) error {
	ctx := c.Request().Context()

	var req KeysRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}
	res, err := h.recommender.Affiliate(ctx, req.UUIDs)
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"individuals": len(res.Results),
		"errors":      len(res.Errors),
	}).Info("Affiliated individuals")
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Genderize(c echo.Context) error {
	ctx := c.Request().Context()

	var req KeysRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}
	res, err := h.recommender.Genderize(ctx, req.UUIDs)
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"individuals": len(res.Results),
		"errors":      len(res.Errors),
	}).Info("Genderized individuals")
	return c.JSON(http.StatusOK, res)
}

type UnifyRequest struct {
	Matcher  string   `json:"matcher,omitempty"`
	Sources  []string `json:"sources,omitempty"`
	Pairwise bool     `json:"pairwise,omitempty"`
	Recovery bool     `json:"recovery,omitempty"`
	Strict   *bool    `json:"strict,omitempty"`
	Exclude  *bool    `json:"exclude,omitempty"`
}

// Unify merges every class of matching identities. Only one run may be in
// progress at a time.
func (h *Handler) Unify(c echo.Context) error {
	var req UnifyRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}

	stats, err := scheduler.RunUnify(c.Request().Context(), h.locker, h.lockTTL, h.unifier, unify.Options{
		Matcher:  req.Matcher,
		Sources:  req.Sources,
		Pairwise: req.Pairwise,
		Recovery: req.Recovery,
		Strict:   req.Strict,
		Exclude:  req.Exclude,
	})
	if stderrors.Is(err, redis.ErrLockNotAcquired) {
		return httperror.NewHTTPError(http.StatusConflict, "a unification run is already in progress")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}
