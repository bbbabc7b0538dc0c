package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"relay/internal/logger"
	"relay/internal/router"
	"relay/pkg/errors"
)

// RulesHandler manages routing rules. With a repository the database is
// the source of truth and the in-memory router is refreshed after every
// write; without one the rules live only in the router.
type RulesHandler struct {
	BaseHandler
	Router   *router.Router
	Repo     router.Repository
	Reloader *router.Reloader
}

func NewRulesHandler(rt *router.Router, repo router.Repository, reloader *router.Reloader, log logger.Logger) *RulesHandler {
	return &RulesHandler{
		BaseHandler: BaseHandler{Logger: log},
		Router:      rt,
		Repo:        repo,
		Reloader:    reloader,
	}
}

func (h *RulesHandler) RegisterRoutes(engine *gin.Engine, middlewares ...gin.HandlerFunc) {
	v1 := engine.Group("/api/v1")
	v1.Use(middlewares...)
	{
		rules := v1.Group("/rules/routing")
		{
			rules.GET("", h.ListRules)
			rules.POST("", h.CreateRule)
			rules.GET("/:id", h.GetRule)
			rules.PUT("/:id", h.UpdateRule)
			rules.DELETE("/:id", h.DeleteRule)
			rules.PUT("/:id/enabled", h.SetEnabled)
		}
	}
}

func (h *RulesHandler) ListRules(c *gin.Context) {
	if h.Repo == nil {
		c.JSON(http.StatusOK, h.Router.Rules())
		return
	}

	rules, err := h.Repo.ListRules(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rules)
}

func (h *RulesHandler) GetRule(c *gin.Context) {
	id := c.Param("id")

	if h.Repo == nil {
		for _, rule := range h.Router.Rules() {
			if rule.ID == id {
				c.JSON(http.StatusOK, rule)
				return
			}
		}
		h.HandleError(c, errors.ErrNotFound.WithDetail("rule_id", id))
		return
	}

	rule, err := h.Repo.GetRule(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *RulesHandler) CreateRule(c *gin.Context) {
	var rule router.RoutingRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	if err := h.Router.ValidateRule(rule); err != nil {
		h.HandleError(c, err)
		return
	}

	if h.Repo == nil {
		rule.ID = uuid.New().String()
		now := time.Now().UTC()
		rule.CreatedAt = now
		rule.UpdatedAt = now
		if err := h.Router.AddRule(rule); err != nil {
			h.HandleError(c, err)
			return
		}
		c.JSON(http.StatusCreated, rule)
		return
	}

	if err := h.Repo.CreateRule(c.Request.Context(), &rule); err != nil {
		h.HandleError(c, err)
		return
	}
	h.refresh(c)
	c.JSON(http.StatusCreated, rule)
}

func (h *RulesHandler) UpdateRule(c *gin.Context) {
	var rule router.RoutingRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}
	rule.ID = c.Param("id")

	if err := h.Router.ValidateRule(rule); err != nil {
		h.HandleError(c, err)
		return
	}

	if h.Repo == nil {
		if err := h.Router.UpdateRule(rule); err != nil {
			h.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, rule)
		return
	}

	if err := h.Repo.UpdateRule(c.Request.Context(), &rule); err != nil {
		h.HandleError(c, err)
		return
	}
	h.refresh(c)
	c.JSON(http.StatusOK, rule)
}

func (h *RulesHandler) DeleteRule(c *gin.Context) {
	id := c.Param("id")

	if h.Repo == nil {
		if err := h.Router.RemoveRule(id); err != nil {
			h.HandleError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
		return
	}

	if err := h.Repo.DeleteRule(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.refresh(c)
	c.Status(http.StatusNoContent)
}

type setEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *RulesHandler) SetEnabled(c *gin.Context) {
	var req setEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}
	id := c.Param("id")

	if h.Repo == nil {
		if err := h.Router.SetRuleEnabled(id, *req.Enabled); err != nil {
			h.HandleError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
		return
	}

	if err := h.Repo.SetEnabled(c.Request.Context(), id, *req.Enabled); err != nil {
		h.HandleError(c, err)
		return
	}
	h.refresh(c)
	c.Status(http.StatusNoContent)
}

// refresh pulls the active rule set into the router right after a write
// so callers see their change without waiting for the periodic reload.
func (h *RulesHandler) refresh(c *gin.Context) {
	if h.Reloader == nil {
		return
	}
	if err := h.Reloader.Reload(c.Request.Context(), true); err != nil {
		h.Logger.WarnwCtx(c.Request.Context(), "Rule refresh after write failed", "error", err)
	}
}
