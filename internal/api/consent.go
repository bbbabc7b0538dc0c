package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"relay/internal/consent"
	"relay/internal/logger"
	"relay/pkg/errors"
	"relay/pkg/models"
)

// ConsentHandler exposes per-user consent state. The privacy decorator
// reads the same store on every dispatch.
type ConsentHandler struct {
	BaseHandler
	Store consent.Store
}

func NewConsentHandler(store consent.Store, log logger.Logger) *ConsentHandler {
	return &ConsentHandler{
		BaseHandler: BaseHandler{Logger: log},
		Store:       store,
	}
}

func (h *ConsentHandler) RegisterRoutes(engine *gin.Engine, middlewares ...gin.HandlerFunc) {
	v1 := engine.Group("/api/v1")
	v1.Use(middlewares...)
	{
		v1.GET("/consent/:identifier", h.GetConsent)
		v1.PUT("/consent/:identifier", h.SetConsent)
		v1.DELETE("/consent/:identifier", h.DeleteConsent)
	}
}

func (h *ConsentHandler) GetConsent(c *gin.Context) {
	identifier := c.Param("identifier")

	status, err := h.Store.Get(c.Request.Context(), identifier)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if status == nil {
		h.HandleError(c, errors.ErrNotFound.WithDetail("identifier", identifier))
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *ConsentHandler) SetConsent(c *gin.Context) {
	var status models.ConsentStatus
	if err := c.ShouldBindJSON(&status); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now().UTC()
	}

	identifier := c.Param("identifier")
	if err := h.Store.Set(c.Request.Context(), identifier, status); err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *ConsentHandler) DeleteConsent(c *gin.Context) {
	identifier := c.Param("identifier")

	if err := h.Store.Delete(c.Request.Context(), identifier); err != nil {
		h.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
