package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"relay/internal/consent"
	"relay/internal/logger"
	"relay/internal/validation"
	"relay/pkg/errors"
	"relay/pkg/models"
)

// Dispatcher is the orchestrator surface the ingest API depends on.
type Dispatcher interface {
	Track(ctx context.Context, event models.Event) models.ExecutionResult
	Identify(ctx context.Context, payload models.IdentifyPayload) models.ExecutionResult
	Group(ctx context.Context, payload models.GroupPayload) models.ExecutionResult
	Page(ctx context.Context, payload models.PagePayload) models.ExecutionResult
}

type BaseHandler struct {
	Logger logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	status := errors.ToHTTPStatus(err)
	response := errors.ToErrorResponse(err)

	c.JSON(status, response)
}

// IngestHandler accepts analytics operations and hands them to the
// orchestrator. Responses carry the per-provider outcome; a failed
// provider does not fail the request.
type IngestHandler struct {
	BaseHandler
	Dispatcher Dispatcher
	Validator  *validation.Validator
}

func NewIngestHandler(dispatcher Dispatcher, log logger.Logger) *IngestHandler {
	return &IngestHandler{
		BaseHandler: BaseHandler{Logger: log},
		Dispatcher:  dispatcher,
		Validator:   validation.NewValidator(),
	}
}

func (h *IngestHandler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/track", h.Track)
		v1.POST("/identify", h.Identify)
		v1.POST("/group", h.Group)
		v1.POST("/page", h.Page)
	}
}

func (h *IngestHandler) Track(c *gin.Context) {
	var event models.Event
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	res := h.Validator.ValidateEvent(event)
	if !res.Valid {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(res.Err()))
		return
	}

	result := h.Dispatcher.Track(h.requestContext(c), *res.Sanitized)
	c.JSON(http.StatusOK, result)
}

func (h *IngestHandler) Identify(c *gin.Context) {
	var payload models.IdentifyPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now().UTC()
	}

	if err := h.Validator.ValidateIdentify(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(err))
		return
	}

	result := h.Dispatcher.Identify(h.requestContext(c), payload)
	c.JSON(http.StatusOK, result)
}

func (h *IngestHandler) Group(c *gin.Context) {
	var payload models.GroupPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now().UTC()
	}

	if err := h.Validator.ValidateGroup(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(err))
		return
	}

	result := h.Dispatcher.Group(h.requestContext(c), payload)
	c.JSON(http.StatusOK, result)
}

func (h *IngestHandler) Page(c *gin.Context) {
	var payload models.PagePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now().UTC()
	}

	if err := h.Validator.ValidatePage(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(err))
		return
	}

	result := h.Dispatcher.Page(h.requestContext(c), payload)
	c.JSON(http.StatusOK, result)
}

// requestContext threads browser privacy signals into the dispatch
// context so the privacy decorator can honour them.
func (h *IngestHandler) requestContext(c *gin.Context) context.Context {
	ctx := c.Request.Context()
	if c.GetHeader("DNT") == "1" {
		ctx = consent.WithDoNotTrack(ctx)
	}
	return ctx
}
