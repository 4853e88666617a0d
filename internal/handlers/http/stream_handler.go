package http

import (
	"net/http"

	"castline/internal/core/domain"
	"castline/internal/core/ports"

	"github.com/gin-gonic/gin"
)

type StreamHandler struct {
	streams ports.StreamService
}

func NewStreamHandler(streams ports.StreamService) *StreamHandler {
	return &StreamHandler{streams: streams}
}

func (h *StreamHandler) SetupRoutes(router *gin.Engine, requireAuth gin.HandlerFunc) {
	api := router.Group("/api/v1/stream")
	{
		api.GET("", h.Current)
		api.GET("/metrics", h.Metrics)
		api.PATCH("", requireAuth, h.Patch)
	}
}

func (h *StreamHandler) Current(c *gin.Context) {
	stream, err := h.streams.Current(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stream": stream})
}

func (h *StreamHandler) Patch(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}

	var patch domain.StreamPatch
	if !bindJSON(c, &patch) {
		return
	}
	if patch.Title == nil && patch.Description == nil && patch.ContentRating == nil {
		invalidInput(c, "nothing to update")
		return
	}

	stream, err := h.streams.Patch(c.Request.Context(), actor, patch)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stream": stream})
}

func (h *StreamHandler) Metrics(c *gin.Context) {
	metrics, err := h.streams.Metrics(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics": metrics})
}
