package http

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"castline/internal/core/domain"
	"castline/internal/core/ports"
	apperrors "castline/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// IngestSecretHeader carries the shared secret the media server presents on
// every callback.
const IngestSecretHeader = "X-Ingest-Secret"

// IngestHandler receives the media server's lifecycle callbacks.
type IngestHandler struct {
	lifecycle ports.LifecycleService
	secret    string
	logger    *zap.SugaredLogger
}

func NewIngestHandler(lifecycle ports.LifecycleService, secret string, logger *zap.SugaredLogger) *IngestHandler {
	return &IngestHandler{
		lifecycle: lifecycle,
		secret:    secret,
		logger:    logger,
	}
}

func (h *IngestHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/ingest", h.authorize)
	{
		api.POST("/publish", h.Publish)
		api.POST("/publish-done", h.PublishDone)
		api.POST("/play", h.Play)
		api.POST("/play-done", h.PlayDone)
		api.POST("/sample", h.Sample)
	}
}

func (h *IngestHandler) authorize(c *gin.Context) {
	if h.secret == "" {
		c.Next()
		return
	}
	got := c.GetHeader(IngestSecretHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		_ = c.Error(apperrors.NewUnauthorizedError("invalid ingest secret"))
		c.Abort()
		return
	}
	c.Next()
}

// Publish answers 403 for an unknown credential so the media server drops
// the feed.
func (h *IngestHandler) Publish(c *gin.Context) {
	key, ok := streamKey(c)
	if !ok {
		return
	}
	if err := h.lifecycle.PublishAttempt(c.Request.Context(), key); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *IngestHandler) PublishDone(c *gin.Context) {
	key, ok := streamKey(c)
	if !ok {
		return
	}
	if err := h.lifecycle.PublishEnd(c.Request.Context(), key); err != nil {
		h.logger.Warnw("publish end failed", "error", err)
	}
	c.Status(http.StatusNoContent)
}

func (h *IngestHandler) Play(c *gin.Context) {
	key, ok := streamKey(c)
	if !ok {
		return
	}
	h.lifecycle.ViewerJoined(c.Request.Context(), key)
	c.Status(http.StatusNoContent)
}

func (h *IngestHandler) PlayDone(c *gin.Context) {
	key, ok := streamKey(c)
	if !ok {
		return
	}
	h.lifecycle.ViewerLeft(c.Request.Context(), key)
	c.Status(http.StatusNoContent)
}

func (h *IngestHandler) Sample(c *gin.Context) {
	key, ok := streamKey(c)
	if !ok {
		return
	}

	bitrate, err := strconv.Atoi(c.Request.FormValue("bitrate"))
	if err != nil || bitrate < 0 {
		invalidInput(c, "bitrate must be a non-negative integer")
		return
	}
	fps, err := strconv.ParseFloat(c.Request.FormValue("fps"), 64)
	if err != nil || fps < 0 {
		invalidInput(c, "fps must be a non-negative number")
		return
	}

	h.lifecycle.MediaSample(c.Request.Context(), key, bitrate, fps)
	c.Status(http.StatusNoContent)
}

// streamKey reads the credential from the "name" field, falling back to the
// last segment of "path" (e.g. /live/<key>).
func streamKey(c *gin.Context) (domain.StreamKey, bool) {
	key := strings.TrimSpace(c.Request.FormValue("name"))
	if key == "" {
		path := strings.TrimRight(c.Request.FormValue("path"), "/")
		if i := strings.LastIndex(path, "/"); i >= 0 {
			path = path[i+1:]
		}
		key = strings.TrimSpace(path)
	}
	if key == "" {
		invalidInput(c, "stream key is required")
		return "", false
	}
	return domain.StreamKey(key), true
}
