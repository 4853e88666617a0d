package http

import (
	"net/http"

	"castline/internal/core/ports"

	"github.com/gin-gonic/gin"
)

type ProfileHandler struct {
	profiles ports.ProfileService
}

func NewProfileHandler(profiles ports.ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

func (h *ProfileHandler) SetupRoutes(router *gin.Engine, requireAuth gin.HandlerFunc) {
	api := router.Group("/api/v1/me", requireAuth)
	{
		api.GET("", h.Me)
		api.POST("/stream-key", h.RegenerateStreamKey)
	}
}

// Me provisions the caller's profile on first sign-in. The caller's own
// stream key is included.
func (h *ProfileHandler) Me(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}

	profile, err := h.profiles.Ensure(c.Request.Context(), actor)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": actor, "profile": profile})
}

func (h *ProfileHandler) RegenerateStreamKey(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}

	key, err := h.profiles.RegenerateStreamKey(c.Request.Context(), actor)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stream_key": key})
}
