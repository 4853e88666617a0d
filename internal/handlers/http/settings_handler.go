package http

import (
	"net/http"

	"castline/internal/core/domain"
	"castline/internal/core/ports"

	"github.com/gin-gonic/gin"
)

type SettingsHandler struct {
	settings ports.SettingsService
}

func NewSettingsHandler(settings ports.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

func (h *SettingsHandler) SetupRoutes(router *gin.Engine, requireAuth gin.HandlerFunc) {
	api := router.Group("/api/v1/chat")
	{
		api.GET("/enabled", h.Enabled)
		api.GET("/settings", requireAuth, h.Get)
		api.PUT("/settings", requireAuth, h.Update)
	}
}

func (h *SettingsHandler) Get(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}

	settings, err := h.settings.Get(c.Request.Context(), actor)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

func (h *SettingsHandler) Update(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}

	settings := domain.DefaultChatSettings()
	if !bindJSON(c, settings) {
		return
	}

	updated, err := h.settings.Update(c.Request.Context(), actor, settings)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": updated})
}

func (h *SettingsHandler) Enabled(c *gin.Context) {
	enabled, err := h.settings.IsEnabled(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": enabled})
}
