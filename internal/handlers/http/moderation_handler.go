package http

import (
	"context"
	"net/http"

	"castline/internal/core/domain"
	"castline/internal/core/ports"
	"castline/pkg/validation"

	"github.com/gin-gonic/gin"
)

type ModerationHandler struct {
	moderation ports.ModerationService
}

func NewModerationHandler(moderation ports.ModerationService) *ModerationHandler {
	return &ModerationHandler{moderation: moderation}
}

func (h *ModerationHandler) SetupRoutes(router *gin.Engine, requireAuth gin.HandlerFunc) {
	chat := router.Group("/api/v1/chat", requireAuth)
	{
		chat.DELETE("/messages/:id", h.Delete)
		chat.GET("/ban-status", h.BanStatus)
	}

	api := router.Group("/api/v1/moderation", requireAuth)
	{
		api.POST("/users/:user/mute", h.Mute)
		api.POST("/users/:user/ban", h.Ban)
		api.PATCH("/users/:user/permissions", h.PatchPermissions)
	}
}

type SanctionRequest struct {
	Reason string `json:"reason" binding:"max=512"`
}

type PermissionsRequest struct {
	Permissions *domain.Permission `json:"permissions" binding:"required"`
}

type sanctionFunc func(ctx context.Context, actor domain.Identity, target domain.UserID, reason string) error

func (h *ModerationHandler) Delete(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}
	id, ok := messageParam(c)
	if !ok {
		return
	}

	if err := h.moderation.Delete(c.Request.Context(), actor, id); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ModerationHandler) Mute(c *gin.Context) {
	h.sanction(c, h.moderation.Mute)
}

func (h *ModerationHandler) Ban(c *gin.Context) {
	h.sanction(c, h.moderation.Ban)
}

func (h *ModerationHandler) sanction(c *gin.Context, apply sanctionFunc) {
	actor, ok := caller(c)
	if !ok {
		return
	}
	target, ok := userParam(c)
	if !ok {
		return
	}

	// an empty body means no reason
	var req SanctionRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	if err := apply(c.Request.Context(), actor, target, req.Reason); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ModerationHandler) PatchPermissions(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}
	target, ok := userParam(c)
	if !ok {
		return
	}

	var req PermissionsRequest
	if !bindJSON(c, &req) {
		return
	}

	profile, err := h.moderation.PatchPermissions(c.Request.Context(), actor, target, *req.Permissions)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile.Public()})
}

func (h *ModerationHandler) BanStatus(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}

	ban, banned, err := h.moderation.BanStatus(c.Request.Context(), actor)
	if err != nil {
		_ = c.Error(err)
		return
	}

	resp := gin.H{"banned": banned}
	if ban != nil {
		resp["sanction"] = ban
	}
	c.JSON(http.StatusOK, resp)
}

func userParam(c *gin.Context) (domain.UserID, bool) {
	id := c.Param("user")
	if err := validation.ValidateUserID(id); err != nil {
		invalidInput(c, err.Error())
		return "", false
	}
	return domain.UserID(id), true
}
