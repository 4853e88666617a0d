package http

import (
	"net/http"

	"castline/internal/core/domain"
	"castline/internal/core/ports"
	"castline/pkg/validation"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	chat ports.ChatService
}

func NewChatHandler(chat ports.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

func (h *ChatHandler) SetupRoutes(router *gin.Engine, requireAuth gin.HandlerFunc) {
	api := router.Group("/api/v1/chat", requireAuth)
	{
		api.GET("/messages", h.History)
		api.POST("/messages", h.Send)
		api.POST("/messages/:id/replies", h.Reply)
		api.POST("/messages/:id/reactions", h.React)
		api.GET("/commands", h.Commands)
		api.POST("/commands", h.Command)
		api.POST("/join", h.Join)
		api.POST("/system", h.System)
	}
}

type SendMessageRequest struct {
	Content string             `json:"content" binding:"required"`
	Type    domain.MessageType `json:"type"`
}

type ContentRequest struct {
	Content string `json:"content" binding:"required"`
}

type ReactRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

type CommandRequest struct {
	Input string `json:"input" binding:"required"`
}

func (h *ChatHandler) Send(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Type == "" {
		req.Type = domain.MessageUser
	}

	msg, err := h.chat.Send(c.Request.Context(), actor, req.Content, req.Type)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *ChatHandler) Reply(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}
	parent, ok := messageParam(c)
	if !ok {
		return
	}

	var req ContentRequest
	if !bindJSON(c, &req) {
		return
	}

	msg, err := h.chat.Reply(c.Request.Context(), actor, req.Content, parent)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *ChatHandler) React(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}
	id, ok := messageParam(c)
	if !ok {
		return
	}

	var req ReactRequest
	if !bindJSON(c, &req) {
		return
	}

	reactions, err := h.chat.React(c.Request.Context(), actor, id, req.Emoji)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if reactions == nil {
		reactions = []domain.Reaction{}
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "reactions": reactions})
}

func (h *ChatHandler) Command(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}

	var req CommandRequest
	if !bindJSON(c, &req) {
		return
	}

	msg, err := h.chat.Command(c.Request.Context(), actor, req.Input)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (h *ChatHandler) Commands(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}

	commands, err := h.chat.Commands(c.Request.Context(), actor)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if commands == nil {
		commands = []*domain.SlashCommand{}
	}
	c.JSON(http.StatusOK, gin.H{"commands": commands})
}

func (h *ChatHandler) Join(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}

	if err := h.chat.AnnounceJoin(c.Request.Context(), actor); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) System(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}

	var req ContentRequest
	if !bindJSON(c, &req) {
		return
	}

	msg, err := h.chat.SystemMessage(c.Request.Context(), actor, req.Content)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *ChatHandler) History(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}

	messages, err := h.chat.History(c.Request.Context(), actor)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if messages == nil {
		messages = []*domain.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func messageParam(c *gin.Context) (domain.MessageID, bool) {
	id := c.Param("id")
	if err := validation.ValidateMessageID(id); err != nil {
		invalidInput(c, err.Error())
		return "", false
	}
	return domain.MessageID(id), true
}
