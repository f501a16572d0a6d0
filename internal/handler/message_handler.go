package handler

import (
	"net/http"

	"github.com/Baaaki/mealmender/internal/middleware"
	"github.com/Baaaki/mealmender/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type MessageHandler struct {
	chatService *service.ChatService
}

func NewMessageHandler(chatService *service.ChatService) *MessageHandler {
	return &MessageHandler{chatService: chatService}
}

// History returns every message of a request room, oldest first.
// GET /api/messages/:requestId
func (h *MessageHandler) History(c *gin.Context) {
	requestID, ok := uuidParam(c, "requestId")
	if !ok {
		return
	}

	history, err := h.chatService.History(c.Request.Context(), requestID, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

type postMessageRequest struct {
	RequestID uuid.UUID `json:"requestId" binding:"required"`
	Content   string    `json:"content" binding:"required"`
}

// Post persists a message and delivers it to any live room subscribers.
// POST /api/messages
func (h *MessageHandler) Post(c *gin.Context) {
	var req postMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	msg, err := h.chatService.PostMessage(c.Request.Context(), req.RequestID, middleware.UserID(c), req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}
