package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/Baaaki/mealmender/internal/chat"
	"github.com/Baaaki/mealmender/internal/middleware"
	"github.com/Baaaki/mealmender/internal/service"
	"github.com/Baaaki/mealmender/internal/utils"
	"github.com/Baaaki/mealmender/pkg/apperror"
	"github.com/Baaaki/mealmender/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second // Time allowed to write a frame to the peer
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // 54 seconds
	maxMessageSize = 16 * 1024
	replyBuffer    = 8
)

// inbound is a client frame: {"event": "...", "data": ...}.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type sendMessagePayload struct {
	RequestID uuid.UUID `json:"requestId"`
	Content   string    `json:"content"`
}

type typingPayload struct {
	RequestID uuid.UUID `json:"requestId"`
	IsTyping  bool      `json:"isTyping"`
}

type WebSocketHandler struct {
	chatService *service.ChatService
	upgrader    websocket.Upgrader
}

func NewWebSocketHandler(chatService *service.ChatService, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		chatService: chatService,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
	}
}

// originChecker allows non-browser clients (no Origin header) and the
// configured CORS origins.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set["*"] || set[origin]
	}
}

// wsClient is one upgraded connection. Only writeLoop writes to conn.
type wsClient struct {
	conn      *websocket.Conn
	sub       *chat.Subscriber
	replies   chan chat.Event
	done      chan struct{} // closed when readLoop returns
	stopped   chan struct{} // closed when writeLoop returns
	expiresAt time.Time
}

// HandleWebSocket upgrades an authenticated request into a chat connection.
// GET /api/ws?token=...
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	userID := middleware.UserID(c)
	username := middleware.Username(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Warn("WebSocket upgrade failed",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		return
	}

	client := &wsClient{
		conn:    conn,
		sub:     chat.NewSubscriber(userID, username, chat.DefaultBuffer),
		replies: make(chan chat.Event, replyBuffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	if claims, ok := c.Get(middleware.ContextClaims); ok {
		if cl, ok := claims.(*utils.Claims); ok && cl.ExpiresAt != nil {
			client.expiresAt = cl.ExpiresAt.Time
		}
	}

	connectedAt := time.Now()
	logger.Log.Info("Chat client connected",
		zap.String("user_id", userID.String()),
		zap.String("username", username),
		zap.String("subscriber_id", client.sub.ID.String()),
	)

	go h.writeLoop(client)
	h.readLoop(c.Request.Context(), client)

	close(client.done)
	h.chatService.Disconnect(client.sub)
	_ = conn.Close()

	logger.Log.Info("Chat client disconnected",
		zap.String("user_id", userID.String()),
		zap.Duration("session", time.Since(connectedAt).Round(time.Second)),
	)
}

func (h *WebSocketHandler) readLoop(ctx context.Context, client *wsClient) {
	conn := client.conn
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame inbound
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.Warn("WebSocket read error",
					zap.String("user_id", client.sub.UserID.String()),
					zap.Error(err),
				)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		switch frame.Event {
		case chat.EventJoinRoom:
			h.handleJoin(ctx, client, frame.Data)
		case chat.EventSendMessage:
			h.handleSend(ctx, client, frame.Data)
		case chat.EventTyping:
			var p typingPayload
			if json.Unmarshal(frame.Data, &p) == nil {
				h.chatService.Typing(ctx, p.RequestID, client.sub, p.IsTyping)
			}
		default:
			h.replyError(client, "unknown event")
		}
	}
}

func (h *WebSocketHandler) handleJoin(ctx context.Context, client *wsClient, data json.RawMessage) {
	requestID, ok := parseRoomID(data)
	if !ok {
		h.replyError(client, "Chat room not found.")
		return
	}

	history, err := h.chatService.Join(ctx, requestID, client.sub)
	if err != nil {
		switch apperror.CodeOf(err) {
		case apperror.CodeNotFound:
			h.replyError(client, "Chat room not found.")
		case apperror.CodePermissionDenied:
			h.replyError(client, "You are not authorized to join this chat.")
		default:
			h.replyError(client, "Server error while joining room.")
		}
		return
	}
	h.reply(client, chat.EventChatHistory, history)
}

func (h *WebSocketHandler) handleSend(ctx context.Context, client *wsClient, data json.RawMessage) {
	var p sendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if _, err := h.chatService.Send(ctx, p.RequestID, client.sub, p.Content); err != nil {
		if apperror.HasCode(err, apperror.CodeInvalidArgument) {
			h.replyError(client, err.Error())
			return
		}
		h.replyError(client, "Message could not be sent.")
	}
}

// parseRoomID accepts either a bare id string or {"requestId": id}.
func parseRoomID(data json.RawMessage) (uuid.UUID, bool) {
	var raw string
	if err := json.Unmarshal(data, &raw); err == nil {
		id, err := uuid.Parse(raw)
		return id, err == nil
	}
	var obj struct {
		RequestID uuid.UUID `json:"requestId"`
	}
	if err := json.Unmarshal(data, &obj); err != nil || obj.RequestID == uuid.Nil {
		return uuid.Nil, false
	}
	return obj.RequestID, true
}

func (h *WebSocketHandler) reply(client *wsClient, eventType string, data interface{}) {
	e, err := chat.NewEvent(eventType, data)
	if err != nil {
		logger.Log.Error("Failed to encode reply", zap.String("event", eventType), zap.Error(err))
		return
	}
	select {
	case client.replies <- e:
	case <-client.stopped:
	}
}

func (h *WebSocketHandler) replyError(client *wsClient, message string) {
	h.reply(client, chat.EventError, gin.H{"message": message})
}

// writeLoop drains room events and direct replies, pings the peer, and
// closes the connection once the token expires.
func (h *WebSocketHandler) writeLoop(client *wsClient) {
	defer close(client.stopped)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	var expired <-chan time.Time
	if !client.expiresAt.IsZero() {
		timer := time.NewTimer(time.Until(client.expiresAt))
		defer timer.Stop()
		expired = timer.C
	}

	for {
		select {
		case e := <-client.sub.Events():
			if !h.write(client, e) {
				return
			}
		case e := <-client.replies:
			if !h.write(client, e) {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = client.conn.Close()
				return
			}
		case <-expired:
			h.closeExpired(client)
			return
		case <-client.done:
			return
		}
	}
}

func (h *WebSocketHandler) write(client *wsClient, e chat.Event) bool {
	_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := client.conn.WriteJSON(e); err != nil {
		logger.Log.Debug("WebSocket write failed",
			zap.String("user_id", client.sub.UserID.String()),
			zap.String("event", e.Type),
			zap.Error(err),
		)
		// Unblocks readLoop so the handler can clean up.
		_ = client.conn.Close()
		return false
	}
	return true
}

func (h *WebSocketHandler) closeExpired(client *wsClient) {
	if e, err := chat.NewEvent(chat.EventError, gin.H{"message": "session expired"}); err == nil {
		h.write(client, e)
	}
	_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = client.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session expired"),
	)
	_ = client.conn.Close()

	logger.Log.Info("Chat session expired", zap.String("user_id", client.sub.UserID.String()))
}
