package service

import (
	"context"
	"strings"
	"sync"

	"github.com/Baaaki/mealmender/internal/broker"
	"github.com/Baaaki/mealmender/internal/chat"
	"github.com/Baaaki/mealmender/internal/models"
	"github.com/Baaaki/mealmender/internal/repository"
	"github.com/Baaaki/mealmender/pkg/apperror"
	"github.com/Baaaki/mealmender/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	maxMessageLength = 4000
	roomStripes      = 64
)

type ChatHistory struct {
	RequestID uuid.UUID             `json:"requestId"`
	Messages  []*models.MessageView `json:"messages"`
}

type TypingSignal struct {
	RequestID uuid.UUID `json:"requestId"`
	UserID    uuid.UUID `json:"userId"`
	Username  string    `json:"username"`
	IsTyping  bool      `json:"isTyping"`
}

// ChatService gates request rooms to the two parties of the request and
// persists every message before it is delivered.
type ChatService struct {
	store  *repository.Store
	hub    *chat.Hub
	broker broker.RoomBroker

	// Sends to one room hold its stripe so delivery order matches insert order.
	rooms [roomStripes]sync.Mutex
}

func NewChatService(store *repository.Store, hub *chat.Hub, roomBroker broker.RoomBroker) *ChatService {
	return &ChatService{store: store, hub: hub, broker: roomBroker}
}

func (s *ChatService) lockRoom(room uuid.UUID) func() {
	m := &s.rooms[int(room[15])%roomStripes]
	m.Lock()
	return m.Unlock
}

// Join subscribes sub to the room of requestID and returns the full history.
// Non-participants get Forbidden and no subscription.
func (s *ChatService) Join(ctx context.Context, requestID uuid.UUID, sub *chat.Subscriber) (*ChatHistory, error) {
	if _, err := s.participantRequest(ctx, requestID, sub.UserID); err != nil {
		return nil, err
	}

	// History read and join happen under the room lock, so a concurrent send
	// lands either in the history or on the subscription, never both or neither.
	unlock := s.lockRoom(requestID)
	defer unlock()

	messages, err := s.loadHistory(ctx, requestID)
	if err != nil {
		return nil, err
	}
	s.hub.Join(requestID, sub)

	logger.Log.Debug("Joined chat room",
		zap.String("request_id", requestID.String()),
		zap.String("user_id", sub.UserID.String()),
		zap.Int("history", len(messages)),
	)
	return &ChatHistory{RequestID: requestID, Messages: messages}, nil
}

// Send persists and delivers a message from a joined subscriber. Blank
// content or a subscriber that never joined the room is silently ignored.
func (s *ChatService) Send(ctx context.Context, requestID uuid.UUID, sub *chat.Subscriber, content string) (*models.MessageView, error) {
	content = strings.TrimSpace(content)
	if content == "" || !s.hub.IsMember(requestID, sub) {
		return nil, nil
	}
	if len(content) > maxMessageLength {
		return nil, apperror.InvalidArgument("message is too long")
	}

	sender := &models.UserSummary{ID: sub.UserID, Username: sub.Username}
	return s.persistAndDeliver(ctx, requestID, sender, content)
}

// PostMessage is the REST counterpart of Send. It checks participation on
// every call since there is no joined socket.
func (s *ChatService) PostMessage(ctx context.Context, requestID, senderID uuid.UUID, content string) (*models.MessageView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperror.InvalidArgument("content is required")
	}
	if len(content) > maxMessageLength {
		return nil, apperror.InvalidArgument("message is too long")
	}
	if _, err := s.participantRequest(ctx, requestID, senderID); err != nil {
		return nil, err
	}

	user, err := s.store.Users.GetByID(ctx, senderID)
	if err != nil {
		return nil, errInternal(err)
	}
	sender := &models.UserSummary{ID: senderID}
	if user != nil {
		summary := user.Summary()
		sender = &summary
	}
	return s.persistAndDeliver(ctx, requestID, sender, content)
}

func (s *ChatService) History(ctx context.Context, requestID, actorID uuid.UUID) (*ChatHistory, error) {
	if _, err := s.participantRequest(ctx, requestID, actorID); err != nil {
		return nil, err
	}
	messages, err := s.loadHistory(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return &ChatHistory{RequestID: requestID, Messages: messages}, nil
}

// Typing is ephemeral and goes to the other room members only.
func (s *ChatService) Typing(ctx context.Context, requestID uuid.UUID, sub *chat.Subscriber, isTyping bool) {
	if !s.hub.IsMember(requestID, sub) {
		return
	}
	e, err := chat.NewEvent(chat.EventTyping, TypingSignal{
		RequestID: requestID,
		UserID:    sub.UserID,
		Username:  sub.Username,
		IsTyping:  isTyping,
	})
	if err != nil {
		return
	}
	s.hub.Broadcast(requestID, e, sub)
	s.publish(ctx, requestID, e)
}

// Disconnect removes sub from every room; persisted history is untouched.
func (s *ChatService) Disconnect(sub *chat.Subscriber) {
	rooms := s.hub.LeaveAll(sub)
	logger.Log.Debug("Chat subscriber disconnected",
		zap.String("user_id", sub.UserID.String()),
		zap.Int("rooms", len(rooms)),
	)
}

func (s *ChatService) persistAndDeliver(ctx context.Context, requestID uuid.UUID, sender *models.UserSummary, content string) (*models.MessageView, error) {
	unlock := s.lockRoom(requestID)
	defer unlock()

	msg := &models.Message{
		RequestID: requestID,
		SenderID:  sender.ID,
		Content:   content,
	}
	if err := s.store.Messages.Create(ctx, msg); err != nil {
		logger.Log.Error("Failed to persist chat message",
			zap.String("request_id", requestID.String()),
			zap.String("user_id", sender.ID.String()),
			zap.Error(err),
		)
		return nil, errInternal(err)
	}

	view := &models.MessageView{Message: *msg, Sender: sender}
	e, err := chat.NewEvent(chat.EventReceiveMessage, view)
	if err != nil {
		return nil, errInternal(err)
	}
	delivered := s.hub.Broadcast(requestID, e, nil)
	s.publish(ctx, requestID, e)

	logger.Log.Debug("Chat message delivered",
		zap.String("message_id", msg.ID.String()),
		zap.String("request_id", requestID.String()),
		zap.Int("local_subscribers", delivered),
	)
	return view, nil
}

func (s *ChatService) publish(ctx context.Context, room uuid.UUID, e chat.Event) {
	if s.broker == nil {
		return
	}
	if err := s.broker.Publish(ctx, room, e); err != nil {
		logger.Log.Warn("Failed to publish chat event",
			zap.String("request_id", room.String()),
			zap.String("event", e.Type),
			zap.Error(err),
		)
	}
}

func (s *ChatService) participantRequest(ctx context.Context, requestID, userID uuid.UUID) (*models.Request, error) {
	req, err := s.store.Requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, errInternal(err)
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}
	if !req.IsParticipant(userID) {
		logger.Log.Warn("Chat access denied",
			zap.String("request_id", requestID.String()),
			zap.String("user_id", userID.String()),
		)
		return nil, ErrNotParticipant
	}
	return req, nil
}

func (s *ChatService) loadHistory(ctx context.Context, requestID uuid.UUID) ([]*models.MessageView, error) {
	messages, err := s.store.Messages.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, errInternal(err)
	}

	senderIDs := make([]uuid.UUID, 0, 2)
	seen := map[uuid.UUID]bool{}
	for _, m := range messages {
		if !seen[m.SenderID] {
			seen[m.SenderID] = true
			senderIDs = append(senderIDs, m.SenderID)
		}
	}
	senders, err := s.store.Users.GetByIDs(ctx, senderIDs)
	if err != nil {
		return nil, errInternal(err)
	}

	views := make([]*models.MessageView, 0, len(messages))
	for _, m := range messages {
		v := &models.MessageView{Message: *m}
		if u, ok := senders[m.SenderID]; ok {
			summary := u.Summary()
			v.Sender = &summary
		}
		views = append(views, v)
	}
	return views, nil
}
