// Package chat keeps track of which live connections are subscribed to which
// request room and fans events out to them.
package chat

import (
	"encoding/json"
	"sync"

	"github.com/Baaaki/mealmender/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	EventJoinRoom       = "joinRoom"
	EventSendMessage    = "sendMessage"
	EventTyping         = "typing"
	EventChatHistory    = "chatHistory"
	EventReceiveMessage = "receiveMessage"
	EventError          = "error"
)

const DefaultBuffer = 64

// Event is one outbound frame. Data is encoded once and shared by every
// recipient.
type Event struct {
	Type string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

func NewEvent(eventType string, data interface{}) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Data: raw}, nil
}

// Subscriber is one live connection. Events are queued on a buffered channel
// and dropped when the consumer falls behind.
type Subscriber struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Username string

	send chan Event
}

func NewSubscriber(userID uuid.UUID, username string, buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Subscriber{
		ID:       uuid.New(),
		UserID:   userID,
		Username: username,
		send:     make(chan Event, buffer),
	}
}

func (s *Subscriber) Events() <-chan Event {
	return s.send
}

// Deliver queues e without blocking and reports whether it was accepted.
func (s *Subscriber) Deliver(e Event) bool {
	select {
	case s.send <- e:
		return true
	default:
		return false
	}
}

type Hub struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]map[*Subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[uuid.UUID]map[*Subscriber]struct{})}
}

func (h *Hub) Join(room uuid.UUID, sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Subscriber]struct{})
		h.rooms[room] = members
	}
	members[sub] = struct{}{}
}

func (h *Hub) Leave(room uuid.UUID, sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(room, sub)
}

// LeaveAll drops sub from every room and returns the rooms it was in.
func (h *Hub) LeaveAll(sub *Subscriber) []uuid.UUID {
	h.mu.Lock()
	defer h.mu.Unlock()

	var left []uuid.UUID
	for room, members := range h.rooms {
		if _, ok := members[sub]; ok {
			h.leaveLocked(room, sub)
			left = append(left, room)
		}
	}
	return left
}

func (h *Hub) leaveLocked(room uuid.UUID, sub *Subscriber) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, sub)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) IsMember(room uuid.UUID, sub *Subscriber) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][sub]
	return ok
}

func (h *Hub) RoomSize(room uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Broadcast delivers e to every subscriber of room except the given one (nil
// for none) and returns how many accepted it.
func (h *Hub) Broadcast(room uuid.UUID, e Event, except *Subscriber) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.rooms[room] {
		if sub == except {
			continue
		}
		if sub.Deliver(e) {
			delivered++
			continue
		}
		logger.Log.Warn("Dropped chat event for slow subscriber",
			zap.String("room", room.String()),
			zap.String("user_id", sub.UserID.String()),
			zap.String("event", e.Type),
		)
	}
	return delivered
}
