package broker

import (
	"context"

	"github.com/Baaaki/mealmender/internal/chat"
	"github.com/google/uuid"
)

// RoomBroker carries room events between server nodes. A nil broker means a
// single-node deployment and events stay in the local hub.
type RoomBroker interface {
	Publish(ctx context.Context, room uuid.UUID, e chat.Event) error
	// Relay subscribes and forwards events published by other nodes into sink
	// until ctx is cancelled. It returns once the subscription is live.
	Relay(ctx context.Context, sink Broadcaster) error
	Close() error
}

// Broadcaster is satisfied by *chat.Hub.
type Broadcaster interface {
	Broadcast(room uuid.UUID, e chat.Event, except *chat.Subscriber) int
}
