package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Baaaki/mealmender/internal/chat"
	"github.com/Baaaki/mealmender/pkg/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const ChatChannel = "mealmender:chat"

type envelope struct {
	Origin string     `json:"origin"`
	Room   uuid.UUID  `json:"room"`
	Event  chat.Event `json:"event"`
}

// RedisRoomBroker fans room events out over Redis pub/sub. Each node tags what
// it publishes with its own id and ignores those frames when they come back.
type RedisRoomBroker struct {
	client  *redis.Client
	nodeID  string
	channel string
}

// NewRedisClient parses url and checks the server answers.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func NewRedisRoomBroker(client *redis.Client) *RedisRoomBroker {
	return &RedisRoomBroker{
		client:  client,
		nodeID:  uuid.NewString(),
		channel: ChatChannel,
	}
}

func (b *RedisRoomBroker) NodeID() string {
	return b.nodeID
}

func (b *RedisRoomBroker) Publish(ctx context.Context, room uuid.UUID, e chat.Event) error {
	data, err := json.Marshal(envelope{Origin: b.nodeID, Room: room, Event: e})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, data).Err()
}

func (b *RedisRoomBroker) Relay(ctx context.Context, sink Broadcaster) error {
	pubsub := b.client.Subscribe(ctx, b.channel)

	// Wait for the subscription confirmation so nothing published after
	// Relay returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	go func() {
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.forward(msg.Payload, sink)
			}
		}
	}()

	logger.Log.Info("Chat relay subscribed",
		zap.String("channel", b.channel),
		zap.String("node_id", b.nodeID),
	)
	return nil
}

func (b *RedisRoomBroker) forward(payload string, sink Broadcaster) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		logger.Log.Warn("Dropping malformed chat relay frame", zap.Error(err))
		return
	}
	if env.Origin == b.nodeID {
		return
	}
	sink.Broadcast(env.Room, env.Event, nil)
}

// Close does not close the shared client; the owner of the client does that.
func (b *RedisRoomBroker) Close() error {
	return nil
}
