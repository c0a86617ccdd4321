package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultEventChannel is the Redis channel outbox entries are published on.
const DefaultEventChannel = "tripbook.events"

type envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// RedisPublisher delivers outbox entries over Redis pub/sub. Subscribers get
// a JSON envelope carrying the event id, type tag, and raw payload.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultEventChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Handle(ctx context.Context, entry OutboxEntry) error {
	if p.client == nil {
		return fmt.Errorf("events: redis client not configured")
	}
	data, err := json.Marshal(envelope{
		ID:        entry.ID.String(),
		Type:      entry.Type,
		Payload:   entry.Payload,
		CreatedAt: entry.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("events: publish %s: %w", entry.Type, err)
	}
	return nil
}
