package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Run event types carried on the bus
const (
	TypeRunStatus = "run_status" // Run-level status change
	TypeRunStep   = "run_step"   // Sub-agent step started/finished
	TypeMessage   = "message"    // New persisted chat message
)

// runEventChannel is the Redis pub/sub channel connecting workers to the
// API process's WebSocket hub
const runEventChannel = "relayd:run_events"

// RunEvent is one progress notification emitted during a pipeline run
type RunEvent struct {
	Type           string `json:"type"`
	RunID          string `json:"run_id"`
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status,omitempty"`
	AgentName      string `json:"agent_name,omitempty"`
	Sequence       int    `json:"sequence,omitempty"`
	Fallback       bool   `json:"fallback,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Publisher emits run events
type Publisher interface {
	PublishRunEvent(ctx context.Context, event RunEvent) error
}

// Bus is the Redis-backed event bridge
// Workers publish; the API process subscribes and forwards to WebSocket
// subscribers.
type Bus struct {
	rdb    *redis.Client
	logger zerolog.Logger
}

// NewBus connects to Redis at the given address
func NewBus(redisAddr string, logger zerolog.Logger) *Bus {
	return &Bus{
		rdb:    redis.NewClient(&redis.Options{Addr: redisAddr}),
		logger: logger.With().Str("component", "event_bus").Logger(),
	}
}

// Close releases the Redis connection
func (b *Bus) Close() error {
	return b.rdb.Close()
}

// PublishRunEvent sends one event to the run event channel
func (b *Bus) PublishRunEvent(ctx context.Context, event RunEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal run event: %w", err)
	}

	if err := b.rdb.Publish(ctx, runEventChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish run event: %w", err)
	}
	return nil
}

// Subscribe consumes run events until the context is canceled
// Malformed payloads are logged and skipped; the subscription survives.
func (b *Bus) Subscribe(ctx context.Context, handler func(RunEvent)) error {
	sub := b.rdb.Subscribe(ctx, runEventChannel)
	defer sub.Close()

	ch := sub.Channel()
	b.logger.Info().Str("channel", runEventChannel).Msg("Subscribed to run events")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("run event subscription closed")
			}
			var event RunEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn().Err(err).Msg("Skipping malformed run event")
				continue
			}
			handler(event)
		}
	}
}
