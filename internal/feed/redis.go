package feed

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultChannel is the pub/sub channel presence notifications arrive on.
const DefaultChannel = "playtime:presence"

// RedisSource consumes presence notifications from a Redis pub/sub channel.
type RedisSource struct {
	client  *redis.Client
	channel string
	handler EventHandler
	logger  zerolog.Logger
}

// NewRedisSource creates a source reading channel.
func NewRedisSource(client *redis.Client, channel string, handler EventHandler, logger zerolog.Logger) *RedisSource {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSource{
		client:  client,
		channel: channel,
		handler: handler,
		logger:  logger.With().Str("component", "feed").Str("source", "redis").Logger(),
	}
}

// Run subscribes and handles messages in arrival order until ctx is done.
func (s *RedisSource) Run(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer func() { _ = pubsub.Close() }()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe to %s: %w", s.channel, err)
	}

	s.logger.Info().Str("channel", s.channel).Msg("Subscribed to presence feed")

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Presence feed stopped")
			return nil
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("subscription to %s closed", s.channel)
			}
			dispatch(ctx, s.handler, "redis", []byte(msg.Payload), s.logger)
		}
	}
}

// RedisPublisher publishes status lines to a Redis channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher creates a publisher writing to channel.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

// Publish sends text to the channel.
func (p *RedisPublisher) Publish(ctx context.Context, text string) error {
	if err := p.client.Publish(ctx, p.channel, text).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}
