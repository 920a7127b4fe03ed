package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// redisPublisher is the part of *redis.Client the publisher uses.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// PublishRecorder observes publish results.
type PublishRecorder interface {
	EventPublished(backend string, ok bool)
}

// RedisPublisher publishes events with PUBLISH on "<prefix>:<project id>".
type RedisPublisher struct {
	client   redisPublisher
	closer   func() error
	prefix   string
	logger   *slog.Logger
	recorder PublishRecorder
}

// NewRedisPublisher connects to the redis server at url.
func NewRedisPublisher(url, prefix string, logger *slog.Logger, recorder PublishRecorder) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	p := newRedisPublisher(client, prefix, logger, recorder)
	p.closer = client.Close
	return p, nil
}

func newRedisPublisher(client redisPublisher, prefix string, logger *slog.Logger, recorder PublishRecorder) *RedisPublisher {
	return &RedisPublisher{
		client:   client,
		closer:   func() error { return nil },
		prefix:   prefix,
		logger:   logger.With("component", "redis_event_publisher"),
		recorder: recorder,
	}
}

// Channel returns the channel events for projectID are published on.
func (p *RedisPublisher) Channel(event *Event) string {
	return p.prefix + ":" + event.ProjectID.String()
}

// EmitEvent implements EventEmitter.
func (p *RedisPublisher) EmitEvent(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.client.Publish(ctx, p.Channel(event), body).Err()
	if p.recorder != nil {
		p.recorder.EventPublished("redis", err == nil)
	}
	if err != nil {
		p.logger.Warn("failed to publish event",
			"error", err,
			"event_type", event.Type,
			"project_id", event.ProjectID)
		return fmt.Errorf("failed to publish event to redis: %w", err)
	}
	return nil
}

// Close closes the redis client.
func (p *RedisPublisher) Close() error {
	return p.closer()
}
