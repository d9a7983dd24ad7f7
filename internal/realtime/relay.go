package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/sharifulalam-dev/todoserver/internal/model"
)

const reconnectDelay = time.Second

// RedisRelay shares one broadcast domain between server processes. Events
// are published to a Redis channel and every process feeds what it receives
// into its local Hub.
type RedisRelay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *slog.Logger
}

func NewRedisRelay(client *redis.Client, channel string, hub *Hub, logger *slog.Logger) *RedisRelay {
	return &RedisRelay{client: client, channel: channel, hub: hub, logger: logger}
}

// Publish sends ev through Redis. When Redis is unreachable the event is
// delivered to local viewers only.
func (r *RedisRelay) Publish(ctx context.Context, ev model.TaskEvent) {
	data, err := sonic.Marshal(ev)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to encode task event", slog.Any("error", err))
		return
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		r.logger.WarnContext(ctx, "redis publish failed, delivering locally",
			slog.String("event", string(ev.Type)),
			slog.Any("error", err),
		)
		r.hub.Publish(ctx, ev)
	}
}

// Run subscribes to the channel until ctx is done, reconnecting whenever the
// subscription drops.
func (r *RedisRelay) Run(ctx context.Context) error {
	for {
		if err := r.consume(ctx); err != nil {
			r.logger.WarnContext(ctx, "redis subscription lost, reconnecting", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

func (r *RedisRelay) consume(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.logger.InfoContext(ctx, "relay subscribed", slog.String("channel", r.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("pubsub channel %s closed", r.channel)
			}
			var ev model.TaskEvent
			if err := sonic.UnmarshalString(msg.Payload, &ev); err != nil {
				r.logger.ErrorContext(ctx, "unable to parse relayed event", slog.Any("error", err))
				continue
			}
			r.hub.Publish(ctx, ev)
		}
	}
}
