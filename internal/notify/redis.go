package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisNotifier publishes events to per-user redis channels so that
// every running instance can serve the push stream for any user. Pair
// it with Bridge, which feeds the subscribed channels back into the
// local hub (including events this instance published itself).
type RedisNotifier struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

func NewRedisNotifier(client *redis.Client, prefix string, logger *zap.Logger) *RedisNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "signaldrop"
	}
	return &RedisNotifier{client: client, prefix: prefix, logger: logger}
}

func (n *RedisNotifier) channel(userID string) string {
	return fmt.Sprintf("%s:user:%s", n.prefix, userID)
}

func (n *RedisNotifier) Publish(ctx context.Context, userID, event string, payload any) error {
	if n == nil || n.client == nil {
		return nil
	}
	msg, err := json.Marshal(Event{Event: event, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal push event: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel(userID), msg).Err(); err != nil {
		return fmt.Errorf("publish push event: %w", err)
	}
	return nil
}

// Bridge subscribes to every per-user channel and replays incoming
// events into the local hub until the context is cancelled.
func (n *RedisNotifier) Bridge(ctx context.Context, hub *Hub) error {
	if n == nil || n.client == nil || hub == nil {
		return nil
	}
	pattern := n.prefix + ":user:*"
	sub := n.client.PSubscribe(ctx, pattern)
	defer sub.Close()

	n.logger.Info("push bridge subscribed", zap.String("pattern", pattern))
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("push bridge subscription closed")
			}
			userID := strings.TrimPrefix(msg.Channel, n.prefix+":user:")
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				n.logger.Warn("push bridge received malformed event",
					zap.String("channel", msg.Channel),
					zap.Error(err))
				continue
			}
			_ = hub.Publish(ctx, userID, ev.Event, ev.Payload)
		}
	}
}

var _ Notifier = (*RedisNotifier)(nil)
