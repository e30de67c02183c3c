package realtime

import (
	"context"
	"fmt"
	"strings"

	"fast-queue/internal/logger"

	"github.com/go-redis/redis/v8"
)

const relayChannelPrefix = "fastqueue:queue:"

// RedisRelay carries queue messages between instances over redis pub/sub.
// Every instance, the publisher included, delivers what it receives to its
// own registry, so each subscriber sees a message once.
type RedisRelay struct {
	Client *redis.Client
	Logger *logger.Logger
}

func NewRedisRelay(client *redis.Client, log *logger.Logger) *RedisRelay {
	if log == nil {
		log = logger.Discard()
	}
	return &RedisRelay{Client: client, Logger: log}
}

func RelayChannel(queueID string) string {
	return relayChannelPrefix + queueID
}

func (r *RedisRelay) Publish(ctx context.Context, queueID string, msg []byte) error {
	return r.Client.Publish(ctx, RelayChannel(queueID), msg).Err()
}

// Run feeds relayed messages to deliver until ctx ends.
func (r *RedisRelay) Run(ctx context.Context, deliver func(queueID string, msg []byte)) error {
	pubsub := r.Client.PSubscribe(ctx, relayChannelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe relay: %w", err)
	}
	r.Logger.Info("REDIS", fmt.Sprintf("Realtime relay subscribed to %s*", relayChannelPrefix))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			deliver(strings.TrimPrefix(m.Channel, relayChannelPrefix), []byte(m.Payload))
		}
	}
}
