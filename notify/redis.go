package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const DefaultChannel = "cadence:events"

// RedisRelay shares events between API instances. Publish sends the event
// to a Redis channel; Run feeds every message on that channel, including
// this instance's own, into the local hub.
type RedisRelay struct {
	client  *redis.Client
	hub     *Hub
	channel string
	logger  *logrus.Entry
}

func NewRedisRelay(client *redis.Client, hub *Hub, logger *logrus.Entry) *RedisRelay {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &RedisRelay{
		client:  client,
		hub:     hub,
		channel: DefaultChannel,
		logger:  logger,
	}
}

func (r *RedisRelay) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Run blocks until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	r.logger.WithField("channel", r.channel).Info("Redis relay started")
	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Redis relay stopping")
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.logger.WithError(err).Warn("Dropping malformed event")
				continue
			}
			_ = r.hub.Publish(ctx, event)
		}
	}
}
