package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"log/slog"

	redis "github.com/redis/go-redis/v9"
)

const channelPrefix = "werkplaats:changes:"

type redisBus struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisBus connects a bus to Redis pub/sub so notifications reach
// clients on other gateway instances.
func NewRedisBus(addr, password string, db int, logger *slog.Logger) (Bus, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect bus redis: %w", err)
	}
	return &redisBus{client: client, logger: logger}, nil
}

func channelName(table Table, teamID string) string {
	return channelPrefix + string(table) + ":" + teamID
}

func (b *redisBus) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channelName(event.Table, event.TeamID), payload).Err()
}

func (b *redisBus) Subscribe(teamID string, fn Handler) (Subscription, error) {
	channels := []string{
		channelName(TableProjects, teamID),
		channelName(TableTasks, teamID),
		channelName(TableChat, teamID),
	}
	pubsub := b.client.Subscribe(context.Background(), channels...)
	// Force the SUBSCRIBE round trip so a failed connection surfaces
	// here instead of as silently missing events.
	if _, err := pubsub.Receive(context.Background()); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	sub := &redisSubscription{pubsub: pubsub}
	go func() {
		for msg := range pubsub.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn("dropping malformed bus event", "channel", msg.Channel, "error", err)
				continue
			}
			fn(event)
		}
	}()
	return sub, nil
}

// Ping verifies the Redis connection for health reporting.
func (b *redisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *redisBus) Close() error {
	return b.client.Close()
}

type redisSubscription struct {
	pubsub *redis.PubSub
}

func (s *redisSubscription) Close() error {
	return s.pubsub.Close()
}
