package realtime

import (
	"context"
	"fmt"
	"log"

	"livechat-backend/internal/dto"

	"github.com/go-redis/redis/v8"
)

// RedisBroker publishes over Redis PUBLISH/SUBSCRIBE, so every server process sharing the
// Redis instance sees every event.
type RedisBroker struct {
	client *redis.Client
	owned  bool
}

func NewRedisBroker(addr, password string) *RedisBroker {
	return &RedisBroker{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       0,
		}),
		owned: true,
	}
}

// NewRedisBrokerWithClient reuses an existing client; Close leaves it open.
func NewRedisBrokerWithClient(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, event dto.Event) error {
	payload, err := encodeEvent(event)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("realtime: redis publish %s: %w", channel, err)
	}
	eventsPublished.WithLabelValues("redis", string(event.Type)).Inc()
	return nil
}

// Subscribe returns once Redis has confirmed the subscription.
func (b *RedisBroker) Subscribe(ctx context.Context, channel string, handler Handler) (*Subscription, error) {
	pubsub := b.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("realtime: redis subscribe %s: %w", channel, err)
	}

	messages := pubsub.Channel()
	stopped := make(chan struct{})
	sub := newSubscription(channel, func() {
		close(stopped)
		if err := pubsub.Close(); err != nil {
			log.Printf("[realtime] closing redis subscription %s: %v", channel, err)
		}
	})

	go func() {
		for {
			select {
			case <-stopped:
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				event, err := decodeEvent([]byte(msg.Payload))
				if err != nil {
					log.Printf("[realtime] dropping malformed payload on %s: %v", channel, err)
					continue
				}
				select {
				case <-stopped:
					return
				default:
				}
				deliver(channel, handler, event)
			}
		}
	}()

	return sub, nil
}

func (b *RedisBroker) Close() error {
	if !b.owned {
		return nil
	}
	return b.client.Close()
}
