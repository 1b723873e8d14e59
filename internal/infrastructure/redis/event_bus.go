package redis

import (
	"context"
	"encoding/json"

	"flowengine/internal/domain"

	"github.com/redis/go-redis/v9"
)

type EventBus struct {
	client  *redis.Client
	channel string
}

func NewEventBus(client *redis.Client) *EventBus {
	return &EventBus{
		client:  client,
		channel: "flow:events:job_completed",
	}
}

// PublishJobCompleted broadcasts a background-job completion to the network
func (b *EventBus) PublishJobCompleted(ctx context.Context, event domain.BackgroundJobCompletedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// SubscribeJobCompleted opens a continuous stream for the completion listener
func (b *EventBus) SubscribeJobCompleted(ctx context.Context) (<-chan domain.BackgroundJobCompletedEvent, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)

	msgChan := make(chan domain.BackgroundJobCompletedEvent)

	// Background goroutine forwards Redis messages to the Go channel
	go func() {
		defer close(msgChan)
		for {
			select {
			case <-ctx.Done(): // Handle shutdown gracefully
				pubsub.Close()
				return
			default:
				msg, err := pubsub.ReceiveMessage(ctx)
				if err == nil {
					var event domain.BackgroundJobCompletedEvent
					if err := json.Unmarshal([]byte(msg.Payload), &event); err == nil {
						msgChan <- event
					}
				}
			}
		}
	}()

	return msgChan, nil
}
