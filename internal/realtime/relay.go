package realtime

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher sends a payload on a named channel. persistence.Redis and Hub both satisfy it.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Subscriber opens a Redis subscription.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (*redis.PubSub, error)
}

// StatusPublisher pushes serialized queue status snapshots to the status channel.
type StatusPublisher struct {
	publisher Publisher
	channel   string
}

// NewStatusPublisher binds publisher to channel.
func NewStatusPublisher(publisher Publisher, channel string) *StatusPublisher {
	return &StatusPublisher{publisher: publisher, channel: channel}
}

// Channel returns the channel status snapshots are published on.
func (p *StatusPublisher) Channel() string {
	return p.channel
}

// Publish sends payload to the status channel.
func (p *StatusPublisher) Publish(ctx context.Context, payload []byte) error {
	return p.publisher.Publish(ctx, p.channel, payload)
}

// RunRelay forwards every message on channel to hub until ctx is cancelled. Every instance runs one
// relay, so a status published by any instance reaches all connected displays.
func RunRelay(ctx context.Context, sub Subscriber, channel string, hub *Hub, logger *zap.Logger) error {
	pubsub, err := sub.Subscribe(ctx, channel)
	if err != nil {
		return err
	}
	defer pubsub.Close()

	logger.Info("status relay subscribed", zap.String("channel", channel))
	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			hub.Broadcast([]byte(msg.Payload))
		}
	}
}
