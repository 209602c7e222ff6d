// internal/realtime/pubsub_bus.go
package realtime

import (
	"context"
	"fmt"

	"notification-pipeline/internal/common/logger"

	"cloud.google.com/go/pubsub/v2"
	pubsubpb "cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/pkg/errors"
)

const channelAttribute = "channel"

// PubSubBus is a Bus over Google Cloud Pub/Sub. Each transport process needs its own
// subscription on the topic so every process sees every message.
type PubSubBus struct {
	client         *pubsub.Client
	publisher      *pubsub.Publisher
	subscriptionID string
	logger         logger.Logger
}

func NewPubSubBus(ctx context.Context, projectID, topicID, subscriptionID string, log logger.Logger) (*PubSubBus, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	topicPath := fmt.Sprintf("projects/%s/topics/%s", projectID, topicID)
	if _, err := client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: topicPath}); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "failed to get topic %s", topicID)
	}

	return &PubSubBus{
		client:         client,
		publisher:      client.Publisher(topicID),
		subscriptionID: subscriptionID,
		logger:         logger.Component(log, "pubsub-bus"),
	}, nil
}

func (b *PubSubBus) Publish(ctx context.Context, channel string, payload []byte) error {
	result := b.publisher.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: map[string]string{channelAttribute: channel},
	})
	if _, err := result.Get(ctx); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (b *PubSubBus) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if b.subscriptionID == "" {
		return errors.New("pubsub subscription id is required to subscribe")
	}
	sub := b.client.Subscriber(b.subscriptionID)

	go func() {
		err := sub.Receive(ctx, func(_ context.Context, m *pubsub.Message) {
			defer m.Ack()
			if m.Attributes[channelAttribute] != channel {
				return
			}
			handler(m.Data)
		})
		if err != nil && ctx.Err() == nil {
			b.logger.Error("pubsub receive stopped", map[string]interface{}{"error": err.Error()})
		}
	}()

	b.logger.Info("subscribed to bus channel", map[string]interface{}{
		"channel":      channel,
		"subscription": b.subscriptionID,
	})
	return nil
}

func (b *PubSubBus) Close() error {
	if b.publisher != nil {
		b.publisher.Stop()
	}
	if b.client != nil {
		return errors.WithStack(b.client.Close())
	}
	return nil
}
