// internal/realtime/bus.go
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"notification-pipeline/internal/common/config"
	"notification-pipeline/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the bus channel carrying cross-process emits.
const DefaultChannel = "socket:emit"

// Message is the cross-process emit envelope.
type Message struct {
	Room  string          `json:"room"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Handler receives raw bus payloads.
type Handler func(payload []byte)

// Bus relays messages between processes. Subscribe returns once the subscription is live
// and delivers until ctx ends.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// NoopBus drops everything. Used when a single process hosts both sides.
type NoopBus struct{}

func (NoopBus) Publish(context.Context, string, []byte) error  { return nil }
func (NoopBus) Subscribe(context.Context, string, Handler) error { return nil }
func (NoopBus) Close() error                                     { return nil }

// RedisBus is a Bus over Redis PUBLISH/SUBSCRIBE.
type RedisBus struct {
	client *redis.Client
	logger logger.Logger

	mu   sync.Mutex
	subs []*redis.PubSub
}

func NewRedisBus(client *redis.Client, log logger.Logger) *RedisBus {
	return &RedisBus{client: client, logger: logger.Component(log, "redis-bus")}
}

func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, channel string, handler Handler) error {
	ps := b.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("subscribe to %s: %w", channel, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, ps)
	b.mu.Unlock()

	b.logger.Info("subscribed to bus channel", map[string]interface{}{"channel": channel})

	go func() {
		defer ps.Close()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()
	return nil
}

func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ps := range b.subs {
		_ = ps.Close()
	}
	b.subs = nil
	return nil
}

// OpenBus builds the bus named by cfg.Bus.
func OpenBus(ctx context.Context, cfg config.RealtimeConfig, rdb *redis.Client, log logger.Logger) (Bus, error) {
	switch cfg.Bus {
	case "", "redis":
		return NewRedisBus(rdb, log), nil
	case "pubsub":
		bus, err := NewPubSubBus(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicID, cfg.PubSub.SubscriptionID, log)
		if err != nil {
			return nil, err
		}
		return bus, nil
	case "noop":
		return NoopBus{}, nil
	default:
		return nil, fmt.Errorf("unsupported realtime bus %q", cfg.Bus)
	}
}
