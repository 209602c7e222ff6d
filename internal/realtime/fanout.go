// internal/realtime/fanout.go
package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/common/metrics"
	"notification-pipeline/internal/common/observability"
)

// Fanout emits events to user rooms. With a local hub it delivers directly,
// otherwise it publishes on the bus for the transport processes.
type Fanout struct {
	hub     *Hub
	bus     Bus
	channel string
	obs     *observability.Observability
	logger  logger.Logger
}

// NewPublisher builds the fan-out of a process without live connections.
func NewPublisher(bus Bus, channel string, obs *observability.Observability, log logger.Logger) *Fanout {
	return newFanout(nil, bus, channel, obs, log)
}

// NewLocal builds the fan-out of a transport process.
func NewLocal(hub *Hub, bus Bus, channel string, obs *observability.Observability, log logger.Logger) *Fanout {
	return newFanout(hub, bus, channel, obs, log)
}

func newFanout(hub *Hub, bus Bus, channel string, obs *observability.Observability, log logger.Logger) *Fanout {
	if channel == "" {
		channel = DefaultChannel
	}
	if bus == nil {
		bus = NoopBus{}
	}
	return &Fanout{hub: hub, bus: bus, channel: channel, obs: obs, logger: logger.Component(log, "fanout")}
}

// Emit delivers best effort. Only encoding and publish failures are returned.
func (f *Fanout) Emit(ctx context.Context, tenantID, appID, userID, event string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	room := Room(tenantID, appID, userID)

	if f.hub != nil {
		n := f.hub.Broadcast(room, event, raw)
		f.record(ctx, "local")
		f.logger.Debug("emitted locally", map[string]interface{}{"room": room, "event": event, "connections": n})
		return nil
	}

	payload, err := json.Marshal(Message{Room: room, Event: event, Data: raw})
	if err != nil {
		return fmt.Errorf("encode bus message: %w", err)
	}
	if err := f.bus.Publish(ctx, f.channel, payload); err != nil {
		return err
	}
	f.record(ctx, "bus")
	return nil
}

// Relay subscribes to the bus and re-emits every message to local room members.
func (f *Fanout) Relay(ctx context.Context) error {
	if f.hub == nil {
		return fmt.Errorf("relay requires a local hub")
	}
	return f.bus.Subscribe(ctx, f.channel, func(payload []byte) {
		var msg Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			f.logger.Warn("dropping malformed bus message", map[string]interface{}{"error": err.Error()})
			return
		}
		if msg.Room == "" || msg.Event == "" {
			return
		}
		f.hub.Broadcast(msg.Room, msg.Event, msg.Data)
		f.record(ctx, "relay")
	})
}

func (f *Fanout) record(ctx context.Context, path string) {
	metrics.FanoutMessages.WithLabelValues(path).Inc()
	f.obs.RecordFanout(ctx, path)
}
