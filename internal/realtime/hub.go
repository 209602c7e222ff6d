// internal/realtime/hub.go
package realtime

import (
	"encoding/json"
	"sync"

	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/common/metrics"
)

// Room is the delivery target of one user: tenantId:appId:userId.
func Room(tenantID, appID, userID string) string {
	return tenantID + ":" + appID + ":" + userID
}

// Frame is what a connected client receives.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Subscriber is one live connection.
type Subscriber interface {
	// Deliver queues a frame without blocking. It reports false when the connection is saturated.
	Deliver(frame []byte) bool
}

// Hub tracks the live connections of this process by room.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[Subscriber]struct{}
	logger logger.Logger
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[Subscriber]struct{}),
		logger: logger.Component(log, "realtime-hub"),
	}
}

func (h *Hub) Join(room string, s Subscriber) {
	h.mu.Lock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[Subscriber]struct{})
		h.rooms[room] = members
	}
	members[s] = struct{}{}
	h.mu.Unlock()
	metrics.RealtimeConnections.Inc()
}

func (h *Hub) Leave(room string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	if _, ok := members[s]; !ok {
		return
	}
	delete(members, s)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	metrics.RealtimeConnections.Dec()
}

// Members returns the number of connections joined to room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Broadcast sends an event to every local member of room and returns how many accepted it.
func (h *Hub) Broadcast(room, event string, data json.RawMessage) int {
	frame, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		h.logger.Warn("failed to encode frame", map[string]interface{}{"room": room, "error": err.Error()})
		return 0
	}

	h.mu.RLock()
	members := make([]Subscriber, 0, len(h.rooms[room]))
	for s := range h.rooms[room] {
		members = append(members, s)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range members {
		if s.Deliver(frame) {
			delivered++
			continue
		}
		h.logger.Warn("dropping frame for slow connection", map[string]interface{}{"room": room, "event": event})
	}
	return delivered
}
