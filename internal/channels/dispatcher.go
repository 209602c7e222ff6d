// internal/channels/dispatcher.go
package channels

import (
	"context"
	"time"

	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/common/metrics"
	"notification-pipeline/internal/models"
)

// Message is rendered content addressed to one user on one channel.
type Message struct {
	NotificationID string
	TenantID       string
	AppID          string
	UserID         string
	Event          string
	Email          string
	Mobile         string
	Subject        string
	Body           string
	Data           map[string]interface{}
	CreatedAt      time.Time
}

// Outcome is the result of a dispatch that did not raise.
type Outcome struct {
	Status        models.DeliveryStatus
	Provider      string
	Succeeded     int
	Failed        int
	InvalidTokens []string
	Error         string
	// Persisted is set when the dispatcher already wrote the notification row.
	Persisted bool
}

// Dispatcher sends a message over one channel.
type Dispatcher interface {
	Channel() models.Channel
	Send(ctx context.Context, msg Message) (*Outcome, error)
}

// Registry selects the dispatcher for a channel.
type Registry struct {
	byChannel map[models.Channel]Dispatcher
}

func NewRegistry(dispatchers ...Dispatcher) *Registry {
	r := &Registry{byChannel: make(map[models.Channel]Dispatcher, len(dispatchers))}
	for _, d := range dispatchers {
		r.byChannel[d.Channel()] = d
	}
	return r
}

// For returns the dispatcher registered for channel.
func (r *Registry) For(channel models.Channel) (Dispatcher, error) {
	d, ok := r.byChannel[channel]
	if !ok {
		return nil, apperrors.NewConfigurationError("no dispatcher for channel "+string(channel), nil)
	}
	return d, nil
}

func recordOutcome(channel models.Channel, provider string, err error) {
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	if provider == "" {
		provider = "unknown"
	}
	metrics.DispatchOutcomes.WithLabelValues(string(channel), provider, outcome).Inc()
}
