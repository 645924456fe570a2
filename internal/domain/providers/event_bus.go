package providers

import (
	"context"
	"strings"

	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
)

// EventPublisher is the write side of the bus used by the negotiation flow
type EventPublisher interface {
	Publish(ctx context.Context, channel string, event *entities.NotificationEvent) error
}

// EventBus defines the interface for publishing and subscribing to events
type EventBus interface {
	EventPublisher

	// Subscribe subscribes to events on a channel
	Subscribe(ctx context.Context, channel string) (<-chan *entities.NotificationEvent, error)

	// Unsubscribe unsubscribes from a channel
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

const (
	// EventChannelAppointments carries every negotiation event
	EventChannelAppointments = "appointments:events"

	// EventChannelClinicPrefix is the prefix for clinic-specific channels
	EventChannelClinicPrefix = "clinic:"

	eventChannelClinicSuffix = ":appointments"

	// EventChannelClinicPattern matches every clinic channel
	EventChannelClinicPattern = EventChannelClinicPrefix + "*" + eventChannelClinicSuffix
)

// GetClinicChannel returns the channel name for a specific clinic
func GetClinicChannel(clinicID string) string {
	return EventChannelClinicPrefix + clinicID + eventChannelClinicSuffix
}

// ClinicIDFromChannel extracts the clinic id from a clinic channel name
func ClinicIDFromChannel(channel string) (string, bool) {
	if len(channel) <= len(EventChannelClinicPrefix)+len(eventChannelClinicSuffix) ||
		!strings.HasPrefix(channel, EventChannelClinicPrefix) || !strings.HasSuffix(channel, eventChannelClinicSuffix) {
		return "", false
	}
	return channel[len(EventChannelClinicPrefix) : len(channel)-len(eventChannelClinicSuffix)], true
}
