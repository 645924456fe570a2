package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
	"github.com/zatekoja/clinicscheduler/internal/domain/providers"
)

// MetricsRecorder receives domain counters. observability.Metrics implements it.
type MetricsRecorder interface {
	RecordTransition(ctx context.Context, from, to string)
	RecordContention(ctx context.Context, kind string)
	RecordDispatchFailure(ctx context.Context, eventType string)
}

type noopMetrics struct{}

func (noopMetrics) RecordTransition(context.Context, string, string) {}
func (noopMetrics) RecordContention(context.Context, string)         {}
func (noopMetrics) RecordDispatchFailure(context.Context, string)    {}

// EventDispatcher hands committed transition events to the bus. Dispatch is
// fire-and-forget: failures are logged and never reach the caller.
type EventDispatcher struct {
	publisher providers.EventPublisher
	timeout   time.Duration
	logger    zerolog.Logger
	metrics   MetricsRecorder
}

// NewEventDispatcher creates a dispatcher. A nil publisher only logs events.
func NewEventDispatcher(publisher providers.EventPublisher, timeout time.Duration, logger zerolog.Logger, metrics MetricsRecorder) *EventDispatcher {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &EventDispatcher{
		publisher: publisher,
		timeout:   timeout,
		logger:    logger.With().Str("component", "event_dispatcher").Logger(),
		metrics:   metrics,
	}
}

// Dispatch publishes event on the global and clinic channels
func (d *EventDispatcher) Dispatch(ctx context.Context, event *entities.NotificationEvent) {
	if event == nil {
		return
	}

	logger := d.logger.With().
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Str("appointment_id", event.AppointmentID).
		Logger()

	if d.publisher == nil {
		logger.Debug().Msg("no event publisher configured, dropping event")
		return
	}

	// The request may finish before publishing does.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	channels := []string{providers.EventChannelAppointments, providers.GetClinicChannel(event.Clinic.ID)}
	for _, ch := range channels {
		if err := d.publisher.Publish(pubCtx, ch, event); err != nil {
			d.metrics.RecordDispatchFailure(pubCtx, string(event.Type))
			logger.Warn().Err(err).Str("channel", ch).Msg("failed to publish appointment event")
		}
	}
}
