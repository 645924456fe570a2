package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
	"github.com/zatekoja/clinicscheduler/internal/domain/providers"
)

// EventHandler consumes one appointment event
type EventHandler interface {
	Deliver(ctx context.Context, event *entities.NotificationEvent) error
}

// NotificationRelay feeds events from the bus to a handler
type NotificationRelay struct {
	eventBus providers.EventBus
	handler  EventHandler
	timeout  time.Duration
	logger   zerolog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewNotificationRelay creates a new notification relay
func NewNotificationRelay(eventBus providers.EventBus, handler EventHandler, logger zerolog.Logger) *NotificationRelay {
	ctx, cancel := context.WithCancel(context.Background())
	return &NotificationRelay{
		eventBus: eventBus,
		handler:  handler,
		timeout:  30 * time.Second,
		logger:   logger.With().Str("component", "notification_relay").Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins listening for appointment events
func (r *NotificationRelay) Start() error {
	eventChan, err := r.eventBus.Subscribe(r.ctx, providers.EventChannelAppointments)
	if err != nil {
		return fmt.Errorf("failed to subscribe to appointment events: %w", err)
	}

	r.wg.Add(1)
	go r.processEvents(eventChan)
	r.logger.Info().Str("channel", providers.EventChannelAppointments).Msg("notification relay started")
	return nil
}

// Stop stops the relay and waits for the event in flight
func (r *NotificationRelay) Stop() {
	r.cancel()
	r.wg.Wait()
	r.logger.Info().Msg("notification relay stopped")
}

func (r *NotificationRelay) processEvents(eventChan <-chan *entities.NotificationEvent) {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if event == nil {
				continue
			}
			r.handleEvent(event)
		}
	}
}

func (r *NotificationRelay) handleEvent(event *entities.NotificationEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), r.timeout)
	defer cancel()

	logger := r.logger.With().
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Str("appointment_id", event.AppointmentID).
		Logger()

	logger.Debug().Msg("relaying appointment event")
	if err := r.handler.Deliver(ctx, event); err != nil {
		logger.Error().Err(err).Msg("failed to deliver appointment event")
	}
}
