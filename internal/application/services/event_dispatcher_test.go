package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/zatekoja/clinicscheduler/internal/application/services"
	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
	"github.com/zatekoja/clinicscheduler/internal/domain/providers"
)

func TestEventDispatcher_Dispatch(t *testing.T) {
	event := &entities.NotificationEvent{
		ID:            "evt-1",
		Type:          entities.NotificationConfirmation,
		AppointmentID: "appt-1",
		Clinic:        entities.Party{ID: "clinic-1"},
	}

	t.Run("publishes to the global and clinic channels", func(t *testing.T) {
		publisher := new(MockEventPublisher)
		publisher.On("Publish", mock.Anything, providers.EventChannelAppointments, event).Return(nil)
		publisher.On("Publish", mock.Anything, "clinic:clinic-1:appointments", event).Return(nil)

		services.NewEventDispatcher(publisher, time.Second, zerolog.Nop(), nil).Dispatch(context.Background(), event)

		publisher.AssertExpectations(t)
	})

	t.Run("survives a cancelled request context", func(t *testing.T) {
		publisher := new(MockEventPublisher)
		publisher.On("Publish", mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil }), mock.Anything, event).
			Return(nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		services.NewEventDispatcher(publisher, time.Second, zerolog.Nop(), nil).Dispatch(ctx, event)

		publisher.AssertNumberOfCalls(t, "Publish", 2)
	})

	t.Run("records failures without returning them", func(t *testing.T) {
		publisher := new(MockEventPublisher)
		publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker unavailable"))
		metrics := new(MockMetrics)
		metrics.On("RecordDispatchFailure", mock.Anything, string(entities.NotificationConfirmation)).Return()

		services.NewEventDispatcher(publisher, time.Second, zerolog.Nop(), metrics).Dispatch(context.Background(), event)

		metrics.AssertNumberOfCalls(t, "RecordDispatchFailure", 2)
	})

	t.Run("nil publisher and nil event are ignored", func(t *testing.T) {
		d := services.NewEventDispatcher(nil, 0, zerolog.Nop(), nil)
		assert.NotPanics(t, func() {
			d.Dispatch(context.Background(), event)
			d.Dispatch(context.Background(), nil)
		})
	})
}
