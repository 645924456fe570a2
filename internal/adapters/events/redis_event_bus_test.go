package events

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
	"github.com/zatekoja/clinicscheduler/internal/domain/providers"
)

func TestFeedKey(t *testing.T) {
	assert.Equal(t, providers.EventChannelClinicPattern, feedKey(providers.GetClinicChannel("c1")))
	assert.Equal(t, providers.EventChannelClinicPattern, feedKey(providers.GetClinicChannel("c2")))
	assert.Equal(t, providers.EventChannelAppointments, feedKey(providers.EventChannelAppointments))
}

func TestBelongsTo(t *testing.T) {
	event := &entities.NotificationEvent{ID: "evt-1", Clinic: entities.Party{ID: "c1"}}

	assert.True(t, belongsTo(providers.GetClinicChannel("c1"), event))
	assert.False(t, belongsTo(providers.GetClinicChannel("c2"), event))
	assert.True(t, belongsTo(providers.EventChannelAppointments, event), "the global channel carries every clinic")
}

func TestRedisEventBus_PublishRejectsForeignClinic(t *testing.T) {
	// the check runs before any Redis call
	bus := NewRedisEventBus(nil, zerolog.Nop())

	err := bus.Publish(context.Background(), providers.GetClinicChannel("c2"), &entities.NotificationEvent{
		ID: "evt-1", Clinic: entities.Party{ID: "c1"},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be published")
}
