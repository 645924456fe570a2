package events

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
)

func receive(t *testing.T, ch <-chan *entities.NotificationEvent) *entities.NotificationEvent {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestLocalEventBus_PublishSubscribe(t *testing.T) {
	bus := NewLocalEventBus(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := bus.Subscribe(ctx, "appointments:events")
	require.NoError(t, err)
	second, err := bus.Subscribe(ctx, "appointments:events")
	require.NoError(t, err)
	other, err := bus.Subscribe(ctx, "clinic:c1:appointments")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "appointments:events", &entities.NotificationEvent{ID: "evt-1"}))

	assert.Equal(t, "evt-1", receive(t, first).ID)
	assert.Equal(t, "evt-1", receive(t, second).ID)
	select {
	case <-other:
		t.Fatal("event leaked to another channel")
	default:
	}
}

func TestLocalEventBus_ContextCancelClosesSubscriber(t *testing.T) {
	bus := NewLocalEventBus(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := bus.Subscribe(ctx, "appointments:events")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscriber was not closed")
	}

	assert.NoError(t, bus.Publish(context.Background(), "appointments:events", &entities.NotificationEvent{ID: "evt-2"}))
}

func TestLocalEventBus_Close(t *testing.T) {
	bus := NewLocalEventBus(zerolog.Nop())
	ch, err := bus.Subscribe(context.Background(), "appointments:events")
	require.NoError(t, err)

	require.NoError(t, bus.Close())
	_, ok := <-ch
	assert.False(t, ok)

	late, err := bus.Subscribe(context.Background(), "appointments:events")
	require.NoError(t, err)
	_, ok = <-late
	assert.False(t, ok)
}
