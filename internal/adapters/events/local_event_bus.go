package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
	"github.com/zatekoja/clinicscheduler/internal/domain/providers"
)

// LocalEventBus delivers events to subscribers in the same process. It is
// used when Redis is disabled; events are lost on restart.
type LocalEventBus struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan *entities.NotificationEvent]struct{}
	closed      bool
	logger      zerolog.Logger
}

var _ providers.EventBus = (*LocalEventBus)(nil)

// NewLocalEventBus creates an in-process bus
func NewLocalEventBus(logger zerolog.Logger) *LocalEventBus {
	return &LocalEventBus{
		subscribers: make(map[string]map[chan *entities.NotificationEvent]struct{}),
		logger:      logger.With().Str("component", "local_event_bus").Logger(),
	}
}

// Publish hands event to every current subscriber of channel. Full
// subscriber buffers drop the event.
func (b *LocalEventBus) Publish(_ context.Context, channel string, event *entities.NotificationEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for subscriber := range b.subscribers[channel] {
		cp := *event
		select {
		case subscriber <- &cp:
		default:
			b.logger.Warn().Str("channel", channel).Str("event_id", event.ID).Msg("subscriber channel full, skipping event")
		}
	}
	return nil
}

// Subscribe registers a buffered subscriber until ctx is done
func (b *LocalEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.NotificationEvent, error) {
	eventChan := make(chan *entities.NotificationEvent, 100)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(eventChan)
		return eventChan, nil
	}
	if b.subscribers[channel] == nil {
		b.subscribers[channel] = make(map[chan *entities.NotificationEvent]struct{})
	}
	b.subscribers[channel][eventChan] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(channel, eventChan)
	}()
	return eventChan, nil
}

func (b *LocalEventBus) remove(channel string, eventChan chan *entities.NotificationEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[channel][eventChan]; !ok {
		return
	}
	delete(b.subscribers[channel], eventChan)
	close(eventChan)
	if len(b.subscribers[channel]) == 0 {
		delete(b.subscribers, channel)
	}
}

// Unsubscribe closes every subscriber of channel
func (b *LocalEventBus) Unsubscribe(_ context.Context, channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subscriber := range b.subscribers[channel] {
		close(subscriber)
	}
	delete(b.subscribers, channel)
	return nil
}

// Close closes all subscribers
func (b *LocalEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for channel, subscribers := range b.subscribers {
		for subscriber := range subscribers {
			close(subscriber)
		}
		delete(b.subscribers, channel)
	}
	b.closed = true
	return nil
}
