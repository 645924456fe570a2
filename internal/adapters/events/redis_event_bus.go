package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
	"github.com/zatekoja/clinicscheduler/internal/domain/providers"
	redisclient "github.com/zatekoja/clinicscheduler/internal/infrastructure/clients/redis"
)

// RedisEventBus implements EventBus over Redis Pub/Sub.
//
// Every clinic channel shares one pattern subscription, so a front desk
// opening many clinic streams costs a single Redis connection. Messages are
// routed to local subscribers by their concrete channel, and an event whose
// clinic does not match its channel is dropped.
type RedisEventBus struct {
	client *redisclient.Client
	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.RWMutex
	feeds       map[string]*redis.PubSub // feed key -> redis subscription
	subscribers map[string]map[chan *entities.NotificationEvent]struct{}
}

var _ providers.EventBus = (*RedisEventBus)(nil)

// NewRedisEventBus creates a new Redis-based event bus
func NewRedisEventBus(client *redisclient.Client, logger zerolog.Logger) *RedisEventBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisEventBus{
		client:      client,
		logger:      logger.With().Str("component", "redis_event_bus").Logger(),
		ctx:         ctx,
		cancel:      cancel,
		feeds:       make(map[string]*redis.PubSub),
		subscribers: make(map[string]map[chan *entities.NotificationEvent]struct{}),
	}
}

// feedKey names the Redis subscription that carries channel
func feedKey(channel string) string {
	if _, ok := providers.ClinicIDFromChannel(channel); ok {
		return providers.EventChannelClinicPattern
	}
	return channel
}

// belongsTo reports whether event may be delivered on channel
func belongsTo(channel string, event *entities.NotificationEvent) bool {
	clinicID, ok := providers.ClinicIDFromChannel(channel)
	return !ok || event.Clinic.ID == clinicID
}

// Publish publishes an event on channel
func (b *RedisEventBus) Publish(ctx context.Context, channel string, event *entities.NotificationEvent) error {
	if !belongsTo(channel, event) {
		return fmt.Errorf("event %s for clinic %q cannot be published on %s", event.ID, event.Clinic.ID, channel)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.client.Client().Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug().Str("channel", channel).Str("event_id", event.ID).Msg("published event")
	return nil
}

// Subscribe subscribes to events on a channel. The returned channel is
// closed when ctx is done or the bus shuts down.
func (b *RedisEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.NotificationEvent, error) {
	b.mu.Lock()
	if err := b.openFeed(ctx, feedKey(channel)); err != nil {
		b.mu.Unlock()
		return nil, err
	}

	if b.subscribers[channel] == nil {
		b.subscribers[channel] = make(map[chan *entities.NotificationEvent]struct{})
	}
	eventChan := make(chan *entities.NotificationEvent, 100)
	b.subscribers[channel][eventChan] = struct{}{}
	count := len(b.subscribers[channel])
	b.mu.Unlock()

	b.logger.Info().Str("channel", channel).Int("subscribers", count).Msg("subscribed")

	go func() {
		select {
		case <-ctx.Done():
		case <-b.ctx.Done():
		}
		b.removeSubscriber(channel, eventChan)
	}()

	return eventChan, nil
}

// openFeed starts the Redis subscription for key if it is not running.
// Callers hold b.mu.
func (b *RedisEventBus) openFeed(ctx context.Context, key string) error {
	if _, ok := b.feeds[key]; ok {
		return nil
	}

	var pubsub *redis.PubSub
	if key == providers.EventChannelClinicPattern {
		pubsub = b.client.Client().PSubscribe(b.ctx, key)
	} else {
		pubsub = b.client.Client().Subscribe(b.ctx, key)
	}
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", key, err)
	}

	b.feeds[key] = pubsub
	go b.pump(key, pubsub)
	return nil
}

// pump decodes messages of one feed and routes them by concrete channel
func (b *RedisEventBus) pump(key string, pubsub *redis.PubSub) {
	ch := pubsub.Channel()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				b.logger.Debug().Str("feed", key).Msg("feed closed")
				return
			}

			var event entities.NotificationEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("failed to unmarshal event")
				continue
			}
			if !belongsTo(msg.Channel, &event) {
				b.logger.Warn().Str("channel", msg.Channel).Str("event_id", event.ID).
					Str("clinic_id", event.Clinic.ID).Msg("dropping event for another clinic")
				continue
			}
			b.deliver(msg.Channel, &event)
		}
	}
}

func (b *RedisEventBus) deliver(channel string, event *entities.NotificationEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for subscriber := range b.subscribers[channel] {
		select {
		case subscriber <- event:
		default:
			b.logger.Warn().Str("channel", channel).Str("event_id", event.ID).Msg("subscriber channel full, skipping event")
		}
	}
}

func (b *RedisEventBus) removeSubscriber(channel string, eventChan chan *entities.NotificationEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscribers := b.subscribers[channel]
	if _, ok := subscribers[eventChan]; !ok {
		return
	}
	delete(subscribers, eventChan)
	close(eventChan)

	if len(subscribers) == 0 {
		delete(b.subscribers, channel)
		if err := b.closeIdleFeed(feedKey(channel)); err != nil {
			b.logger.Warn().Err(err).Str("channel", channel).Msg("failed to close feed")
		}
	}
}

// closeIdleFeed closes the feed for key once no local channel uses it.
// Callers hold b.mu.
func (b *RedisEventBus) closeIdleFeed(key string) error {
	for channel := range b.subscribers {
		if feedKey(channel) == key {
			return nil
		}
	}
	pubsub, ok := b.feeds[key]
	if !ok {
		return nil
	}
	delete(b.feeds, key)
	b.logger.Info().Str("feed", key).Msg("closed subscription")
	return pubsub.Close()
}

// Unsubscribe closes every local subscriber of channel
func (b *RedisEventBus) Unsubscribe(_ context.Context, channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subscriber := range b.subscribers[channel] {
		close(subscriber)
	}
	delete(b.subscribers, channel)
	return b.closeIdleFeed(feedKey(channel))
}

// Close closes the event bus and all subscriptions
func (b *RedisEventBus) Close() error {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for channel, subscribers := range b.subscribers {
		for subscriber := range subscribers {
			close(subscriber)
		}
		delete(b.subscribers, channel)
	}

	var errs []error
	for key, pubsub := range b.feeds {
		if err := pubsub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("feed %s: %w", key, err))
		}
		delete(b.feeds, key)
	}
	return errors.Join(errs...)
}
