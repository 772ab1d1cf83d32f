package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/proagenda/calendar-engine/internal/domain/entities"
	"github.com/proagenda/calendar-engine/internal/domain/providers"
	redisclient "github.com/proagenda/calendar-engine/internal/infrastructure/clients/redis"
	"github.com/proagenda/calendar-engine/internal/infrastructure/observability"
	"github.com/redis/go-redis/v9"
)

// RedisEventBus implements the EventBus interface using Redis Pub/Sub
type RedisEventBus struct {
	client        *redisclient.Client
	subscriptions map[string]*redis.PubSub
	subscribers   map[string]map[chan *entities.CalendarNotice]struct{}
	mu            sync.RWMutex
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewRedisEventBus creates a new Redis-based event bus
func NewRedisEventBus(client *redisclient.Client) providers.EventBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisEventBus{
		client:        client,
		subscriptions: make(map[string]*redis.PubSub),
		subscribers:   make(map[string]map[chan *entities.CalendarNotice]struct{}),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Publish publishes a calendar notice to all subscribers of the channel.
func (b *RedisEventBus) Publish(ctx context.Context, channel string, notice *entities.CalendarNotice) error {
	data, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("failed to marshal notice: %w", err)
	}

	if err := b.client.Client().Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish notice: %w", err)
	}

	return nil
}

// Subscribe subscribes to notices on a channel. The returned channel closes
// when ctx is cancelled.
func (b *RedisEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.CalendarNotice, error) {
	b.mu.Lock()

	if _, exists := b.subscriptions[channel]; !exists {
		pubsub := b.client.Client().Subscribe(b.ctx, channel)
		b.subscriptions[channel] = pubsub
		go b.receiveMessages(channel, pubsub)
	}

	if b.subscribers[channel] == nil {
		b.subscribers[channel] = make(map[chan *entities.CalendarNotice]struct{})
	}

	noticeChan := make(chan *entities.CalendarNotice, 100)
	b.subscribers[channel][noticeChan] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.removeSubscriber(channel, noticeChan)
	}()

	return noticeChan, nil
}

// Unsubscribe closes every subscription on the channel.
func (b *RedisEventBus) Unsubscribe(ctx context.Context, channel string) error {
	return b.cleanupChannel(channel)
}

// Close shuts down the bus and all subscriptions.
func (b *RedisEventBus) Close() error {
	b.cancel()
	b.mu.Lock()
	defer b.mu.Unlock()

	for channel, pubsub := range b.subscriptions {
		_ = pubsub.Close()
		delete(b.subscriptions, channel)
	}
	for channel, subscribers := range b.subscribers {
		for subscriber := range subscribers {
			close(subscriber)
		}
		delete(b.subscribers, channel)
	}
	return nil
}

// receiveMessages fans Redis messages out to in-process subscribers.
func (b *RedisEventBus) receiveMessages(channel string, pubsub *redis.PubSub) {
	logger := observability.GetLogger()
	defer func() {
		if err := b.cleanupChannel(channel); err != nil {
			logger.Warn().Err(err).Str("channel", channel).Msg("failed to cleanup channel")
		}
	}()

	ch := pubsub.Channel()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var notice entities.CalendarNotice
			if err := json.Unmarshal([]byte(msg.Payload), &notice); err != nil {
				logger.Warn().Err(err).Str("channel", channel).Msg("failed to unmarshal notice")
				continue
			}

			b.mu.RLock()
			for subscriber := range b.subscribers[channel] {
				select {
				case subscriber <- &notice:
				default:
					// Subscriber channel full, skip notice
					logger.Warn().Str("channel", channel).Str("notice", notice.ID).Msg("subscriber channel full, skipping")
				}
			}
			b.mu.RUnlock()
		}
	}
}

func (b *RedisEventBus) removeSubscriber(channel string, noticeChan chan *entities.CalendarNotice) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscribers, exists := b.subscribers[channel]
	if !exists {
		return
	}
	if _, ok := subscribers[noticeChan]; !ok {
		return
	}

	delete(subscribers, noticeChan)
	close(noticeChan)

	if len(subscribers) == 0 {
		delete(b.subscribers, channel)
		if pubsub, ok := b.subscriptions[channel]; ok {
			_ = pubsub.Close()
			delete(b.subscriptions, channel)
		}
	}
}

func (b *RedisEventBus) cleanupChannel(channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, exists := b.subscribers[channel]; exists {
		for subscriber := range subscribers {
			close(subscriber)
		}
		delete(b.subscribers, channel)
	}

	if pubsub, ok := b.subscriptions[channel]; ok {
		delete(b.subscriptions, channel)
		return pubsub.Close()
	}
	return nil
}
