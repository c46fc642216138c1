// ABOUTME: In-memory fan-out notifier for conversation log changes.
// ABOUTME: Drives autosave and display refresh without polling the log.

package chatlog

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each subscriber.
// A change notification carries no payload, so coalescing drops are harmless:
// the subscriber re-reads the log either way.
const subscriberBufferSize = 64

// Broadcaster provides in-memory pub/sub for log change notifications.
// Subscribers receive one signal per mutation; slow subscribers miss
// signals rather than block writers.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan struct{}
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]chan struct{}),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers for change notifications. Returns the channel and a
// subscription ID for later Unsubscribe. The subscription is cleaned up
// automatically when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan struct{}, string) {
	subID := uuid.New().String()
	ch := make(chan struct{}, subscriberBufferSize)

	b.mu.Lock()
	b.subscribers[subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return ch, subID
}

// Publish signals every subscriber that the log changed. Non-blocking:
// a full subscriber channel drops the signal.
func (b *Broadcaster) Publish() {
	b.mu.RLock()
	targets := make([]chan struct{}, 0, len(b.subscribers))
	for _, ch := range b.subscribers {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- struct{}{}:
		default:
			// Subscriber already has a pending signal - coalesce.
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// SubscriberCount reports the number of active subscriptions.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
