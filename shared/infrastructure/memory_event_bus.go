package infrastructure

import (
	"context"
	"log"
	"sync"

	"github.com/draftea/order-system/shared/events"
	"github.com/pkg/errors"
)

var (
	_ events.Publisher  = (*MemoryEventBus)(nil)
	_ events.Subscriber = (*MemoryEventBus)(nil)
)

type memorySubscription struct {
	pattern events.Topic
	handler events.EventHandler
}

// MemoryEventBus is an in-process event bus implementing Publisher and
// Subscriber over the same topic space as the SNS/SQS adapters. It is not
// durable: events in flight are lost on process exit. Meant for the demo
// deployment mode and for tests.
type MemoryEventBus struct {
	mux           sync.RWMutex
	subscriptions []memorySubscription
	closed        bool
	inflight      sync.WaitGroup
}

// NewMemoryEventBus creates a new in-memory event bus
func NewMemoryEventBus() *MemoryEventBus {
	return &MemoryEventBus{}
}

// Subscribe registers a handler for all events matching the topic pattern.
// An empty pattern subscribes to every event.
func (b *MemoryEventBus) Subscribe(ctx context.Context, topicPattern string, handler events.EventHandler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	pattern := events.Topic(topicPattern)
	if topicPattern == "" {
		pattern = events.Topic("#")
	}

	b.mux.Lock()
	defer b.mux.Unlock()

	if b.closed {
		return errors.New("bus is closed")
	}

	b.subscriptions = append(b.subscriptions, memorySubscription{
		pattern: pattern,
		handler: handler,
	})

	return nil
}

// Publish delivers events asynchronously to every matching subscription.
// Handler errors are logged, not propagated: failure handling lives in the
// messaging endpoint wrapping each handler.
func (b *MemoryEventBus) Publish(ctx context.Context, evts ...*events.Event) error {
	b.mux.RLock()
	if b.closed {
		b.mux.RUnlock()
		return errors.New("bus is closed")
	}
	subscriptions := make([]memorySubscription, len(b.subscriptions))
	copy(subscriptions, b.subscriptions)
	b.mux.RUnlock()

	for _, event := range evts {
		for _, sub := range subscriptions {
			if !event.Topic.Matches(sub.pattern) {
				continue
			}

			b.inflight.Add(1)
			go func(sub memorySubscription, event *events.Event) {
				defer b.inflight.Done()
				if err := sub.handler.Handle(context.WithoutCancel(ctx), event.Clone()); err != nil {
					log.Printf("memory bus: handler %s failed for %s [correlation_id=%s]: %v",
						sub.handler.HandlerID(), event.Topic, event.CorrelationID, err)
				}
			}(sub, event)
		}
	}

	return nil
}

// Wait blocks until all in-flight deliveries, including cascades published
// from handlers, have completed. Test helper.
func (b *MemoryEventBus) Wait() {
	b.inflight.Wait()
}

// Close stops accepting publishes and subscriptions
func (b *MemoryEventBus) Close() error {
	b.mux.Lock()
	b.closed = true
	b.mux.Unlock()
	b.inflight.Wait()
	return nil
}
