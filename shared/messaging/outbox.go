package messaging

import (
	"context"
	"sync"

	"github.com/draftea/order-system/shared/events"
)

type outboxContextKey struct{}

// outbox buffers events published while one inbound message is being
// handled. They reach the real publisher only after the handler returned
// nil, so a failed-and-retried handling never leaks partial side effects.
type outbox struct {
	mux      sync.Mutex
	buffered []*events.Event
}

func (o *outbox) Publish(ctx context.Context, evts ...*events.Event) error {
	o.mux.Lock()
	defer o.mux.Unlock()
	o.buffered = append(o.buffered, evts...)
	return nil
}

func (o *outbox) flush(ctx context.Context, sink events.Publisher) error {
	o.mux.Lock()
	buffered := o.buffered
	o.buffered = nil
	o.mux.Unlock()

	if len(buffered) == 0 {
		return nil
	}
	return sink.Publish(ctx, buffered...)
}

func withOutbox(ctx context.Context, o *outbox) context.Context {
	return context.WithValue(ctx, outboxContextKey{}, o)
}

func outboxFrom(ctx context.Context) *outbox {
	o, _ := ctx.Value(outboxContextKey{}).(*outbox)
	return o
}

var _ events.Publisher = (*OutboxPublisher)(nil)

// OutboxPublisher is the publisher handed to use cases. Inside an endpoint
// handler it routes publishes into the per-message outbox; outside one it
// passes straight through to the underlying publisher.
type OutboxPublisher struct {
	sink events.Publisher
}

// NewOutboxPublisher wraps a publisher with outbox awareness
func NewOutboxPublisher(sink events.Publisher) *OutboxPublisher {
	return &OutboxPublisher{sink: sink}
}

// Publish buffers into the active outbox when present
func (p *OutboxPublisher) Publish(ctx context.Context, evts ...*events.Event) error {
	if o := outboxFrom(ctx); o != nil {
		return o.Publish(ctx, evts...)
	}
	return p.sink.Publish(ctx, evts...)
}
