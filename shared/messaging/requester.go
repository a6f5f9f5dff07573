package messaging

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/draftea/order-system/shared/events"
	"github.com/draftea/order-system/shared/models"
	"github.com/pkg/errors"
)

var (
	// ErrRequestTimeout is the outcome of a request whose correlated
	// response did not arrive within the deadline.
	ErrRequestTimeout = errors.New("request timed out")

	// ErrRequestPending rejects a second request for a correlation id that
	// already has an unresolved pending slot.
	ErrRequestPending = errors.New("a request is already pending for this correlation id")
)

// pendingRequest is a single-resolution slot: the first matching response
// or the deadline wins, whichever the resolver reaches first.
type pendingRequest struct {
	expected map[string]struct{}
	resolved chan *events.Event
}

var _ events.EventHandler = (*Requester)(nil)

// Requester implements correlated request/response over the event bus. It
// publishes a command, suspends the caller, and resolves on the first
// inbound event carrying the same correlation id and one of the expected
// response topics. Subscribe the Requester to the response topics of every
// request it issues.
//
// Commands bypass the outbox deliberately: a request issued inside an
// endpoint handler must reach the responder while the handler is still
// waiting.
type Requester struct {
	publisher events.Publisher
	mux       sync.Mutex
	pending   map[models.ID]*pendingRequest
}

// NewRequester creates a requester publishing commands through the given
// publisher.
func NewRequester(publisher events.Publisher) *Requester {
	return &Requester{
		publisher: publisher,
		pending:   make(map[models.ID]*pendingRequest),
	}
}

// HandlerID implements events.EventHandler
func (r *Requester) HandlerID() string {
	return "requester"
}

// Handle resolves pending requests from inbound response events. Responses
// without a pending slot, with an unexpected topic, or arriving after
// resolution are dropped.
func (r *Requester) Handle(ctx context.Context, event *events.Event) error {
	r.mux.Lock()
	slot, ok := r.pending[event.CorrelationID]
	if !ok {
		r.mux.Unlock()
		return nil
	}
	if _, expected := slot.expected[event.EventType]; !expected {
		r.mux.Unlock()
		return nil
	}
	delete(r.pending, event.CorrelationID)
	r.mux.Unlock()

	slot.resolved <- event
	return nil
}

// Request publishes a command and waits for the first correlated response
// of one of the expected topics, or ErrRequestTimeout after the deadline.
// The returned event's type tells the caller which response shape arrived.
func (r *Requester) Request(
	ctx context.Context,
	command *events.Event,
	expectedTopics []string,
	timeout time.Duration,
) (*events.Event, error) {
	if len(expectedTopics) == 0 {
		return nil, errors.New("at least one expected response topic is required")
	}

	if command.CorrelationID.IsEmpty() {
		command.CorrelationID = models.GenerateUUID()
	}
	correlationID := command.CorrelationID

	slot := &pendingRequest{
		expected: make(map[string]struct{}, len(expectedTopics)),
		resolved: make(chan *events.Event, 1),
	}
	for _, topic := range expectedTopics {
		slot.expected[topic] = struct{}{}
	}

	r.mux.Lock()
	if _, exists := r.pending[correlationID]; exists {
		r.mux.Unlock()
		return nil, errors.Wrapf(ErrRequestPending, "correlation_id=%s", correlationID)
	}
	r.pending[correlationID] = slot
	r.mux.Unlock()

	if err := r.publisher.Publish(ctx, command); err != nil {
		r.teardown(correlationID)
		return nil, errors.Wrap(err, "failed to publish request command")
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case response := <-slot.resolved:
		return response, nil
	case <-timer.C:
		r.teardown(correlationID)
		// A response may have resolved the slot between the deadline and
		// the teardown; prefer it over the timeout.
		select {
		case response := <-slot.resolved:
			return response, nil
		default:
		}
		log.Printf("requester: request %s timed out after %s [correlation_id=%s]",
			command.Topic, timeout, correlationID)
		return nil, errors.Wrapf(ErrRequestTimeout, "command=%s correlation_id=%s", command.Topic, correlationID)
	case <-ctx.Done():
		r.teardown(correlationID)
		return nil, ctx.Err()
	}
}

func (r *Requester) teardown(correlationID models.ID) {
	r.mux.Lock()
	delete(r.pending, correlationID)
	r.mux.Unlock()
}
