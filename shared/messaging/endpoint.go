package messaging

import (
	"context"
	"log"
	"time"

	"github.com/draftea/order-system/shared/events"
	"github.com/draftea/order-system/shared/telemetry"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrCircuitOpen is returned when the endpoint's circuit breaker rejects a
// message without invoking the handler. Distinguishable from handler
// failures so callers can tell "service down" from "this message is bad".
var ErrCircuitOpen = errors.New("circuit breaker is open")

// errDeadLettered marks a processing outcome that already went to the dead
// letter sink. It propagates through the breaker for failure accounting and
// is swallowed before reaching the transport.
type errDeadLettered struct {
	cause error
}

func (e *errDeadLettered) Error() string { return "dead lettered: " + e.cause.Error() }
func (e *errDeadLettered) Unwrap() error { return e.cause }

var _ events.EventHandler = (*Endpoint)(nil)

// Endpoint wraps one logical consumer with the resilience behavior of its
// policy: rate limiting, a concurrency bound, a circuit breaker, the retry
// sequence with error classification, outbox buffering of outbound events,
// and dead letter routing.
type Endpoint struct {
	policy     EndpointPolicy
	handler    events.EventHandler
	publisher  events.Publisher
	deadLetter DeadLetterSink

	limiter   *rate.Limiter
	slots     *semaphore.Weighted
	breaker   *gobreaker.CircuitBreaker
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewEndpoint builds an endpoint around a handler. The publisher receives
// the handler's buffered outbound events after a successful handling.
func NewEndpoint(
	policy EndpointPolicy,
	handler events.EventHandler,
	publisher events.Publisher,
	deadLetter DeadLetterSink,
) (*Endpoint, error) {
	if err := policy.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid endpoint policy")
	}
	if handler == nil {
		return nil, errors.New("handler is required")
	}
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	if deadLetter == nil {
		deadLetter = NewMemoryDeadLetterSink()
	}

	e := &Endpoint{
		policy:     policy,
		handler:    handler,
		publisher:  publisher,
		deadLetter: deadLetter,
		sleepFunc:  sleep,
	}

	if policy.RateLimit.Events > 0 {
		perSecond := float64(policy.RateLimit.Events) / policy.RateLimit.Window.Seconds()
		e.limiter = rate.NewLimiter(rate.Limit(perSecond), policy.RateLimit.Events)
	}

	if policy.MaxConcurrency > 0 {
		e.slots = semaphore.NewWeighted(policy.MaxConcurrency)
	}

	if policy.Breaker.TripThreshold > 0 {
		trials := policy.Breaker.HalfOpenTrials
		if trials == 0 {
			trials = 1
		}
		e.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        policy.Name,
			MaxRequests: trials,
			Interval:    policy.Breaker.TrackingWindow,
			Timeout:     policy.Breaker.ResetInterval,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.TotalFailures >= policy.Breaker.TripThreshold
			},
		})
	}

	return e, nil
}

// HandlerID implements events.EventHandler
func (e *Endpoint) HandlerID() string {
	return e.policy.Name
}

// Handle admits one inbound message through the policy chain. A nil return
// means the message is consumed, including the dead-lettered outcomes. A
// non-nil return (circuit open, cancelled context) means the transport
// should redeliver.
func (e *Endpoint) Handle(ctx context.Context, event *events.Event) error {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "rate limiter admission")
		}
	}

	if e.slots != nil {
		if err := e.slots.Acquire(ctx, 1); err != nil {
			return errors.Wrap(err, "concurrency slot acquisition")
		}
		defer e.slots.Release(1)
	}

	var err error
	if e.breaker != nil {
		_, err = e.breaker.Execute(func() (interface{}, error) {
			return nil, e.process(ctx, event)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			e.count(ctx, "circuit_open", event)
			return errors.Wrapf(ErrCircuitOpen, "endpoint %s", e.policy.Name)
		}
	} else {
		err = e.process(ctx, event)
	}

	var deadLettered *errDeadLettered
	if errors.As(err, &deadLettered) {
		// Routed to the dead letter sink; the message itself is consumed.
		return nil
	}
	return err
}

// process runs the retry sequence. Every attempt gets a fresh outbox which
// is flushed only when the handler returns nil.
func (e *Endpoint) process(ctx context.Context, event *events.Event) error {
	attempts := 0
	for {
		attempts++

		box := &outbox{}
		err := e.handler.Handle(withOutbox(ctx, box), event)
		if err == nil {
			e.count(ctx, "handled", event)
			return box.flush(ctx, e.publisher)
		}

		class := e.policy.classify(err)
		if class == ClassTerminal {
			e.count(ctx, "terminal_failure", event)
			return e.routeToDeadLetter(ctx, event, err, ReasonTerminal, attempts)
		}

		if attempts > len(e.policy.RetryDelays) {
			e.count(ctx, "retries_exhausted", event)
			return e.routeToDeadLetter(ctx, event, err, ReasonRetriesExhausted, attempts)
		}

		delay := e.policy.RetryDelays[attempts-1]
		log.Printf("endpoint %s: attempt %d failed for %s [correlation_id=%s], retrying in %s: %v",
			e.policy.Name, attempts, event.Topic, event.CorrelationID, delay, err)
		e.count(ctx, "retry", event)

		if sleepErr := e.sleepFunc(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}
}

func (e *Endpoint) routeToDeadLetter(ctx context.Context, event *events.Event, cause error, reason string, attempts int) error {
	letter := &DeadLetter{
		Event:      event,
		Endpoint:   e.policy.Name,
		Reason:     reason,
		Error:      cause.Error(),
		Attempts:   attempts,
		OccurredAt: time.Now(),
	}

	if err := e.deadLetter.Store(ctx, letter); err != nil {
		// Keep the message alive rather than dropping it silently.
		return errors.Wrap(err, "failed to store dead letter")
	}

	log.Printf("endpoint %s: dead lettered %s [correlation_id=%s] reason=%s after %d attempt(s): %v",
		e.policy.Name, event.Topic, event.CorrelationID, reason, attempts, cause)
	return &errDeadLettered{cause: cause}
}

func (e *Endpoint) count(ctx context.Context, outcome string, event *events.Event) {
	telemetry.RecordCounter(ctx, "messaging_endpoint_messages_total", "Messages processed per endpoint and outcome", 1,
		attribute.String("endpoint", e.policy.Name),
		attribute.String("topic", event.Topic.String()),
		attribute.String("outcome", outcome),
	)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
