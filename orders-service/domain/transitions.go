package domain

import (
	"time"

	"github.com/draftea/order-system/shared/events"
	"github.com/pkg/errors"
)

// ErrMalformedEvent marks events whose payload cannot be decoded. The
// endpoint policy classifies it as terminal: redelivering a malformed
// payload can never succeed.
var ErrMalformedEvent = errors.New("malformed event payload")

// Customer-facing notification texts
const (
	notificationStockFailed    = "Your order has been cancelled due to stock unavailability."
	notificationExpired        = "Your order has expired due to inactivity."
	notificationPaymentOK      = "Your Order has been confirmed after successful payment!!!"
	notificationPaymentFailed  = "Your Order has been cancelled due to payment failure!!!"
	notificationPaymentTimeout = "Your order has been cancelled due to payment timeout."
)

// Order failure reasons
const (
	reasonOrderFailed    = "Failed Order"
	reasonOrderExpired   = "Order Expired - No stock reservation activity"
	reasonPaymentTimeout = "Payment Timeout"
)

// Config carries the externally supplied transition durations
type Config struct {
	PaymentTimeout  time.Duration
	OrderExpiration time.Duration
}

// ScheduleAction asks the orchestrator to schedule a named saga timer
type ScheduleAction struct {
	Name  string
	Delay time.Duration
	Event *events.Event
}

// Actions are the side effects of one transition. Events reach the outside
// world only after the transition is persisted (outbox semantics in the
// messaging endpoint).
type Actions struct {
	Publish      []*events.Event
	Schedule     []ScheduleAction
	CancelTimers []string
}

type transitionKey struct {
	state     State
	eventType string
}

type transitionFunc func(saga *OrderSaga, event *events.Event, cfg Config) (Actions, State, error)

// transitions is the explicit (state, event) -> (actions, next state) table
var transitions = map[transitionKey]transitionFunc{
	{StateNone, events.CreateOrderCommand}:                  createOrder,
	{StateOrderCreated, events.StockReservedEvent}:          stockReserved,
	{StateOrderCreated, events.StockReservationFailedEvent}: stockReservationFailed,
	{StateOrderCreated, events.OrderExpirationEvent}:        orderExpired,
	{StateStockReserved, events.PaymentCompletedEvent}:      paymentCompleted,
	{StateStockReserved, events.PaymentFailedEvent}:         paymentFailed,
	{StateStockReserved, events.PaymentTimeoutEvent}:        paymentTimedOut,
}

// Apply runs the transition for the saga's current state and the event.
// The second return value reports whether the event was handled: events for
// terminal instances and events with no transition from the current state
// are discarded, not errors.
func Apply(saga *OrderSaga, event *events.Event, cfg Config) (Actions, bool, error) {
	if saga.CurrentState.IsTerminal() {
		return Actions{}, false, nil
	}

	transition, ok := transitions[transitionKey{saga.CurrentState, event.EventType}]
	if !ok {
		return Actions{}, false, nil
	}

	actions, next, err := transition(saga, event, cfg)
	if err != nil {
		return Actions{}, true, err
	}

	saga.CurrentState = next
	saga.Timestamps = saga.Timestamps.Update()
	saga.Version = saga.Version.Update()
	return actions, true, nil
}

func createOrder(saga *OrderSaga, event *events.Event, cfg Config) (Actions, State, error) {
	var data events.CreateOrderData
	if err := event.UnmarshalPayload(&data); err != nil {
		return Actions{}, StateNone, errors.Wrap(ErrMalformedEvent, err.Error())
	}

	saga.OrderID = data.OrderID
	saga.Email = data.Email
	saga.Quantity = data.Quantity
	saga.Price = data.Price
	saga.CreatedAt = data.CreatedAt

	orderCreated := events.NewEvent(events.OrderCreatedEvent, events.OrderCreatedData{
		CorrelationID: saga.CorrelationID,
		OrderID:       saga.OrderID,
		IsAvailable:   saga.Quantity,
	}).WithCorrelationID(saga.CorrelationID)

	expiration := events.NewEvent(events.OrderExpirationEvent, events.TimerFiredData{
		CorrelationID: saga.CorrelationID,
		OrderID:       saga.OrderID,
		Email:         saga.Email,
	})

	return Actions{
		Publish: []*events.Event{orderCreated},
		Schedule: []ScheduleAction{
			{Name: TimerOrderExpiration, Delay: cfg.OrderExpiration, Event: expiration},
		},
	}, StateOrderCreated, nil
}

func stockReserved(saga *OrderSaga, event *events.Event, cfg Config) (Actions, State, error) {
	completePayment := events.NewEvent(events.CompletePaymentCommand, events.CompletePaymentData{
		CorrelationID: saga.CorrelationID,
		OrderID:       saga.OrderID,
		TotalPrice:    saga.TotalPrice(),
	}).WithCorrelationID(saga.CorrelationID)

	timeout := events.NewEvent(events.PaymentTimeoutEvent, events.TimerFiredData{
		CorrelationID: saga.CorrelationID,
		OrderID:       saga.OrderID,
		Email:         saga.Email,
	})

	return Actions{
		Publish: []*events.Event{completePayment},
		Schedule: []ScheduleAction{
			{Name: TimerPaymentTimeout, Delay: cfg.PaymentTimeout, Event: timeout},
		},
	}, StateStockReserved, nil
}

func stockReservationFailed(saga *OrderSaga, event *events.Event, cfg Config) (Actions, State, error) {
	saga.NotificationText = notificationStockFailed

	return Actions{
		Publish:      []*events.Event{orderFailed(saga, reasonOrderFailed)},
		CancelTimers: []string{TimerOrderExpiration},
	}, StateStockReservationFailed, nil
}

func orderExpired(saga *OrderSaga, event *events.Event, cfg Config) (Actions, State, error) {
	saga.NotificationText = notificationExpired

	return Actions{
		Publish: []*events.Event{orderFailed(saga, reasonOrderExpired)},
	}, StateOrderExpired, nil
}

func paymentCompleted(saga *OrderSaga, event *events.Event, cfg Config) (Actions, State, error) {
	saga.NotificationText = notificationPaymentOK

	return Actions{
		Publish:      []*events.Event{notification(saga)},
		CancelTimers: []string{TimerPaymentTimeout, TimerOrderExpiration},
	}, StateNotification, nil
}

func paymentFailed(saga *OrderSaga, event *events.Event, cfg Config) (Actions, State, error) {
	saga.NotificationText = notificationPaymentFailed

	return Actions{
		Publish:      []*events.Event{notification(saga)},
		CancelTimers: []string{TimerPaymentTimeout, TimerOrderExpiration},
	}, StateNotification, nil
}

func paymentTimedOut(saga *OrderSaga, event *events.Event, cfg Config) (Actions, State, error) {
	saga.NotificationText = notificationPaymentTimeout

	return Actions{
		Publish:      []*events.Event{orderFailed(saga, reasonPaymentTimeout)},
		CancelTimers: []string{TimerOrderExpiration},
	}, StatePaymentTimedOut, nil
}

func orderFailed(saga *OrderSaga, reason string) *events.Event {
	return events.NewEvent(events.OrderFailedEvent, events.OrderFailedData{
		CorrelationID: saga.CorrelationID,
		OrderID:       saga.OrderID,
		Email:         saga.Email,
		Reason:        reason,
	}).WithCorrelationID(saga.CorrelationID)
}

func notification(saga *OrderSaga) *events.Event {
	return events.NewEvent(events.OrderNotificationEvent, events.NotificationData{
		CorrelationID: saga.CorrelationID,
		OrderID:       saga.OrderID,
		Email:         saga.Email,
		Message:       saga.NotificationText,
	}).WithCorrelationID(saga.CorrelationID)
}
