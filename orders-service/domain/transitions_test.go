package domain

import (
	"testing"
	"time"

	"github.com/draftea/order-system/shared/events"
	"github.com/draftea/order-system/shared/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{
	PaymentTimeout:  30 * time.Second,
	OrderExpiration: 60 * time.Second,
}

func newTestSaga(state State) *OrderSaga {
	saga := NewOrderSaga(models.GenerateUUID())
	saga.CurrentState = state
	saga.OrderID = "order-1"
	saga.Email = "customer@example.com"
	saga.Price = models.NewMoney(2500, "USD")
	saga.Quantity = 3
	return saga
}

func createOrderEvent(correlationID models.ID) *events.Event {
	return events.NewEvent(events.CreateOrderCommand, events.CreateOrderData{
		CorrelationID: correlationID,
		OrderID:       "order-1",
		Email:         "customer@example.com",
		Quantity:      3,
		Price:         models.NewMoney(2500, "USD"),
		CreatedAt:     time.Now(),
	}).WithCorrelationID(correlationID)
}

func TestApply_CreateOrder(t *testing.T) {
	saga := NewOrderSaga(models.GenerateUUID())

	actions, handled, err := Apply(saga, createOrderEvent(saga.CorrelationID), testConfig)
	require.NoError(t, err)
	require.True(t, handled)

	assert.Equal(t, StateOrderCreated, saga.CurrentState)
	assert.Equal(t, "order-1", saga.OrderID)
	assert.Equal(t, 3, saga.Quantity)

	require.Len(t, actions.Publish, 1)
	assert.Equal(t, events.OrderCreatedEvent, actions.Publish[0].EventType)
	var created events.OrderCreatedData
	require.NoError(t, actions.Publish[0].UnmarshalPayload(&created))
	assert.Equal(t, 3, created.IsAvailable)

	require.Len(t, actions.Schedule, 1)
	assert.Equal(t, TimerOrderExpiration, actions.Schedule[0].Name)
	assert.Equal(t, testConfig.OrderExpiration, actions.Schedule[0].Delay)
	assert.Empty(t, actions.CancelTimers)
}

func TestApply_StockReserved(t *testing.T) {
	saga := newTestSaga(StateOrderCreated)
	event := events.NewEvent(events.StockReservedEvent, events.StockReservedData{
		CorrelationID: saga.CorrelationID,
		OrderID:       saga.OrderID,
	}).WithCorrelationID(saga.CorrelationID)

	actions, handled, err := Apply(saga, event, testConfig)
	require.NoError(t, err)
	require.True(t, handled)

	assert.Equal(t, StateStockReserved, saga.CurrentState)

	require.Len(t, actions.Publish, 1)
	assert.Equal(t, events.CompletePaymentCommand, actions.Publish[0].EventType)
	var payment events.CompletePaymentData
	require.NoError(t, actions.Publish[0].UnmarshalPayload(&payment))
	assert.Equal(t, int64(7500), payment.TotalPrice.Amount)

	require.Len(t, actions.Schedule, 1)
	assert.Equal(t, TimerPaymentTimeout, actions.Schedule[0].Name)
}

func TestApply_FailurePaths(t *testing.T) {
	tests := []struct {
		name          string
		fromState     State
		eventType     string
		wantState     State
		wantPublished string
		wantReason    string
		wantCancelled []string
	}{
		{
			name:          "stock reservation failed",
			fromState:     StateOrderCreated,
			eventType:     events.StockReservationFailedEvent,
			wantState:     StateStockReservationFailed,
			wantPublished: events.OrderFailedEvent,
			wantReason:    "Failed Order",
			wantCancelled: []string{TimerOrderExpiration},
		},
		{
			name:          "order expiration fired",
			fromState:     StateOrderCreated,
			eventType:     events.OrderExpirationEvent,
			wantState:     StateOrderExpired,
			wantPublished: events.OrderFailedEvent,
			wantReason:    "Order Expired - No stock reservation activity",
		},
		{
			name:          "payment timeout fired",
			fromState:     StateStockReserved,
			eventType:     events.PaymentTimeoutEvent,
			wantState:     StatePaymentTimedOut,
			wantPublished: events.OrderFailedEvent,
			wantReason:    "Payment Timeout",
			wantCancelled: []string{TimerOrderExpiration},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			saga := newTestSaga(tt.fromState)
			event := events.NewEvent(events.Topic(tt.eventType), events.TimerFiredData{
				CorrelationID: saga.CorrelationID,
				OrderID:       saga.OrderID,
			}).WithCorrelationID(saga.CorrelationID)

			actions, handled, err := Apply(saga, event, testConfig)
			require.NoError(t, err)
			require.True(t, handled)

			assert.Equal(t, tt.wantState, saga.CurrentState)
			assert.True(t, saga.CurrentState.IsTerminal())
			assert.Equal(t, tt.wantCancelled, actions.CancelTimers)

			require.Len(t, actions.Publish, 1)
			assert.Equal(t, tt.wantPublished, actions.Publish[0].EventType)
			var failed events.OrderFailedData
			require.NoError(t, actions.Publish[0].UnmarshalPayload(&failed))
			assert.Equal(t, tt.wantReason, failed.Reason)
			assert.Equal(t, saga.Email, failed.Email)
		})
	}
}

func TestApply_PaymentOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		eventType   string
		wantMessage string
	}{
		{
			name:        "payment completed",
			eventType:   events.PaymentCompletedEvent,
			wantMessage: "Your Order has been confirmed after successful payment!!!",
		},
		{
			name:        "payment failed",
			eventType:   events.PaymentFailedEvent,
			wantMessage: "Your Order has been cancelled due to payment failure!!!",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			saga := newTestSaga(StateStockReserved)
			event := events.NewEvent(events.Topic(tt.eventType), events.PaymentCompletedData{
				CorrelationID: saga.CorrelationID,
			}).WithCorrelationID(saga.CorrelationID)

			actions, handled, err := Apply(saga, event, testConfig)
			require.NoError(t, err)
			require.True(t, handled)

			assert.Equal(t, StateNotification, saga.CurrentState)
			assert.ElementsMatch(t, []string{TimerPaymentTimeout, TimerOrderExpiration}, actions.CancelTimers)

			require.Len(t, actions.Publish, 1)
			assert.Equal(t, events.OrderNotificationEvent, actions.Publish[0].EventType)
			var notification events.NotificationData
			require.NoError(t, actions.Publish[0].UnmarshalPayload(&notification))
			assert.Equal(t, tt.wantMessage, notification.Message)
		})
	}
}

func TestApply_TerminalStatesDiscard(t *testing.T) {
	terminalStates := []State{
		StateStockReservationFailed,
		StateNotification,
		StatePaymentTimedOut,
		StateOrderExpired,
	}
	eventTypes := []string{
		events.CreateOrderCommand,
		events.StockReservedEvent,
		events.StockReservationFailedEvent,
		events.PaymentCompletedEvent,
		events.PaymentFailedEvent,
		events.PaymentTimeoutEvent,
		events.OrderExpirationEvent,
	}

	for _, state := range terminalStates {
		for _, eventType := range eventTypes {
			saga := newTestSaga(state)
			event := events.NewEvent(events.Topic(eventType), nil).WithCorrelationID(saga.CorrelationID)

			actions, handled, err := Apply(saga, event, testConfig)
			require.NoError(t, err)
			assert.False(t, handled, "state %s should discard %s", state, eventType)
			assert.Empty(t, actions.Publish)
			assert.Equal(t, state, saga.CurrentState)
		}
	}
}

func TestApply_StaleEventsDiscarded(t *testing.T) {
	// A late StockReserved after the saga already moved past OrderCreated
	saga := newTestSaga(StateStockReserved)
	event := events.NewEvent(events.StockReservedEvent, events.StockReservedData{
		CorrelationID: saga.CorrelationID,
	}).WithCorrelationID(saga.CorrelationID)

	_, handled, err := Apply(saga, event, testConfig)
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Equal(t, StateStockReserved, saga.CurrentState)
}

func TestApply_MalformedCreatePayload(t *testing.T) {
	saga := NewOrderSaga(models.GenerateUUID())
	event := events.NewEvent(events.CreateOrderCommand, []byte("{not json"))

	_, handled, err := Apply(saga, event, testConfig)
	require.Error(t, err)
	assert.True(t, handled)
	assert.ErrorIs(t, err, ErrMalformedEvent)
	assert.Equal(t, StateNone, saga.CurrentState)
}

func TestApply_BumpsVersion(t *testing.T) {
	saga := NewOrderSaga(models.GenerateUUID())
	before := saga.Version.Value

	_, handled, err := Apply(saga, createOrderEvent(saga.CorrelationID), testConfig)
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, before+1, saga.Version.Value)
}
