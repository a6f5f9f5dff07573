package events

import (
	"testing"

	"github.com/draftea/order-system/shared/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		name    string
		topic   Topic
		pattern Topic
		want    bool
	}{
		{name: "exact match", topic: "order.created", pattern: "order.created", want: true},
		{name: "exact mismatch", topic: "order.created", pattern: "order.failed", want: false},
		{name: "hash matches everything", topic: "payment.completed", pattern: "#", want: true},
		{name: "prefix hash", topic: "order.payment.timeout", pattern: "order.#", want: true},
		{name: "prefix hash mismatch", topic: "payment.completed", pattern: "order.#", want: false},
		{name: "suffix hash", topic: "stock.reservation.failed", pattern: "#.failed", want: true},
		{name: "contains hash", topic: "order.payment.timeout", pattern: "#payment#", want: true},
		{name: "star segment", topic: "payment.completed", pattern: "payment.*", want: true},
		{name: "star segment length mismatch", topic: "stock.reservation.failed", pattern: "stock.*", want: false},
		{name: "star in middle", topic: "stock.reservation.failed", pattern: "stock.*.failed", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.topic.Matches(tt.pattern))
		})
	}
}

func TestNewTopic(t *testing.T) {
	topic, err := NewTopic("order.created")
	require.NoError(t, err)
	assert.Equal(t, Topic("order.created"), topic)

	_, err = NewTopic("")
	assert.ErrorIs(t, err, ErrInvalidTopic)
}

func TestEventPayloadRoundTrip(t *testing.T) {
	correlationID := models.GenerateUUID()
	event := NewEvent(OrderCreatedEvent, OrderCreatedData{
		CorrelationID: correlationID,
		OrderID:       "order-1",
		IsAvailable:   3,
	}).WithCorrelationID(correlationID)

	assert.Equal(t, OrderCreatedEvent, event.EventType)
	assert.Equal(t, Topic(OrderCreatedEvent), event.Topic)
	assert.Equal(t, correlationID, event.CorrelationID)
	assert.NotEmpty(t, event.ID)

	var decoded OrderCreatedData
	require.NoError(t, event.UnmarshalPayload(&decoded))
	assert.Equal(t, "order-1", decoded.OrderID)
	assert.Equal(t, 3, decoded.IsAvailable)

	// decoding through the wire format keeps the payload intact
	raw, err := event.ToJSON()
	require.NoError(t, err)
	restored, err := FromJSON(raw)
	require.NoError(t, err)

	decoded = OrderCreatedData{}
	require.NoError(t, restored.UnmarshalPayload(&decoded))
	assert.Equal(t, correlationID, decoded.CorrelationID)
	assert.Equal(t, "order-1", decoded.OrderID)
}

func TestUnmarshalPayloadRequiresPointer(t *testing.T) {
	event := NewEvent(OrderCreatedEvent, OrderCreatedData{OrderID: "order-1"})

	var decoded OrderCreatedData
	err := event.UnmarshalPayload(decoded)
	assert.ErrorIs(t, err, ErrInvalidReceiver)
}
