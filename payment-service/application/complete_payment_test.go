package application

import (
	"context"
	"sync"
	"testing"

	"github.com/draftea/order-system/shared/events"
	"github.com/draftea/order-system/shared/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mux       sync.Mutex
	published []*events.Event
}

func (p *capturePublisher) Publish(ctx context.Context, evts ...*events.Event) error {
	p.mux.Lock()
	defer p.mux.Unlock()
	p.published = append(p.published, evts...)
	return nil
}

func (p *capturePublisher) all() []*events.Event {
	p.mux.Lock()
	defer p.mux.Unlock()
	out := make([]*events.Event, len(p.published))
	copy(out, p.published)
	return out
}

func completePaymentCommand(amount int64) *events.Event {
	correlationID := models.GenerateUUID()
	return events.NewEvent(events.CompletePaymentCommand, events.CompletePaymentData{
		CorrelationID: correlationID,
		OrderID:       "order-1",
		TotalPrice:    models.Money{Amount: amount, Currency: "USD"},
	}).WithCorrelationID(correlationID)
}

func TestCompletePayment_Execute(t *testing.T) {
	tests := []struct {
		name      string
		amount    int64
		wantEvent string
		wantCause string
	}{
		{
			name:      "positive total completes payment",
			amount:    7500,
			wantEvent: events.PaymentCompletedEvent,
		},
		{
			name:      "zero total fails payment",
			amount:    0,
			wantEvent: events.PaymentFailedEvent,
			wantCause: "Money is unavailable!!!",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher := &capturePublisher{}
			uc := NewCompletePayment(publisher)

			command := completePaymentCommand(tt.amount)
			require.NoError(t, uc.Execute(context.Background(), command))

			published := publisher.all()
			require.Len(t, published, 1)
			assert.Equal(t, tt.wantEvent, published[0].EventType)
			assert.Equal(t, command.CorrelationID, published[0].CorrelationID)

			if tt.wantCause != "" {
				var data events.PaymentFailedData
				require.NoError(t, published[0].UnmarshalPayload(&data))
				assert.Equal(t, tt.wantCause, data.Cause)
			} else {
				var data events.PaymentCompletedData
				require.NoError(t, published[0].UnmarshalPayload(&data))
				assert.Equal(t, tt.amount, data.Amount.Amount)
				assert.False(t, data.CompletedAt.IsZero())
			}
		})
	}
}

func TestCompletePayment_FaultHookPropagates(t *testing.T) {
	publisher := &capturePublisher{}
	fault := errors.New("processor unreachable")
	uc := NewCompletePayment(publisher).WithFault(func(orderID string) error {
		return fault
	})

	err := uc.Execute(context.Background(), completePaymentCommand(7500))
	require.ErrorIs(t, err, fault)
	assert.Empty(t, publisher.all())
}

func TestProcessPayment_Execute(t *testing.T) {
	tests := []struct {
		name      string
		amount    int64
		wantEvent string
	}{
		{
			name:      "positive amount succeeds",
			amount:    2500,
			wantEvent: events.PaymentSuccessfulEvent,
		},
		{
			name:      "zero amount is rejected",
			amount:    0,
			wantEvent: events.PaymentRejectedEvent,
		},
		{
			name:      "negative amount is rejected",
			amount:    -100,
			wantEvent: events.PaymentRejectedEvent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher := &capturePublisher{}
			uc := NewProcessPayment(publisher)

			correlationID := models.GenerateUUID()
			request := events.NewEvent(events.ProcessPaymentCommand, events.ProcessPaymentData{
				CorrelationID: correlationID,
				OrderID:       "order-1",
				Amount:        models.Money{Amount: tt.amount, Currency: "USD"},
			}).WithCorrelationID(correlationID)

			require.NoError(t, uc.Execute(context.Background(), request))

			published := publisher.all()
			require.Len(t, published, 1)
			assert.Equal(t, tt.wantEvent, published[0].EventType)
			assert.Equal(t, correlationID, published[0].CorrelationID)

			switch tt.wantEvent {
			case events.PaymentSuccessfulEvent:
				var data events.PaymentSuccessfulData
				require.NoError(t, published[0].UnmarshalPayload(&data))
				assert.NotEmpty(t, data.TransactionID)
				assert.Equal(t, tt.amount, data.Amount.Amount)
			case events.PaymentRejectedEvent:
				var data events.PaymentRejectedData
				require.NoError(t, published[0].UnmarshalPayload(&data))
				assert.Equal(t, "INVALID_AMOUNT", data.ErrorCode)
				assert.Equal(t, "Payment amount must be positive", data.ErrorMessage)
			}
		})
	}
}
