package handlers

import (
	"context"

	"github.com/draftea/order-system/payment-service/application"
	"github.com/draftea/order-system/shared/events"
)

// PaymentEventHandlers contains event handlers for the payment service
type PaymentEventHandlers struct {
	completePayment *application.CompletePayment
	processPayment  *application.ProcessPayment
}

// NewPaymentEventHandlers creates new payment event handlers
func NewPaymentEventHandlers(
	completePayment *application.CompletePayment,
	processPayment *application.ProcessPayment,
) *PaymentEventHandlers {
	return &PaymentEventHandlers{
		completePayment: completePayment,
		processPayment:  processPayment,
	}
}

// HandlerID returns the unique identifier for this event handler
func (h *PaymentEventHandlers) HandlerID() string {
	return "payment-service-event-handler"
}

// Handle implements the events.EventHandler interface
func (h *PaymentEventHandlers) Handle(ctx context.Context, event *events.Event) error {
	switch event.EventType {
	case events.CompletePaymentCommand:
		return h.completePayment.Execute(ctx, event)
	case events.ProcessPaymentCommand:
		return h.processPayment.Execute(ctx, event)
	default:
		// Unknown event type, ignore
		return nil
	}
}
