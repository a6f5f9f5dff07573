package handlers

import (
	"context"

	"github.com/draftea/order-system/orders-service/application"
	"github.com/draftea/order-system/shared/events"
)

// OrderEventHandlers contains event handlers for the orders service
type OrderEventHandlers struct {
	orchestrator *application.Orchestrator
}

// NewOrderEventHandlers creates new order event handlers
func NewOrderEventHandlers(orchestrator *application.Orchestrator) *OrderEventHandlers {
	return &OrderEventHandlers{orchestrator: orchestrator}
}

// HandlerID returns the unique identifier for this event handler
func (h *OrderEventHandlers) HandlerID() string {
	return "orders-service-event-handler"
}

// Handle implements the events.EventHandler interface. Every saga event,
// timer firings included, goes through the orchestrator; anything else is
// ignored.
func (h *OrderEventHandlers) Handle(ctx context.Context, event *events.Event) error {
	switch event.EventType {
	case events.CreateOrderCommand,
		events.StockReservedEvent,
		events.StockReservationFailedEvent,
		events.PaymentCompletedEvent,
		events.PaymentFailedEvent,
		events.PaymentTimeoutEvent,
		events.OrderExpirationEvent:
		return h.orchestrator.Handle(ctx, event)
	default:
		// Unknown event type, ignore
		return nil
	}
}
