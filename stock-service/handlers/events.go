package handlers

import (
	"context"

	"github.com/draftea/order-system/shared/events"
	"github.com/draftea/order-system/stock-service/application"
)

// StockEventHandlers contains event handlers for the stock service
type StockEventHandlers struct {
	reserveStock   *application.ReserveStock
	checkInventory *application.CheckInventory
}

// NewStockEventHandlers creates new stock event handlers
func NewStockEventHandlers(
	reserveStock *application.ReserveStock,
	checkInventory *application.CheckInventory,
) *StockEventHandlers {
	return &StockEventHandlers{
		reserveStock:   reserveStock,
		checkInventory: checkInventory,
	}
}

// HandlerID returns the unique identifier for this event handler
func (h *StockEventHandlers) HandlerID() string {
	return "stock-service-event-handler"
}

// Handle implements the events.EventHandler interface
func (h *StockEventHandlers) Handle(ctx context.Context, event *events.Event) error {
	switch event.EventType {
	case events.OrderCreatedEvent:
		return h.reserveStock.Execute(ctx, event)
	case events.CheckInventoryCommand:
		return h.checkInventory.Execute(ctx, event)
	default:
		// Unknown event type, ignore
		return nil
	}
}
