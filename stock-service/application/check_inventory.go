package application

import (
	"context"
	"log"
	"sync"

	"github.com/draftea/order-system/shared/events"
	"github.com/pkg/errors"
)

// defaultInventory seeds the in-memory inventory
var defaultInventory = map[string]int{
	"Laptop":     10,
	"Mouse":      50,
	"Keyboard":   25,
	"Monitor":    5,
	"Headphones": 15,
}

// CheckInventory use case answers inventory check requests. It responds on
// the available topic when every requested line fits the current stock, or
// on the unavailable topic listing the short lines.
type CheckInventory struct {
	eventPublisher events.Publisher

	mux       sync.RWMutex
	inventory map[string]int
}

// NewCheckInventory creates a new CheckInventory use case with the default
// inventory.
func NewCheckInventory(eventPublisher events.Publisher) *CheckInventory {
	inventory := make(map[string]int, len(defaultInventory))
	for product, quantity := range defaultInventory {
		inventory[product] = quantity
	}
	return &CheckInventory{
		eventPublisher: eventPublisher,
		inventory:      inventory,
	}
}

// SetStock overrides the available quantity for a product
func (uc *CheckInventory) SetStock(product string, quantity int) {
	uc.mux.Lock()
	defer uc.mux.Unlock()
	uc.inventory[product] = quantity
}

// Execute checks the requested items against the inventory and publishes
// the correlated response.
func (uc *CheckInventory) Execute(ctx context.Context, event *events.Event) error {
	var data events.CheckInventoryData
	if err := event.UnmarshalPayload(&data); err != nil {
		return errors.Wrap(err, "failed to decode inventory check request")
	}

	uc.mux.RLock()
	results := make([]events.InventoryItemResult, 0, len(data.Items))
	available := true
	for _, item := range data.Items {
		stock := uc.inventory[item.ProductName]
		ok := stock >= item.RequiredQuantity
		if !ok {
			available = false
		}
		results = append(results, events.InventoryItemResult{
			ProductName:       item.ProductName,
			AvailableQuantity: stock,
			RequiredQuantity:  item.RequiredQuantity,
			IsAvailable:       ok,
		})
	}
	uc.mux.RUnlock()

	var response *events.Event
	if available {
		response = events.NewEvent(events.InventoryAvailableEvent, events.InventoryAvailableData{
			CorrelationID: event.CorrelationID,
			OrderID:       data.OrderID,
			Items:         results,
		})
	} else {
		response = events.NewEvent(events.InventoryUnavailableEvent, events.InventoryUnavailableData{
			CorrelationID: event.CorrelationID,
			OrderID:       data.OrderID,
			Items:         results,
			Message:       "One or more items are out of stock",
		})
	}
	response.WithCorrelationID(event.CorrelationID)

	log.Printf("inventory: order %s available=%t [correlation_id=%s]",
		data.OrderID, available, event.CorrelationID)

	if err := uc.eventPublisher.Publish(ctx, response); err != nil {
		return errors.Wrap(err, "failed to publish inventory response")
	}
	return nil
}
