package application

import (
	"context"
	"testing"

	paymentapp "github.com/draftea/order-system/payment-service/application"
	stockapp "github.com/draftea/order-system/stock-service/application"

	"github.com/draftea/order-system/shared/events"
	sharedinfra "github.com/draftea/order-system/shared/infrastructure"
	"github.com/draftea/order-system/shared/messaging"
	"github.com/draftea/order-system/shared/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProcessOrder(t *testing.T, withInventory, withPayment bool) *ProcessOrder {
	t.Helper()
	ctx := context.Background()

	bus := sharedinfra.NewMemoryEventBus()
	t.Cleanup(func() { bus.Close() })

	requester := messaging.NewRequester(bus)
	for _, topic := range []string{
		events.InventoryAvailableEvent,
		events.InventoryUnavailableEvent,
		events.PaymentSuccessfulEvent,
		events.PaymentRejectedEvent,
	} {
		require.NoError(t, bus.Subscribe(ctx, topic, requester))
	}

	if withInventory {
		checkInventory := stockapp.NewCheckInventory(bus)
		require.NoError(t, bus.Subscribe(ctx, events.CheckInventoryCommand,
			&handlerFunc{id: "inventory", fn: checkInventory.Execute}))
	}
	if withPayment {
		processPayment := paymentapp.NewProcessPayment(bus)
		require.NoError(t, bus.Subscribe(ctx, events.ProcessPaymentCommand,
			&handlerFunc{id: "payment", fn: processPayment.Execute}))
	}

	return NewProcessOrder(requester)
}

func processOrderCommand(amount int64, items ...events.InventoryItem) *ProcessOrderCommand {
	if len(items) == 0 {
		items = []events.InventoryItem{{ProductName: "Laptop", RequiredQuantity: 1}}
	}
	return &ProcessOrderCommand{
		OrderID:       "order-1",
		CustomerEmail: "customer@example.com",
		Amount:        models.Money{Amount: amount, Currency: "USD"},
		PaymentMethod: "card",
		Items:         items,
	}
}

func TestProcessOrder_Completed(t *testing.T) {
	uc := newProcessOrder(t, true, true)

	result, err := uc.Execute(context.Background(), processOrderCommand(2500))
	require.NoError(t, err)

	assert.True(t, result.IsSuccessful)
	assert.Equal(t, "Completed", result.Status)
	assert.NotEmpty(t, result.TransactionID)
	assert.Contains(t, result.ProcessingSteps, "Inventory confirmed")
	assert.Contains(t, result.ProcessingSteps, "Payment completed")
}

func TestProcessOrder_InventoryUnavailable(t *testing.T) {
	uc := newProcessOrder(t, true, true)

	cmd := processOrderCommand(2500, events.InventoryItem{
		ProductName:      "Monitor",
		RequiredQuantity: 100,
	})
	result, err := uc.Execute(context.Background(), cmd)
	require.NoError(t, err)

	assert.False(t, result.IsSuccessful)
	assert.Equal(t, "InventoryUnavailable", result.Status)
	assert.Equal(t, "One or more items are out of stock", result.Message)
	assert.NotContains(t, result.ProcessingSteps, "Starting payment")
}

func TestProcessOrder_PaymentRejected(t *testing.T) {
	uc := newProcessOrder(t, true, true)

	result, err := uc.Execute(context.Background(), processOrderCommand(0))
	require.NoError(t, err)

	assert.False(t, result.IsSuccessful)
	assert.Equal(t, "PaymentRejected", result.Status)
	assert.Equal(t, "Payment amount must be positive", result.Message)
	assert.Empty(t, result.TransactionID)
}

func TestProcessOrder_RequiresOrderID(t *testing.T) {
	uc := newProcessOrder(t, true, true)

	cmd := processOrderCommand(2500)
	cmd.OrderID = ""
	_, err := uc.Execute(context.Background(), cmd)
	require.Error(t, err)
}
