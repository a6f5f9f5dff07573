package application

import (
	"context"
	"log"
	"time"

	"github.com/draftea/order-system/shared/events"
	"github.com/draftea/order-system/shared/messaging"
	"github.com/draftea/order-system/shared/models"
	"github.com/pkg/errors"
)

const (
	inventoryRequestTimeout = 15 * time.Second
	paymentRequestTimeout   = 30 * time.Second
)

// ProcessOrderCommand validates an order synchronously: inventory first,
// then payment, each over correlated request/response.
type ProcessOrderCommand struct {
	OrderID       string                 `json:"order_id"`
	CustomerEmail string                 `json:"customer_email"`
	Amount        models.Money           `json:"amount"`
	PaymentMethod string                 `json:"payment_method"`
	Items         []events.InventoryItem `json:"items"`
}

// ProcessOrderResult reports the outcome and the steps taken
type ProcessOrderResult struct {
	OrderID         string    `json:"order_id"`
	CorrelationID   models.ID `json:"correlation_id"`
	IsSuccessful    bool      `json:"is_successful"`
	Status          string    `json:"status"`
	Message         string    `json:"message"`
	TransactionID   string    `json:"transaction_id,omitempty"`
	ProcessingSteps []string  `json:"processing_steps"`
}

// ProcessOrder use case drives the standalone command/response flow against
// the inventory and payment responders.
type ProcessOrder struct {
	requester *messaging.Requester
}

// NewProcessOrder creates a new ProcessOrder use case
func NewProcessOrder(requester *messaging.Requester) *ProcessOrder {
	return &ProcessOrder{requester: requester}
}

// Execute runs the inventory check and, when stock is available, the
// payment request. Timeouts and failure-shaped responses come back as
// result statuses, never as a crash.
func (uc *ProcessOrder) Execute(ctx context.Context, cmd *ProcessOrderCommand) (*ProcessOrderResult, error) {
	if cmd.OrderID == "" {
		return nil, errors.New("order id is required")
	}

	correlationID := models.GenerateUUID()
	result := &ProcessOrderResult{
		OrderID:       cmd.OrderID,
		CorrelationID: correlationID,
	}

	result.ProcessingSteps = append(result.ProcessingSteps, "Starting inventory check")
	inventoryResponse, err := uc.checkInventory(ctx, cmd, correlationID)
	if err != nil {
		if errors.Is(err, messaging.ErrRequestTimeout) {
			result.Status = "InventoryTimeout"
			result.Message = "Inventory service did not respond in time"
			result.ProcessingSteps = append(result.ProcessingSteps, "Inventory check timed out")
			return result, nil
		}
		return nil, err
	}

	if inventoryResponse.EventType == events.InventoryUnavailableEvent {
		var data events.InventoryUnavailableData
		if err := inventoryResponse.UnmarshalPayload(&data); err != nil {
			return nil, errors.Wrap(err, "failed to decode inventory response")
		}
		result.Status = "InventoryUnavailable"
		result.Message = data.Message
		result.ProcessingSteps = append(result.ProcessingSteps, "Inventory unavailable")
		return result, nil
	}
	result.ProcessingSteps = append(result.ProcessingSteps, "Inventory confirmed")

	result.ProcessingSteps = append(result.ProcessingSteps, "Starting payment")
	paymentResponse, err := uc.processPayment(ctx, cmd, correlationID)
	if err != nil {
		if errors.Is(err, messaging.ErrRequestTimeout) {
			result.Status = "PaymentTimeout"
			result.Message = "Payment service did not respond in time"
			result.ProcessingSteps = append(result.ProcessingSteps, "Payment timed out")
			return result, nil
		}
		return nil, err
	}

	switch paymentResponse.EventType {
	case events.PaymentSuccessfulEvent:
		var data events.PaymentSuccessfulData
		if err := paymentResponse.UnmarshalPayload(&data); err != nil {
			return nil, errors.Wrap(err, "failed to decode payment response")
		}
		result.IsSuccessful = true
		result.Status = "Completed"
		result.Message = "Order processed successfully"
		result.TransactionID = data.TransactionID
		result.ProcessingSteps = append(result.ProcessingSteps, "Payment completed")
	case events.PaymentRejectedEvent:
		var data events.PaymentRejectedData
		if err := paymentResponse.UnmarshalPayload(&data); err != nil {
			return nil, errors.Wrap(err, "failed to decode payment response")
		}
		result.Status = "PaymentRejected"
		result.Message = data.ErrorMessage
		result.ProcessingSteps = append(result.ProcessingSteps, "Payment rejected")
	}

	log.Printf("process order: %s finished with status %s [correlation_id=%s]",
		cmd.OrderID, result.Status, correlationID)
	return result, nil
}

func (uc *ProcessOrder) checkInventory(ctx context.Context, cmd *ProcessOrderCommand, correlationID models.ID) (*events.Event, error) {
	request := events.NewEvent(events.CheckInventoryCommand, events.CheckInventoryData{
		CorrelationID: correlationID,
		OrderID:       cmd.OrderID,
		Items:         cmd.Items,
	}).WithCorrelationID(correlationID)

	response, err := uc.requester.Request(ctx, request,
		[]string{events.InventoryAvailableEvent, events.InventoryUnavailableEvent},
		inventoryRequestTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "inventory check request")
	}
	return response, nil
}

func (uc *ProcessOrder) processPayment(ctx context.Context, cmd *ProcessOrderCommand, correlationID models.ID) (*events.Event, error) {
	request := events.NewEvent(events.ProcessPaymentCommand, events.ProcessPaymentData{
		CorrelationID: correlationID,
		OrderID:       cmd.OrderID,
		Amount:        cmd.Amount,
		PaymentMethod: cmd.PaymentMethod,
		CustomerEmail: cmd.CustomerEmail,
	}).WithCorrelationID(correlationID)

	response, err := uc.requester.Request(ctx, request,
		[]string{events.PaymentSuccessfulEvent, events.PaymentRejectedEvent},
		paymentRequestTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "payment request")
	}
	return response, nil
}
