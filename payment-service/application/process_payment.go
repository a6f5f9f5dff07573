package application

import (
	"context"
	"log"
	"time"

	"github.com/draftea/order-system/shared/events"
	"github.com/draftea/order-system/shared/models"
	"github.com/pkg/errors"
)

// ProcessPayment use case answers payment requests. It rejects zero and
// negative amounts and otherwise responds with a transaction id.
type ProcessPayment struct {
	eventPublisher events.Publisher

	// fault, when set, overrides the outcome. Used to exercise the
	// retry path deterministically.
	fault func(orderID string) error
}

// NewProcessPayment creates a new ProcessPayment use case
func NewProcessPayment(eventPublisher events.Publisher) *ProcessPayment {
	return &ProcessPayment{eventPublisher: eventPublisher}
}

// WithFault installs a fault hook consulted before every payment
func (uc *ProcessPayment) WithFault(fault func(orderID string) error) *ProcessPayment {
	uc.fault = fault
	return uc
}

// Execute processes a payment request and publishes the correlated response
func (uc *ProcessPayment) Execute(ctx context.Context, event *events.Event) error {
	var data events.ProcessPaymentData
	if err := event.UnmarshalPayload(&data); err != nil {
		return errors.Wrap(err, "failed to decode process payment request")
	}

	if uc.fault != nil {
		if err := uc.fault(data.OrderID); err != nil {
			return err
		}
	}

	var response *events.Event
	if data.Amount.Amount <= 0 {
		response = events.NewEvent(events.PaymentRejectedEvent, events.PaymentRejectedData{
			CorrelationID: event.CorrelationID,
			OrderID:       data.OrderID,
			ErrorCode:     "INVALID_AMOUNT",
			ErrorMessage:  "Payment amount must be positive",
			FailedAt:      time.Now(),
		})
	} else {
		response = events.NewEvent(events.PaymentSuccessfulEvent, events.PaymentSuccessfulData{
			CorrelationID: event.CorrelationID,
			OrderID:       data.OrderID,
			TransactionID: models.GenerateUUID().String(),
			Amount:        data.Amount,
			ProcessedAt:   time.Now(),
		})
	}
	response.WithCorrelationID(event.CorrelationID)

	log.Printf("payment: request for order %s resolved as %s [correlation_id=%s]",
		data.OrderID, response.EventType, event.CorrelationID)

	if err := uc.eventPublisher.Publish(ctx, response); err != nil {
		return errors.Wrap(err, "failed to publish payment response")
	}
	return nil
}
