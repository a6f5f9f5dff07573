package application

import (
	"context"
	"log"
	"time"

	"github.com/draftea/order-system/shared/events"
	"github.com/draftea/order-system/shared/telemetry"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

const moneyUnavailableCause = "Money is unavailable!!!"

// CompletePayment use case charges an order total as part of the saga. A
// zero total cannot be charged and fails the payment.
type CompletePayment struct {
	eventPublisher events.Publisher

	// fault, when set, overrides the outcome. Used to exercise the
	// retry path deterministically.
	fault func(orderID string) error
}

// NewCompletePayment creates a new CompletePayment use case
func NewCompletePayment(eventPublisher events.Publisher) *CompletePayment {
	return &CompletePayment{eventPublisher: eventPublisher}
}

// WithFault installs a fault hook consulted before every charge
func (uc *CompletePayment) WithFault(fault func(orderID string) error) *CompletePayment {
	uc.fault = fault
	return uc
}

// Execute charges the order total and publishes the outcome
func (uc *CompletePayment) Execute(ctx context.Context, event *events.Event) error {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "complete_payment")
	defer span.End()

	var status = "error"
	defer func() {
		telemetry.RecordCounter(ctx, "payment_operations_total", "Total payment operations", 1,
			attribute.String("operation", "complete_payment"),
			attribute.String("status", status),
		)
		telemetry.RecordHistogram(ctx, "payment_operation_duration_seconds", "Payment operation duration", time.Since(start).Seconds(),
			attribute.String("operation", "complete_payment"),
			attribute.String("status", status),
		)
	}()

	var data events.CompletePaymentData
	if err := event.UnmarshalPayload(&data); err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "failed to decode complete payment command")
	}

	span.SetAttributes(
		attribute.String("order_id", data.OrderID),
		attribute.Int64("amount", data.TotalPrice.Amount),
	)

	if uc.fault != nil {
		if err := uc.fault(data.OrderID); err != nil {
			span.RecordError(err)
			return err
		}
	}

	if data.TotalPrice.Amount == 0 {
		log.Printf("payment: failed for order %s [correlation_id=%s]",
			data.OrderID, event.CorrelationID)

		failed := events.NewEvent(events.PaymentFailedEvent, events.PaymentFailedData{
			CorrelationID: event.CorrelationID,
			Cause:         moneyUnavailableCause,
		}).WithCorrelationID(event.CorrelationID)

		if err := uc.eventPublisher.Publish(ctx, failed); err != nil {
			span.RecordError(err)
			return errors.Wrap(err, "failed to publish payment failed event")
		}

		status = "success"
		return nil
	}

	completed := events.NewEvent(events.PaymentCompletedEvent, events.PaymentCompletedData{
		CorrelationID: event.CorrelationID,
		Amount:        data.TotalPrice,
		CompletedAt:   time.Now(),
	}).WithCorrelationID(event.CorrelationID)

	if err := uc.eventPublisher.Publish(ctx, completed); err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "failed to publish payment completed event")
	}

	log.Printf("payment: completed for order %s [correlation_id=%s]", data.OrderID, event.CorrelationID)
	status = "success"
	return nil
}
