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

const stockUnavailableReason = "Stock is Unavailable"

// ReserveStock use case reacts to new orders by reserving stock. A zero
// quantity cannot be reserved and fails the reservation.
type ReserveStock struct {
	eventPublisher events.Publisher

	// fault, when set, overrides the outcome. Used to exercise the
	// retry path deterministically.
	fault func(orderID string) error
}

// NewReserveStock creates a new ReserveStock use case
func NewReserveStock(eventPublisher events.Publisher) *ReserveStock {
	return &ReserveStock{eventPublisher: eventPublisher}
}

// WithFault installs a fault hook consulted before every reservation
func (uc *ReserveStock) WithFault(fault func(orderID string) error) *ReserveStock {
	uc.fault = fault
	return uc
}

// Execute reserves stock for the order and publishes the outcome
func (uc *ReserveStock) Execute(ctx context.Context, event *events.Event) error {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "reserve_stock")
	defer span.End()

	var status = "error"
	defer func() {
		telemetry.RecordCounter(ctx, "stock_operations_total", "Total stock operations", 1,
			attribute.String("operation", "reserve_stock"),
			attribute.String("status", status),
		)
		telemetry.RecordHistogram(ctx, "stock_operation_duration_seconds", "Stock operation duration", time.Since(start).Seconds(),
			attribute.String("operation", "reserve_stock"),
			attribute.String("status", status),
		)
	}()

	var data events.OrderCreatedData
	if err := event.UnmarshalPayload(&data); err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "failed to decode order created event")
	}

	span.SetAttributes(
		attribute.String("order_id", data.OrderID),
		attribute.Int("quantity", data.IsAvailable),
	)

	if uc.fault != nil {
		if err := uc.fault(data.OrderID); err != nil {
			span.RecordError(err)
			return err
		}
	}

	if data.IsAvailable == 0 {
		log.Printf("stock: reservation failed for order %s [correlation_id=%s]",
			data.OrderID, event.CorrelationID)

		failed := events.NewEvent(events.StockReservationFailedEvent, events.StockReservationFailedData{
			CorrelationID: event.CorrelationID,
			OrderID:       data.OrderID,
			Reason:        stockUnavailableReason,
		}).WithCorrelationID(event.CorrelationID)

		if err := uc.eventPublisher.Publish(ctx, failed); err != nil {
			span.RecordError(err)
			return errors.Wrap(err, "failed to publish stock reservation failed event")
		}

		status = "success"
		return nil
	}

	reserved := events.NewEvent(events.StockReservedEvent, events.StockReservedData{
		CorrelationID: event.CorrelationID,
		OrderID:       data.OrderID,
	}).WithCorrelationID(event.CorrelationID)

	if err := uc.eventPublisher.Publish(ctx, reserved); err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "failed to publish stock reserved event")
	}

	log.Printf("stock: reserved for order %s [correlation_id=%s]", data.OrderID, event.CorrelationID)
	status = "success"
	return nil
}
