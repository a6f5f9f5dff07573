package events

import (
	"time"

	"github.com/draftea/order-system/shared/models"
)

// Payload shapes for the order workflow. Every message carries the saga
// correlation id both in the Event envelope and in its payload, so consumers
// that only see the decoded payload can still correlate.

// CreateOrderData starts a new order saga
type CreateOrderData struct {
	CorrelationID models.ID    `json:"correlation_id,omitempty"`
	OrderID       string       `json:"order_id"`
	Email         string       `json:"email"`
	Quantity      int          `json:"quantity"`
	Price         models.Money `json:"price"`
	CreatedAt     time.Time    `json:"created_at"`
}

// OrderCreatedData announces a new order to downstream consumers
type OrderCreatedData struct {
	CorrelationID models.ID `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	IsAvailable   int       `json:"is_available"`
}

// StockReservedData is published by the stock service on successful reservation
type StockReservedData struct {
	CorrelationID models.ID `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
}

// StockReservationFailedData is published when stock cannot be reserved
type StockReservationFailedData struct {
	CorrelationID models.ID `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	Reason        string    `json:"reason"`
}

// CompletePaymentData asks the payment service to charge the order total
type CompletePaymentData struct {
	CorrelationID models.ID    `json:"correlation_id"`
	OrderID       string       `json:"order_id"`
	TotalPrice    models.Money `json:"total_price"`
}

// PaymentCompletedData is published by the payment service on success
type PaymentCompletedData struct {
	CorrelationID models.ID    `json:"correlation_id"`
	Amount        models.Money `json:"amount"`
	CompletedAt   time.Time    `json:"completed_at"`
}

// PaymentFailedData is published by the payment service on failure
type PaymentFailedData struct {
	CorrelationID models.ID `json:"correlation_id"`
	Cause         string    `json:"cause"`
}

// OrderFailedData notifies the customer-facing consumers about a failed order
type OrderFailedData struct {
	CorrelationID models.ID `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	Email         string    `json:"email"`
	Reason        string    `json:"reason"`
}

// NotificationData carries the final customer notification
type NotificationData struct {
	CorrelationID models.ID `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	Email         string    `json:"email"`
	Message       string    `json:"message"`
}

// TimerFiredData is redelivered by the scheduler when a saga timer expires.
// The shape matches what the saga scheduled, so timer firings enter the
// pipeline as ordinary events.
type TimerFiredData struct {
	CorrelationID models.ID `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	Email         string    `json:"email"`
}

// CheckInventoryData requests an inventory check (request/response)
type CheckInventoryData struct {
	CorrelationID models.ID       `json:"correlation_id"`
	OrderID       string          `json:"order_id"`
	Items         []InventoryItem `json:"items"`
}

// InventoryItem is a single product line in an inventory check
type InventoryItem struct {
	ProductName      string `json:"product_name"`
	RequiredQuantity int    `json:"required_quantity"`
}

// InventoryItemResult is the per-product outcome of an inventory check
type InventoryItemResult struct {
	ProductName       string `json:"product_name"`
	AvailableQuantity int    `json:"available_quantity"`
	RequiredQuantity  int    `json:"required_quantity"`
	IsAvailable       bool   `json:"is_available"`
}

// InventoryAvailableData is the success response to an inventory check
type InventoryAvailableData struct {
	CorrelationID models.ID             `json:"correlation_id"`
	OrderID       string                `json:"order_id"`
	Items         []InventoryItemResult `json:"items"`
}

// InventoryUnavailableData is the failure response to an inventory check
type InventoryUnavailableData struct {
	CorrelationID models.ID             `json:"correlation_id"`
	OrderID       string                `json:"order_id"`
	Items         []InventoryItemResult `json:"items"`
	Message       string                `json:"message"`
}

// ProcessPaymentData requests a payment (request/response)
type ProcessPaymentData struct {
	CorrelationID models.ID    `json:"correlation_id"`
	OrderID       string       `json:"order_id"`
	Amount        models.Money `json:"amount"`
	PaymentMethod string       `json:"payment_method"`
	CustomerEmail string       `json:"customer_email"`
}

// PaymentSuccessfulData is the success response to a payment request
type PaymentSuccessfulData struct {
	CorrelationID models.ID    `json:"correlation_id"`
	OrderID       string       `json:"order_id"`
	TransactionID string       `json:"transaction_id"`
	Amount        models.Money `json:"amount"`
	ProcessedAt   time.Time    `json:"processed_at"`
}

// PaymentRejectedData is the failure response to a payment request
type PaymentRejectedData struct {
	CorrelationID models.ID `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	ErrorCode     string    `json:"error_code"`
	ErrorMessage  string    `json:"error_message"`
	FailedAt      time.Time `json:"failed_at"`
}
