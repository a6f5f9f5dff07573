package application

import (
	"context"
	"time"

	"github.com/draftea/order-system/shared/events"
	"github.com/draftea/order-system/shared/models"
	"github.com/pkg/errors"
)

// CreateOrderCommand represents the command to start a new order saga
type CreateOrderCommand struct {
	OrderID  string       `json:"order_id"`
	Email    string       `json:"email"`
	Quantity int          `json:"quantity"`
	Price    models.Money `json:"price"`
}

// CreateOrderResult reports the started saga
type CreateOrderResult struct {
	CorrelationID models.ID `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// CreateOrder use case generates a correlation id and publishes the create
// command that initiates the saga
type CreateOrder struct {
	publisher events.Publisher
}

// NewCreateOrder creates a new CreateOrder use case
func NewCreateOrder(publisher events.Publisher) *CreateOrder {
	return &CreateOrder{publisher: publisher}
}

// Execute validates the command and publishes it
func (uc *CreateOrder) Execute(ctx context.Context, cmd *CreateOrderCommand) (*CreateOrderResult, error) {
	if err := uc.validateCommand(cmd); err != nil {
		return nil, errors.Wrap(err, "invalid command")
	}

	correlationID := models.GenerateUUID()
	createdAt := time.Now()

	event := events.NewEvent(events.CreateOrderCommand, events.CreateOrderData{
		CorrelationID: correlationID,
		OrderID:       cmd.OrderID,
		Email:         cmd.Email,
		Quantity:      cmd.Quantity,
		Price:         cmd.Price,
		CreatedAt:     createdAt,
	}).WithCorrelationID(correlationID)

	if err := uc.publisher.Publish(ctx, event); err != nil {
		return nil, errors.Wrap(err, "failed to publish create order command")
	}

	return &CreateOrderResult{
		CorrelationID: correlationID,
		OrderID:       cmd.OrderID,
		Status:        "Created",
		CreatedAt:     createdAt,
	}, nil
}

func (uc *CreateOrder) validateCommand(cmd *CreateOrderCommand) error {
	if cmd.OrderID == "" {
		return errors.New("order id is required")
	}
	if cmd.Email == "" {
		return errors.New("email is required")
	}
	if cmd.Quantity < 0 {
		return errors.New("quantity must not be negative")
	}
	if cmd.Price.Amount < 0 {
		return errors.New("price must not be negative")
	}
	return nil
}
