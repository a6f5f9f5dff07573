package domain

import (
	"time"

	"github.com/draftea/order-system/shared/models"
)

// State is the order saga lifecycle state
type State string

const (
	// StateNone is the pre-creation state; only the create command is
	// accepted here.
	StateNone State = ""

	StateOrderCreated           State = "OrderCreated"
	StateStockReserved          State = "StockReserved"
	StateStockReservationFailed State = "StockReservationFailed"
	StateNotification           State = "Notification"
	StatePaymentTimedOut        State = "PaymentTimedOut"
	StateOrderExpired           State = "OrderExpired"
)

// IsTerminal reports whether the state is final. Terminal instances accept
// no further transitions; late or duplicate events are discarded.
func (s State) IsTerminal() bool {
	switch s {
	case StateStockReservationFailed, StateNotification, StatePaymentTimedOut, StateOrderExpired:
		return true
	}
	return false
}

// Saga timer names. A name has at most one outstanding timer per instance.
const (
	TimerPaymentTimeout  = "paymentTimeout"
	TimerOrderExpiration = "orderExpiration"
)

// OrderSaga is the persisted state machine instance coordinating one order.
// Mutated only through transitions, under the repository's per-key
// exclusive access.
type OrderSaga struct {
	CorrelationID    models.ID            `json:"correlation_id"`
	CurrentState     State                `json:"current_state"`
	OrderID          string               `json:"order_id"`
	Email            string               `json:"email"`
	Price            models.Money         `json:"price"`
	Quantity         int                  `json:"quantity"`
	CreatedAt        time.Time            `json:"created_at"`
	NotificationText string               `json:"notification_text"`
	ActiveTimers     map[string]models.ID `json:"active_timers"` // timer name -> scheduler token
	Timestamps       models.Timestamps    `json:"timestamps"`
	Version          models.Version       `json:"version"`
}

// NewOrderSaga creates an empty saga instance for a correlation id
func NewOrderSaga(correlationID models.ID) *OrderSaga {
	return &OrderSaga{
		CorrelationID: correlationID,
		CurrentState:  StateNone,
		ActiveTimers:  make(map[string]models.ID),
		Timestamps:    models.NewTimestamps(),
		Version:       models.NewVersion(),
	}
}

// TotalPrice is the order total (unit price times quantity)
func (s *OrderSaga) TotalPrice() models.Money {
	return s.Price.Multiply(s.Quantity)
}
