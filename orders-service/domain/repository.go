package domain

import (
	"context"

	"github.com/draftea/order-system/shared/models"
	"github.com/pkg/errors"
)

// ErrSagaNotFound is returned for a correlation id with no stored instance.
// For non-creating events this is a discarded-message condition, not a
// failure escalated to the transport.
var ErrSagaNotFound = errors.New("saga instance not found")

// SagaRepository loads and stores saga instances by correlation id with
// per-key exclusive access.
type SagaRepository interface {
	// WithInstance loads the instance (creating it when create is true and
	// none exists), runs fn with exclusive access, and persists the result
	// when fn returns nil. Invocations for the same correlation id never
	// overlap; different correlation ids proceed fully concurrently.
	WithInstance(ctx context.Context, correlationID models.ID, create bool, fn func(*OrderSaga) error) error

	// Find returns a copy of the instance without taking the mutation lock
	Find(ctx context.Context, correlationID models.ID) (*OrderSaga, error)
}
