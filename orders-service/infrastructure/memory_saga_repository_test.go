package infrastructure

import (
	"context"
	"sync"
	"testing"

	"github.com/draftea/order-system/orders-service/domain"
	"github.com/draftea/order-system/shared/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySagaRepository_CreateAndFind(t *testing.T) {
	repo := NewMemorySagaRepository()
	correlationID := models.GenerateUUID()

	err := repo.WithInstance(context.Background(), correlationID, true, func(saga *domain.OrderSaga) error {
		saga.OrderID = "order-1"
		saga.CurrentState = domain.StateOrderCreated
		return nil
	})
	require.NoError(t, err)

	saga, err := repo.Find(context.Background(), correlationID)
	require.NoError(t, err)
	assert.Equal(t, "order-1", saga.OrderID)
	assert.Equal(t, domain.StateOrderCreated, saga.CurrentState)
}

func TestMemorySagaRepository_NotFoundWithoutCreate(t *testing.T) {
	repo := NewMemorySagaRepository()

	err := repo.WithInstance(context.Background(), models.GenerateUUID(), false, func(saga *domain.OrderSaga) error {
		t.Fatal("fn should not run for a missing instance")
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrSagaNotFound)

	_, err = repo.Find(context.Background(), models.GenerateUUID())
	assert.ErrorIs(t, err, domain.ErrSagaNotFound)
}

func TestMemorySagaRepository_FailedFnDoesNotPersist(t *testing.T) {
	repo := NewMemorySagaRepository()
	correlationID := models.GenerateUUID()

	require.NoError(t, repo.WithInstance(context.Background(), correlationID, true, func(saga *domain.OrderSaga) error {
		saga.OrderID = "order-1"
		return nil
	}))

	err := repo.WithInstance(context.Background(), correlationID, false, func(saga *domain.OrderSaga) error {
		saga.OrderID = "mutated"
		return errors.New("transition failed")
	})
	require.Error(t, err)

	saga, err := repo.Find(context.Background(), correlationID)
	require.NoError(t, err)
	assert.Equal(t, "order-1", saga.OrderID)
}

func TestMemorySagaRepository_FindReturnsCopy(t *testing.T) {
	repo := NewMemorySagaRepository()
	correlationID := models.GenerateUUID()

	require.NoError(t, repo.WithInstance(context.Background(), correlationID, true, func(saga *domain.OrderSaga) error {
		saga.ActiveTimers["orderExpiration"] = models.GenerateUUID()
		return nil
	}))

	first, err := repo.Find(context.Background(), correlationID)
	require.NoError(t, err)
	first.OrderID = "mutated"
	delete(first.ActiveTimers, "orderExpiration")

	second, err := repo.Find(context.Background(), correlationID)
	require.NoError(t, err)
	assert.Empty(t, second.OrderID)
	assert.Len(t, second.ActiveTimers, 1)
}

func TestMemorySagaRepository_SerializesPerKey(t *testing.T) {
	repo := NewMemorySagaRepository()
	correlationID := models.GenerateUUID()

	require.NoError(t, repo.WithInstance(context.Background(), correlationID, true, func(saga *domain.OrderSaga) error {
		return nil
	}))

	// Concurrent increments on one key must not lose updates.
	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_ = repo.WithInstance(context.Background(), correlationID, false, func(saga *domain.OrderSaga) error {
				saga.Quantity++
				return nil
			})
		}()
	}
	wg.Wait()

	saga, err := repo.Find(context.Background(), correlationID)
	require.NoError(t, err)
	assert.Equal(t, workers, saga.Quantity)
}
