package infrastructure

import (
	"context"
	"sync"

	"github.com/draftea/order-system/orders-service/domain"
	"github.com/draftea/order-system/shared/models"
)

var _ domain.SagaRepository = (*MemorySagaRepository)(nil)

// MemorySagaRepository keeps saga instances in memory with a mutex per
// correlation id to serialize mutation. Non-durable, for the demo
// deployment mode and tests.
type MemorySagaRepository struct {
	mux       sync.Mutex
	instances map[models.ID]*domain.OrderSaga
	locks     map[models.ID]*sync.Mutex
}

// NewMemorySagaRepository creates a new in-memory saga repository
func NewMemorySagaRepository() *MemorySagaRepository {
	return &MemorySagaRepository{
		instances: make(map[models.ID]*domain.OrderSaga),
		locks:     make(map[models.ID]*sync.Mutex),
	}
}

func (r *MemorySagaRepository) keyLock(correlationID models.ID) *sync.Mutex {
	r.mux.Lock()
	defer r.mux.Unlock()

	lock, ok := r.locks[correlationID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[correlationID] = lock
	}
	return lock
}

// WithInstance implements domain.SagaRepository. The per-key mutex makes
// mutation strictly serial per correlation id while different ids proceed
// concurrently.
func (r *MemorySagaRepository) WithInstance(
	ctx context.Context,
	correlationID models.ID,
	create bool,
	fn func(*domain.OrderSaga) error,
) error {
	lock := r.keyLock(correlationID)
	lock.Lock()
	defer lock.Unlock()

	r.mux.Lock()
	stored, ok := r.instances[correlationID]
	r.mux.Unlock()

	if !ok && !create {
		return domain.ErrSagaNotFound
	}

	var working *domain.OrderSaga
	if ok {
		working = cloneSaga(stored)
	} else {
		working = domain.NewOrderSaga(correlationID)
	}

	if err := fn(working); err != nil {
		return err
	}

	r.mux.Lock()
	r.instances[correlationID] = working
	r.mux.Unlock()
	return nil
}

// Find returns a copy of the stored instance
func (r *MemorySagaRepository) Find(ctx context.Context, correlationID models.ID) (*domain.OrderSaga, error) {
	r.mux.Lock()
	defer r.mux.Unlock()

	stored, ok := r.instances[correlationID]
	if !ok {
		return nil, domain.ErrSagaNotFound
	}
	return cloneSaga(stored), nil
}

// cloneSaga copies an instance so callers never share the stored map
func cloneSaga(saga *domain.OrderSaga) *domain.OrderSaga {
	clone := *saga
	clone.ActiveTimers = make(map[string]models.ID, len(saga.ActiveTimers))
	for name, token := range saga.ActiveTimers {
		clone.ActiveTimers[name] = token
	}
	return &clone
}
