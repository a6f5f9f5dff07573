package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/draftea/order-system/shared/events"
	"github.com/draftea/order-system/shared/models"
)

// Timer is one scheduled delivery of an event bound to a saga instance.
// Destroyed on firing or explicit cancellation.
type Timer struct {
	Token         models.ID     `json:"token"`
	CorrelationID models.ID     `json:"correlation_id"`
	Name          string        `json:"name"`
	DueAt         time.Time     `json:"due_at"`
	Event         *events.Event `json:"event"`
}

// TimerStore persists scheduled timers. Save replaces any existing timer
// with the same (correlation id, name) pair, so at most one timer per name
// is outstanding per saga. Claim removes and returns due timers: a claimed
// timer can no longer be cancelled, it is already considered fired.
type TimerStore interface {
	Save(ctx context.Context, timer *Timer) error
	Delete(ctx context.Context, token models.ID) (bool, error)
	Claim(ctx context.Context, now time.Time, limit int) ([]*Timer, error)
}

var _ TimerStore = (*MemoryTimerStore)(nil)

// MemoryTimerStore keeps timers in memory. Non-durable: scheduled timers
// are lost on process restart. Meant for the demo deployment mode and for
// tests; production deployments use the postgres store.
type MemoryTimerStore struct {
	mux    sync.Mutex
	timers map[models.ID]*Timer
}

// NewMemoryTimerStore creates an in-memory timer store
func NewMemoryTimerStore() *MemoryTimerStore {
	return &MemoryTimerStore{
		timers: make(map[models.ID]*Timer),
	}
}

// Save stores a timer, replacing any timer with the same correlation id and
// name
func (s *MemoryTimerStore) Save(ctx context.Context, timer *Timer) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	for token, existing := range s.timers {
		if existing.CorrelationID == timer.CorrelationID && existing.Name == timer.Name {
			delete(s.timers, token)
		}
	}

	s.timers[timer.Token] = timer
	return nil
}

// Delete removes a timer by token, reporting whether it was present
func (s *MemoryTimerStore) Delete(ctx context.Context, token models.ID) (bool, error) {
	s.mux.Lock()
	defer s.mux.Unlock()

	_, ok := s.timers[token]
	delete(s.timers, token)
	return ok, nil
}

// Claim removes and returns up to limit timers due at or before now
func (s *MemoryTimerStore) Claim(ctx context.Context, now time.Time, limit int) ([]*Timer, error) {
	s.mux.Lock()
	defer s.mux.Unlock()

	var due []*Timer
	for _, timer := range s.timers {
		if !timer.DueAt.After(now) {
			due = append(due, timer)
		}
	}

	sort.Slice(due, func(i, j int) bool { return due[i].DueAt.Before(due[j].DueAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	for _, timer := range due {
		delete(s.timers, timer.Token)
	}
	return due, nil
}
