package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/draftea/order-system/shared/events"
	"github.com/draftea/order-system/shared/models"
	"github.com/pkg/errors"
)

const (
	defaultPollInterval = 100 * time.Millisecond
	claimBatchSize      = 100
)

// Scheduler delivers delayed, cancellable events bound to a saga instance.
// A fired timer's event is published onto the same bus as externally-sourced
// events, so consumers need no special casing for timer firings. Delivery
// happens no earlier than the scheduled delay; there is no hard upper bound.
type Scheduler struct {
	store     TimerStore
	publisher events.Publisher
	interval  time.Duration

	mux     sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithPollInterval overrides how often the scheduler looks for due timers
func WithPollInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		s.interval = interval
	}
}

// NewScheduler creates a scheduler firing timers from the store onto the
// publisher. Durability follows the store: the memory store loses timers on
// restart, the postgres store does not.
func NewScheduler(store TimerStore, publisher events.Publisher, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:     store,
		publisher: publisher,
		interval:  defaultPollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule stores a timer that will redeliver the event after at least
// delay. Scheduling again under the same (correlation id, name) replaces
// the previous timer, so one name has at most one outstanding timer per
// saga. Returns the cancellation token.
func (s *Scheduler) Schedule(
	ctx context.Context,
	correlationID models.ID,
	name string,
	delay time.Duration,
	event *events.Event,
) (models.ID, error) {
	if name == "" {
		return "", errors.New("timer name is required")
	}
	if event == nil {
		return "", errors.New("timer event is required")
	}

	timer := &Timer{
		Token:         models.GenerateUUID(),
		CorrelationID: correlationID,
		Name:          name,
		DueAt:         time.Now().Add(delay),
		Event:         event.WithCorrelationID(correlationID),
	}

	if err := s.store.Save(ctx, timer); err != nil {
		return "", errors.Wrapf(err, "failed to schedule timer %s", name)
	}
	return timer.Token, nil
}

// Cancel removes a scheduled timer. Cancelling a timer that already fired
// or was already cancelled is a no-op.
func (s *Scheduler) Cancel(ctx context.Context, token models.ID) error {
	if token.IsEmpty() {
		return nil
	}
	_, err := s.store.Delete(ctx, token)
	if err != nil {
		return errors.Wrap(err, "failed to cancel timer")
	}
	return nil
}

// Start launches the firing loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	if s.running {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.run(ctx)
	return nil
}

// Stop halts the firing loop. Stored timers stay in the store and fire
// after a restart when the store is durable.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	if !s.running {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.running = false
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fireDue(ctx)
		}
	}
}

func (s *Scheduler) fireDue(ctx context.Context) {
	due, err := s.store.Claim(ctx, time.Now(), claimBatchSize)
	if err != nil {
		log.Printf("scheduler: failed to claim due timers: %v", err)
		return
	}

	for _, timer := range due {
		if err := s.publisher.Publish(ctx, timer.Event); err != nil {
			log.Printf("scheduler: failed to publish timer %s [correlation_id=%s]: %v",
				timer.Name, timer.CorrelationID, err)
			// Put the timer back so the claim is not lost delivery.
			if saveErr := s.store.Save(ctx, timer); saveErr != nil {
				log.Printf("scheduler: failed to restore timer %s [correlation_id=%s]: %v",
					timer.Name, timer.CorrelationID, saveErr)
			}
			continue
		}

		log.Printf("scheduler: fired timer %s [correlation_id=%s]", timer.Name, timer.CorrelationID)
	}
}
