package application

import (
	"context"
	"log"

	"github.com/draftea/order-system/orders-service/domain"
	"github.com/draftea/order-system/shared/events"
	"github.com/draftea/order-system/shared/models"
	"github.com/draftea/order-system/shared/scheduler"
	"github.com/pkg/errors"
)

// Orchestrator drives the order saga: it loads the instance for an inbound
// event under the repository's per-key lock, applies the transition, and
// executes the resulting actions. Publishes go through the outbox-aware
// publisher, so the outside world sees them only after the whole handling
// succeeded.
type Orchestrator struct {
	repository domain.SagaRepository
	publisher  events.Publisher
	scheduler  *scheduler.Scheduler
	config     domain.Config
}

// NewOrchestrator creates the saga orchestrator
func NewOrchestrator(
	repository domain.SagaRepository,
	publisher events.Publisher,
	sched *scheduler.Scheduler,
	config domain.Config,
) *Orchestrator {
	return &Orchestrator{
		repository: repository,
		publisher:  publisher,
		scheduler:  sched,
		config:     config,
	}
}

// Handle processes one inbound saga event. Events for unknown instances
// and events a terminal or advanced instance no longer expects are
// discarded with a log line; they are not errors.
func (o *Orchestrator) Handle(ctx context.Context, event *events.Event) error {
	correlationID := event.CorrelationID
	if correlationID.IsEmpty() {
		log.Printf("orchestrator: discarding %s without correlation id", event.Topic)
		return nil
	}

	create := event.EventType == events.CreateOrderCommand

	var cancelTokens []models.ID
	err := o.repository.WithInstance(ctx, correlationID, create, func(saga *domain.OrderSaga) error {
		cancelTokens = nil
		actions, handled, err := domain.Apply(saga, event, o.config)
		if err != nil {
			return errors.Wrapf(err, "transition failed for %s", event.Topic)
		}
		if !handled {
			log.Printf("orchestrator: discarding %s for saga in state %q [correlation_id=%s]",
				event.Topic, saga.CurrentState, correlationID)
			return nil
		}

		cancelTokens = o.detachTimers(saga, actions.CancelTimers)
		if err := o.scheduleTimers(ctx, saga, actions.Schedule); err != nil {
			return err
		}

		if len(actions.Publish) > 0 {
			if err := o.publisher.Publish(ctx, actions.Publish...); err != nil {
				return errors.Wrap(err, "failed to publish transition events")
			}
		}

		log.Printf("orchestrator: %s moved saga to %q [correlation_id=%s]",
			event.Topic, saga.CurrentState, correlationID)
		return nil
	})

	if errors.Is(err, domain.ErrSagaNotFound) {
		log.Printf("orchestrator: discarding %s for unknown saga [correlation_id=%s]",
			event.Topic, correlationID)
		return nil
	}
	if err != nil {
		return err
	}

	// Store-side cancellation runs only after the transition is persisted,
	// so a failed handling leaves the safety timers armed. A cancellation
	// that never runs is harmless: the timer fires into an instance that no
	// longer expects it and is discarded.
	for _, token := range cancelTokens {
		if err := o.scheduler.Cancel(ctx, token); err != nil {
			log.Printf("orchestrator: failed to cancel timer %s [correlation_id=%s]: %v",
				token, correlationID, err)
		}
	}
	return nil
}

// detachTimers removes the named timers from the instance and returns their
// tokens for cancellation after the persist.
func (o *Orchestrator) detachTimers(saga *domain.OrderSaga, names []string) []models.ID {
	var tokens []models.ID
	for _, name := range names {
		token, ok := saga.ActiveTimers[name]
		if !ok {
			continue
		}
		tokens = append(tokens, token)
		delete(saga.ActiveTimers, name)
	}
	return tokens
}

func (o *Orchestrator) scheduleTimers(ctx context.Context, saga *domain.OrderSaga, schedules []domain.ScheduleAction) error {
	for _, action := range schedules {
		token, err := o.scheduler.Schedule(ctx, saga.CorrelationID, action.Name, action.Delay, action.Event)
		if err != nil {
			return errors.Wrapf(err, "failed to schedule timer %s", action.Name)
		}
		saga.ActiveTimers[action.Name] = token
	}
	return nil
}

// Find exposes the saga view for the HTTP layer
func (o *Orchestrator) Find(ctx context.Context, correlationID models.ID) (*domain.OrderSaga, error) {
	return o.repository.Find(ctx, correlationID)
}
