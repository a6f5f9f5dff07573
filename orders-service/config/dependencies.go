package config

import (
	"context"
	"fmt"

	"github.com/draftea/order-system/orders-service/application"
	"github.com/draftea/order-system/orders-service/domain"
	"github.com/draftea/order-system/orders-service/handlers"
	"github.com/draftea/order-system/orders-service/infrastructure"
	paymentapp "github.com/draftea/order-system/payment-service/application"
	paymenthandlers "github.com/draftea/order-system/payment-service/handlers"
	"github.com/draftea/order-system/shared/events"
	sharedinfra "github.com/draftea/order-system/shared/infrastructure"
	"github.com/draftea/order-system/shared/messaging"
	"github.com/draftea/order-system/shared/scheduler"
	"github.com/draftea/order-system/shared/telemetry"
	stockapp "github.com/draftea/order-system/stock-service/application"
	stockhandlers "github.com/draftea/order-system/stock-service/handlers"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

// subscription binds one endpoint to the topics it consumes
type subscription struct {
	Topics  []string
	Handler events.EventHandler
}

type Dependencies struct {
	// Database (nil in memory storage mode)
	DB *sqlx.DB

	// Transport
	EventPublisher  events.Publisher
	EventSubscriber events.Subscriber
	OutboxPublisher *messaging.OutboxPublisher
	DeadLetterSink  messaging.DeadLetterSink

	// Timer service
	TimerStore scheduler.TimerStore
	Scheduler  *scheduler.Scheduler

	// Saga
	SagaRepository domain.SagaRepository
	Orchestrator   *application.Orchestrator

	// Use Cases
	CreateOrder     *application.CreateOrder
	ProcessOrder    *application.ProcessOrder
	ReserveStock    *stockapp.ReserveStock
	CheckInventory  *stockapp.CheckInventory
	CompletePayment *paymentapp.CompletePayment
	ProcessPayment  *paymentapp.ProcessPayment

	// Request/response
	Requester *messaging.Requester

	// Handlers
	OrderHandlers        *handlers.OrderHandlers
	OrderEventHandlers   *handlers.OrderEventHandlers
	StockEventHandlers   *stockhandlers.StockEventHandlers
	PaymentEventHandlers *paymenthandlers.PaymentEventHandlers

	// Policy-wrapped endpoints
	SagaEndpoint    *messaging.Endpoint
	StockEndpoint   *messaging.Endpoint
	PaymentEndpoint *messaging.Endpoint

	// Telemetry
	Telemetry         *telemetry.Telemetry
	telemetryShutdown func()

	subscriptions []subscription

	memoryBus     *sharedinfra.MemoryEventBus
	snsPublisher  *sharedinfra.SNSPublisherAdapter
	sqsSubscriber *sharedinfra.SQSSubscriberAdapter
}

func BuildDependencies(ctx context.Context, cfg *Config) (*Dependencies, error) {
	deps := &Dependencies{}

	// Telemetry
	tel, shutdown, err := telemetry.InitTelemetry(ctx,
		telemetry.OrdersServiceConfig.WithOTLPEndpoint(cfg.Telemetry.OTLPEndpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to init telemetry: %w", err)
	}
	deps.Telemetry = tel
	deps.telemetryShutdown = shutdown

	// Storage
	if cfg.Storage == StoragePostgres {
		db, err := sqlx.Connect("postgres", cfg.GetDatabaseURL())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		deps.DB = db
		deps.SagaRepository = infrastructure.NewPostgresSagaRepository(db)
		deps.TimerStore = scheduler.NewPostgresTimerStore(db)
		deps.DeadLetterSink = messaging.NewPostgresDeadLetterSink(db)
	} else {
		deps.SagaRepository = infrastructure.NewMemorySagaRepository()
		deps.TimerStore = scheduler.NewMemoryTimerStore()
		deps.DeadLetterSink = messaging.NewMemoryDeadLetterSink()
	}

	// Transport
	if cfg.Transport == TransportAWS {
		snsPublisher, err := sharedinfra.NewSNSPublisherAdapter(cfg.AWS.SNSTopicArn)
		if err != nil {
			return nil, fmt.Errorf("failed to create SNS publisher: %w", err)
		}
		sqsSubscriber, err := sharedinfra.NewSQSSubscriberAdapter(cfg.AWS.SQSQueueURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQS subscriber: %w", err)
		}
		deps.snsPublisher = snsPublisher
		deps.sqsSubscriber = sqsSubscriber
		deps.EventPublisher = snsPublisher
		deps.EventSubscriber = sqsSubscriber
	} else {
		bus := sharedinfra.NewMemoryEventBus()
		deps.memoryBus = bus
		deps.EventPublisher = bus
		deps.EventSubscriber = bus
	}

	deps.OutboxPublisher = messaging.NewOutboxPublisher(deps.EventPublisher)

	// Timer service
	deps.Scheduler = scheduler.NewScheduler(deps.TimerStore, deps.EventPublisher,
		scheduler.WithPollInterval(cfg.Scheduler.PollInterval))

	// Request/response. Commands bypass the outbox, responders must see
	// them while the caller waits.
	deps.Requester = messaging.NewRequester(deps.EventPublisher)

	// Saga orchestration
	deps.Orchestrator = application.NewOrchestrator(
		deps.SagaRepository,
		deps.OutboxPublisher,
		deps.Scheduler,
		domain.Config{
			PaymentTimeout:  cfg.Saga.PaymentTimeout,
			OrderExpiration: cfg.Saga.OrderExpiration,
		},
	)

	// Use cases
	deps.CreateOrder = application.NewCreateOrder(deps.OutboxPublisher)
	deps.ProcessOrder = application.NewProcessOrder(deps.Requester)
	deps.ReserveStock = stockapp.NewReserveStock(deps.OutboxPublisher)
	deps.CheckInventory = stockapp.NewCheckInventory(deps.OutboxPublisher)
	deps.CompletePayment = paymentapp.NewCompletePayment(deps.OutboxPublisher)
	deps.ProcessPayment = paymentapp.NewProcessPayment(deps.OutboxPublisher)

	// Handlers
	deps.OrderHandlers = handlers.NewOrderHandlers(deps.CreateOrder, deps.ProcessOrder, deps.Orchestrator)
	deps.OrderEventHandlers = handlers.NewOrderEventHandlers(deps.Orchestrator)
	deps.StockEventHandlers = stockhandlers.NewStockEventHandlers(deps.ReserveStock, deps.CheckInventory)
	deps.PaymentEventHandlers = paymenthandlers.NewPaymentEventHandlers(deps.CompletePayment, deps.ProcessPayment)

	// Policy-wrapped endpoints
	deps.SagaEndpoint, err = messaging.NewEndpoint(
		policyFromConfig("orders-saga", cfg.Endpoints.Saga, sagaClassifier),
		deps.OrderEventHandlers, deps.EventPublisher, deps.DeadLetterSink)
	if err != nil {
		return nil, fmt.Errorf("failed to build saga endpoint: %w", err)
	}
	deps.StockEndpoint, err = messaging.NewEndpoint(
		policyFromConfig("stock", cfg.Endpoints.Stock, nil),
		deps.StockEventHandlers, deps.EventPublisher, deps.DeadLetterSink)
	if err != nil {
		return nil, fmt.Errorf("failed to build stock endpoint: %w", err)
	}
	deps.PaymentEndpoint, err = messaging.NewEndpoint(
		policyFromConfig("payment", cfg.Endpoints.Payment, nil),
		deps.PaymentEventHandlers, deps.EventPublisher, deps.DeadLetterSink)
	if err != nil {
		return nil, fmt.Errorf("failed to build payment endpoint: %w", err)
	}

	deps.subscriptions = []subscription{
		{
			Topics: []string{
				events.CreateOrderCommand,
				events.StockReservedEvent,
				events.StockReservationFailedEvent,
				events.PaymentCompletedEvent,
				events.PaymentFailedEvent,
				events.PaymentTimeoutEvent,
				events.OrderExpirationEvent,
			},
			Handler: deps.SagaEndpoint,
		},
		{
			Topics:  []string{events.OrderCreatedEvent, events.CheckInventoryCommand},
			Handler: deps.StockEndpoint,
		},
		{
			Topics:  []string{events.CompletePaymentCommand, events.ProcessPaymentCommand},
			Handler: deps.PaymentEndpoint,
		},
		{
			Topics: []string{
				events.InventoryAvailableEvent,
				events.InventoryUnavailableEvent,
				events.PaymentSuccessfulEvent,
				events.PaymentRejectedEvent,
			},
			Handler: deps.Requester,
		},
	}

	return deps, nil
}

// Subscribe attaches every endpoint to its topics. The memory bus gets one
// subscription per topic; the SQS transport gets a single subscription with
// a router, since one queue carries all topics.
func (d *Dependencies) Subscribe(ctx context.Context) error {
	if d.memoryBus != nil {
		for _, sub := range d.subscriptions {
			for _, topic := range sub.Topics {
				if err := d.EventSubscriber.Subscribe(ctx, topic, sub.Handler); err != nil {
					return fmt.Errorf("failed to subscribe %s to %s: %w", sub.Handler.HandlerID(), topic, err)
				}
			}
		}
		return nil
	}

	router := newTopicRouter(d.subscriptions)
	if err := d.EventSubscriber.Subscribe(ctx, "", router); err != nil {
		return fmt.Errorf("failed to subscribe router: %w", err)
	}
	return nil
}

// topicRouter dispatches inbound events to the endpoint registered for
// their type
type topicRouter struct {
	routes map[string]events.EventHandler
}

func newTopicRouter(subs []subscription) *topicRouter {
	routes := make(map[string]events.EventHandler)
	for _, sub := range subs {
		for _, topic := range sub.Topics {
			routes[topic] = sub.Handler
		}
	}
	return &topicRouter{routes: routes}
}

func (r *topicRouter) HandlerID() string {
	return "orders-service-topic-router"
}

func (r *topicRouter) Handle(ctx context.Context, event *events.Event) error {
	handler, ok := r.routes[event.EventType]
	if !ok {
		return nil
	}
	return handler.Handle(ctx, event)
}

// sagaClassifier marks malformed payloads terminal so they go straight to
// the dead letter sink instead of burning retries.
func sagaClassifier(err error) messaging.Classification {
	if errors.Is(err, domain.ErrMalformedEvent) {
		return messaging.ClassTerminal
	}
	return messaging.ClassUnclassified
}

func policyFromConfig(name string, cfg Endpoint, classify messaging.Classifier) messaging.EndpointPolicy {
	return messaging.EndpointPolicy{
		Name:                  name,
		RetryDelays:           cfg.RetryDelays,
		Classify:              classify,
		DefaultClassification: messaging.ClassRetryable,
		Breaker: messaging.BreakerSettings{
			TripThreshold:  cfg.BreakerTripThreshold,
			TrackingWindow: cfg.BreakerWindow,
			ResetInterval:  cfg.BreakerResetInterval,
			HalfOpenTrials: cfg.BreakerHalfOpenTrial,
		},
		RateLimit: messaging.RateLimitSettings{
			Events: cfg.RateLimitEvents,
			Window: cfg.RateLimitWindow,
		},
		MaxConcurrency: cfg.MaxConcurrency,
	}
}

// Close closes all dependencies
func (d *Dependencies) Close() error {
	var errs []error

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	if d.memoryBus != nil {
		if err := d.memoryBus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close memory bus: %w", err))
		}
	}

	if d.snsPublisher != nil {
		if err := d.snsPublisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close event publisher: %w", err))
		}
	}

	if d.sqsSubscriber != nil {
		if err := d.sqsSubscriber.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close event subscriber: %w", err))
		}
	}

	if d.telemetryShutdown != nil {
		d.telemetryShutdown()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing dependencies: %v", errs)
	}

	return nil
}
