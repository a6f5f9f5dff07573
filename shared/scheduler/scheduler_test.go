package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/draftea/order-system/shared/events"
	"github.com/draftea/order-system/shared/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mux       sync.Mutex
	published []*events.Event
}

func (p *capturePublisher) Publish(ctx context.Context, evts ...*events.Event) error {
	p.mux.Lock()
	defer p.mux.Unlock()
	p.published = append(p.published, evts...)
	return nil
}

func (p *capturePublisher) all() []*events.Event {
	p.mux.Lock()
	defer p.mux.Unlock()
	out := make([]*events.Event, len(p.published))
	copy(out, p.published)
	return out
}

func startScheduler(t *testing.T) (*Scheduler, *MemoryTimerStore, *capturePublisher) {
	t.Helper()
	store := NewMemoryTimerStore()
	publisher := &capturePublisher{}
	sched := NewScheduler(store, publisher, WithPollInterval(5*time.Millisecond))
	require.NoError(t, sched.Start(context.Background()))
	t.Cleanup(func() { sched.Stop(context.Background()) })
	return sched, store, publisher
}

func TestScheduler_FiresDueTimer(t *testing.T) {
	sched, _, publisher := startScheduler(t)

	correlationID := models.GenerateUUID()
	event := events.NewEvent("order.expiration", nil)

	_, err := sched.Schedule(context.Background(), correlationID, "orderExpiration", 20*time.Millisecond, event)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(publisher.all()) == 1
	}, time.Second, 5*time.Millisecond)

	fired := publisher.all()[0]
	assert.Equal(t, "order.expiration", fired.EventType)
	assert.Equal(t, correlationID, fired.CorrelationID)
}

func TestScheduler_CancelPreventsFiring(t *testing.T) {
	sched, store, publisher := startScheduler(t)

	token, err := sched.Schedule(context.Background(), models.GenerateUUID(), "paymentTimeout",
		50*time.Millisecond, events.NewEvent("order.payment.timeout", nil))
	require.NoError(t, err)

	require.NoError(t, sched.Cancel(context.Background(), token))

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, publisher.all())

	remaining, err := store.Claim(context.Background(), time.Now().Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestScheduler_SameNameReplacesTimer(t *testing.T) {
	sched, _, publisher := startScheduler(t)

	correlationID := models.GenerateUUID()
	first := events.NewEvent("order.expiration", map[string]string{"gen": "first"})
	second := events.NewEvent("order.expiration", map[string]string{"gen": "second"})

	_, err := sched.Schedule(context.Background(), correlationID, "orderExpiration", 20*time.Millisecond, first)
	require.NoError(t, err)
	_, err = sched.Schedule(context.Background(), correlationID, "orderExpiration", 30*time.Millisecond, second)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(publisher.all()) == 1
	}, time.Second, 5*time.Millisecond)

	// Give the replaced timer's slot time to misfire if the replacement
	// did not take.
	time.Sleep(60 * time.Millisecond)
	fired := publisher.all()
	require.Len(t, fired, 1)
	assert.Equal(t, second.ID, fired[0].ID)
}

func TestScheduler_CancelAfterFireIsNoOp(t *testing.T) {
	sched, _, publisher := startScheduler(t)

	token, err := sched.Schedule(context.Background(), models.GenerateUUID(), "orderExpiration",
		10*time.Millisecond, events.NewEvent("order.expiration", nil))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(publisher.all()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.NoError(t, sched.Cancel(context.Background(), token))
}

func TestScheduler_DistinctNamesCoexist(t *testing.T) {
	sched, store, _ := startScheduler(t)

	correlationID := models.GenerateUUID()
	_, err := sched.Schedule(context.Background(), correlationID, "orderExpiration",
		time.Hour, events.NewEvent("order.expiration", nil))
	require.NoError(t, err)
	_, err = sched.Schedule(context.Background(), correlationID, "paymentTimeout",
		time.Hour, events.NewEvent("order.payment.timeout", nil))
	require.NoError(t, err)

	pending, err := store.Claim(context.Background(), time.Now().Add(2*time.Hour), 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestScheduler_ScheduleValidation(t *testing.T) {
	sched := NewScheduler(NewMemoryTimerStore(), &capturePublisher{})

	_, err := sched.Schedule(context.Background(), models.GenerateUUID(), "",
		time.Second, events.NewEvent("order.expiration", nil))
	assert.Error(t, err)

	_, err = sched.Schedule(context.Background(), models.GenerateUUID(), "orderExpiration",
		time.Second, nil)
	assert.Error(t, err)
}

func TestMemoryTimerStore_ClaimOrdersByDueTime(t *testing.T) {
	store := NewMemoryTimerStore()
	now := time.Now()

	later := &Timer{Token: models.GenerateUUID(), CorrelationID: models.GenerateUUID(),
		Name: "b", DueAt: now.Add(-time.Second), Event: events.NewEvent("t", nil)}
	earlier := &Timer{Token: models.GenerateUUID(), CorrelationID: models.GenerateUUID(),
		Name: "a", DueAt: now.Add(-time.Minute), Event: events.NewEvent("t", nil)}
	future := &Timer{Token: models.GenerateUUID(), CorrelationID: models.GenerateUUID(),
		Name: "c", DueAt: now.Add(time.Hour), Event: events.NewEvent("t", nil)}

	require.NoError(t, store.Save(context.Background(), later))
	require.NoError(t, store.Save(context.Background(), earlier))
	require.NoError(t, store.Save(context.Background(), future))

	due, err := store.Claim(context.Background(), now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, earlier.Token, due[0].Token)
	assert.Equal(t, later.Token, due[1].Token)

	// Claimed timers are gone; a second claim finds nothing due.
	due, err = store.Claim(context.Background(), now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}
