package infrastructure

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/draftea/order-system/orders-service/domain"
	"github.com/draftea/order-system/shared/models"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sagaTableDDL = `
	CREATE TABLE IF NOT EXISTS order_sagas (
	    correlation_id    UUID PRIMARY KEY,
	    current_state     TEXT NOT NULL,
	    order_id          TEXT NOT NULL DEFAULT '',
	    email             TEXT NOT NULL DEFAULT '',
	    price_amount      BIGINT NOT NULL DEFAULT 0,
	    price_currency    TEXT NOT NULL DEFAULT '',
	    quantity          INT NOT NULL DEFAULT 0,
	    order_created_at  TIMESTAMPTZ,
	    notification_text TEXT NOT NULL DEFAULT '',
	    active_timers     JSONB NOT NULL DEFAULT '{}',
	    created_at        TIMESTAMPTZ NOT NULL,
	    updated_at        TIMESTAMPTZ NOT NULL,
	    version           INT NOT NULL
	)`

// testDB connects to the database named in ORDERS_TEST_DATABASE_URL and
// skips the test when the variable is unset.
func testDB(t *testing.T) *sqlx.DB {
	t.Helper()
	url := os.Getenv("ORDERS_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("ORDERS_TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Connect("postgres", url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(sagaTableDDL)
	require.NoError(t, err)
	return db
}

func TestPostgresSagaRepository_ConcurrentCreateSerializes(t *testing.T) {
	db := testDB(t)
	repository := NewPostgresSagaRepository(db)

	correlationID := models.GenerateUUID()
	t.Cleanup(func() {
		db.Exec("DELETE FROM order_sagas WHERE correlation_id = $1", correlationID.String())
	})

	// At-least-once delivery hands the create command to several handlers
	// at once. Only one of them may see a fresh instance; the rest must
	// load the row the winner committed.
	const deliveries = 8
	var freshCreates atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repository.WithInstance(context.Background(), correlationID, true, func(saga *domain.OrderSaga) error {
				if saga.CurrentState == domain.StateNone {
					freshCreates.Add(1)
					saga.CurrentState = domain.StateOrderCreated
					saga.OrderID = "order-1"
				}
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), freshCreates.Load())

	saga, err := repository.Find(context.Background(), correlationID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateOrderCreated, saga.CurrentState)
	assert.Equal(t, "order-1", saga.OrderID)
}

func TestPostgresSagaRepository_FindUnknownReturnsNotFound(t *testing.T) {
	db := testDB(t)
	repository := NewPostgresSagaRepository(db)

	_, err := repository.Find(context.Background(), models.GenerateUUID())
	assert.ErrorIs(t, err, domain.ErrSagaNotFound)
}
