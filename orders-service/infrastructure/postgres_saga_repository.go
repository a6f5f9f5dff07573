package infrastructure

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/draftea/order-system/orders-service/domain"
	"github.com/draftea/order-system/shared/models"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

var _ domain.SagaRepository = (*PostgresSagaRepository)(nil)

// PostgresSagaRepository persists saga instances in PostgreSQL. Per-key
// exclusive access comes from a row lock: WithInstance runs inside a
// transaction holding SELECT ... FOR UPDATE on the instance row, so two
// handlers for the same correlation id serialize on the database.
//
// Schema:
//
//	CREATE TABLE order_sagas (
//	    correlation_id    UUID PRIMARY KEY,
//	    current_state     TEXT NOT NULL,
//	    order_id          TEXT NOT NULL DEFAULT '',
//	    email             TEXT NOT NULL DEFAULT '',
//	    price_amount      BIGINT NOT NULL DEFAULT 0,
//	    price_currency    TEXT NOT NULL DEFAULT '',
//	    quantity          INT NOT NULL DEFAULT 0,
//	    order_created_at  TIMESTAMPTZ,
//	    notification_text TEXT NOT NULL DEFAULT '',
//	    active_timers     JSONB NOT NULL DEFAULT '{}',
//	    created_at        TIMESTAMPTZ NOT NULL,
//	    updated_at        TIMESTAMPTZ NOT NULL,
//	    version           INT NOT NULL
//	);
type PostgresSagaRepository struct {
	db *sqlx.DB
}

// NewPostgresSagaRepository creates a new PostgresSagaRepository
func NewPostgresSagaRepository(db *sqlx.DB) *PostgresSagaRepository {
	return &PostgresSagaRepository{db: db}
}

type postgresSaga struct {
	CorrelationID    string       `db:"correlation_id"`
	CurrentState     string       `db:"current_state"`
	OrderID          string       `db:"order_id"`
	Email            string       `db:"email"`
	PriceAmount      int64        `db:"price_amount"`
	PriceCurrency    string       `db:"price_currency"`
	Quantity         int          `db:"quantity"`
	OrderCreatedAt   sql.NullTime `db:"order_created_at"`
	NotificationText string       `db:"notification_text"`
	ActiveTimers     []byte       `db:"active_timers"`
	CreatedAt        time.Time    `db:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at"`
	Version          int          `db:"version"`
}

// WithInstance implements domain.SagaRepository
func (r *PostgresSagaRepository) WithInstance(
	ctx context.Context,
	correlationID models.ID,
	create bool,
	fn func(*domain.OrderSaga) error,
) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var row postgresSaga
	err = tx.GetContext(ctx, &row,
		"SELECT * FROM order_sagas WHERE correlation_id = $1 FOR UPDATE",
		correlationID.String())

	var saga *domain.OrderSaga
	switch {
	case err == nil:
		saga, err = fromPostgres(&row)
		if err != nil {
			return err
		}
	case errors.Is(err, sql.ErrNoRows):
		if !create {
			return domain.ErrSagaNotFound
		}
		// Serialize concurrent creations for the same correlation id on
		// an advisory lock; the instance row does not exist yet.
		if _, err := tx.ExecContext(ctx,
			"SELECT pg_advisory_xact_lock(hashtext($1))",
			correlationID.String()); err != nil {
			return errors.Wrap(err, "failed to take creation lock")
		}
		// A concurrent creator may have committed while we waited for the
		// lock. Re-read so this delivery sees its row instead of starting
		// a second fresh instance.
		err = tx.GetContext(ctx, &row,
			"SELECT * FROM order_sagas WHERE correlation_id = $1 FOR UPDATE",
			correlationID.String())
		switch {
		case err == nil:
			saga, err = fromPostgres(&row)
			if err != nil {
				return err
			}
		case errors.Is(err, sql.ErrNoRows):
			saga = domain.NewOrderSaga(correlationID)
		default:
			return errors.Wrap(err, "failed to load saga instance")
		}
	default:
		return errors.Wrap(err, "failed to load saga instance")
	}

	if err := fn(saga); err != nil {
		return err
	}

	if err := r.upsert(ctx, tx, saga); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "failed to commit saga mutation")
}

// Find returns the instance without locking it
func (r *PostgresSagaRepository) Find(ctx context.Context, correlationID models.ID) (*domain.OrderSaga, error) {
	var row postgresSaga
	err := r.db.GetContext(ctx, &row,
		"SELECT * FROM order_sagas WHERE correlation_id = $1",
		correlationID.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSagaNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load saga instance")
	}
	return fromPostgres(&row)
}

func (r *PostgresSagaRepository) upsert(ctx context.Context, tx *sqlx.Tx, saga *domain.OrderSaga) error {
	timersJSON, err := json.Marshal(saga.ActiveTimers)
	if err != nil {
		return errors.Wrap(err, "failed to marshal active timers")
	}

	query := `
		INSERT INTO order_sagas (
			correlation_id, current_state, order_id, email,
			price_amount, price_currency, quantity, order_created_at,
			notification_text, active_timers, created_at, updated_at, version
		) VALUES (
			:correlation_id, :current_state, :order_id, :email,
			:price_amount, :price_currency, :quantity, :order_created_at,
			:notification_text, :active_timers, :created_at, :updated_at, :version
		)
		ON CONFLICT (correlation_id) DO UPDATE SET
			current_state = EXCLUDED.current_state,
			order_id = EXCLUDED.order_id,
			email = EXCLUDED.email,
			price_amount = EXCLUDED.price_amount,
			price_currency = EXCLUDED.price_currency,
			quantity = EXCLUDED.quantity,
			order_created_at = EXCLUDED.order_created_at,
			notification_text = EXCLUDED.notification_text,
			active_timers = EXCLUDED.active_timers,
			updated_at = EXCLUDED.updated_at,
			version = EXCLUDED.version`

	_, err = tx.NamedExecContext(ctx, query, toPostgres(saga, timersJSON))
	if err != nil {
		return errors.Wrap(err, "failed to upsert saga instance")
	}
	return nil
}

func toPostgres(saga *domain.OrderSaga, timersJSON []byte) postgresSaga {
	return postgresSaga{
		CorrelationID:    saga.CorrelationID.String(),
		CurrentState:     string(saga.CurrentState),
		OrderID:          saga.OrderID,
		Email:            saga.Email,
		PriceAmount:      saga.Price.Amount,
		PriceCurrency:    saga.Price.Currency,
		Quantity:         saga.Quantity,
		OrderCreatedAt:   sql.NullTime{Time: saga.CreatedAt, Valid: !saga.CreatedAt.IsZero()},
		NotificationText: saga.NotificationText,
		ActiveTimers:     timersJSON,
		CreatedAt:        saga.Timestamps.CreatedAt,
		UpdatedAt:        saga.Timestamps.UpdatedAt,
		Version:          saga.Version.Value,
	}
}

func fromPostgres(row *postgresSaga) (*domain.OrderSaga, error) {
	timers := make(map[string]models.ID)
	if len(row.ActiveTimers) > 0 {
		if err := json.Unmarshal(row.ActiveTimers, &timers); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal active timers")
		}
	}

	saga := &domain.OrderSaga{
		CorrelationID:    models.ID(row.CorrelationID),
		CurrentState:     domain.State(row.CurrentState),
		OrderID:          row.OrderID,
		Email:            row.Email,
		Price:            models.NewMoney(row.PriceAmount, row.PriceCurrency),
		Quantity:         row.Quantity,
		NotificationText: row.NotificationText,
		ActiveTimers:     timers,
		Timestamps: models.Timestamps{
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		},
		Version: models.Version{Value: row.Version},
	}
	if row.OrderCreatedAt.Valid {
		saga.CreatedAt = row.OrderCreatedAt.Time
	}
	return saga, nil
}
