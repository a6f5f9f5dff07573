package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/draftea/order-system/shared/events"
	"github.com/draftea/order-system/shared/models"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

var _ TimerStore = (*PostgresTimerStore)(nil)

// PostgresTimerStore persists timers in PostgreSQL so scheduled firings
// survive a process restart.
//
// Schema:
//
//	CREATE TABLE saga_timers (
//	    token          UUID PRIMARY KEY,
//	    correlation_id UUID NOT NULL,
//	    name           TEXT NOT NULL,
//	    due_at         TIMESTAMPTZ NOT NULL,
//	    event          JSONB NOT NULL,
//	    UNIQUE (correlation_id, name)
//	);
//	CREATE INDEX saga_timers_due_at_idx ON saga_timers (due_at);
type PostgresTimerStore struct {
	db *sqlx.DB
}

// NewPostgresTimerStore creates a new PostgresTimerStore
func NewPostgresTimerStore(db *sqlx.DB) *PostgresTimerStore {
	return &PostgresTimerStore{db: db}
}

type postgresTimer struct {
	Token         string    `db:"token"`
	CorrelationID string    `db:"correlation_id"`
	Name          string    `db:"name"`
	DueAt         time.Time `db:"due_at"`
	Event         []byte    `db:"event"`
}

// Save stores a timer, replacing any timer with the same correlation id and
// name
func (s *PostgresTimerStore) Save(ctx context.Context, timer *Timer) error {
	eventJSON, err := json.Marshal(timer.Event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal timer event")
	}

	query := `
		INSERT INTO saga_timers (token, correlation_id, name, due_at, event)
		VALUES (:token, :correlation_id, :name, :due_at, :event)
		ON CONFLICT (correlation_id, name) DO UPDATE
		SET token = EXCLUDED.token, due_at = EXCLUDED.due_at, event = EXCLUDED.event`

	_, err = s.db.NamedExecContext(ctx, query, postgresTimer{
		Token:         timer.Token.String(),
		CorrelationID: timer.CorrelationID.String(),
		Name:          timer.Name,
		DueAt:         timer.DueAt,
		Event:         eventJSON,
	})
	if err != nil {
		return errors.Wrap(err, "failed to save timer")
	}
	return nil
}

// Delete removes a timer by token, reporting whether it was present
func (s *PostgresTimerStore) Delete(ctx context.Context, token models.ID) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM saga_timers WHERE token = $1", token.String())
	if err != nil {
		return false, errors.Wrap(err, "failed to delete timer")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read affected rows")
	}
	return affected > 0, nil
}

// Claim atomically removes and returns due timers. The DELETE ... RETURNING
// claim means a timer fires once even with multiple scheduler processes
// polling the same table.
func (s *PostgresTimerStore) Claim(ctx context.Context, now time.Time, limit int) ([]*Timer, error) {
	query := `
		DELETE FROM saga_timers
		WHERE token IN (
			SELECT token FROM saga_timers
			WHERE due_at <= $1
			ORDER BY due_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING token, correlation_id, name, due_at, event`

	var rows []postgresTimer
	if err := s.db.SelectContext(ctx, &rows, query, now, limit); err != nil {
		return nil, errors.Wrap(err, "failed to claim due timers")
	}

	timers := make([]*Timer, 0, len(rows))
	for _, row := range rows {
		var event events.Event
		if err := json.Unmarshal(row.Event, &event); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal timer event %s", row.Token)
		}
		timers = append(timers, &Timer{
			Token:         models.ID(row.Token),
			CorrelationID: models.ID(row.CorrelationID),
			Name:          row.Name,
			DueAt:         row.DueAt,
			Event:         &event,
		})
	}
	return timers, nil
}
