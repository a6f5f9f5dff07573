package messaging

import (
	"context"
	"time"

	"github.com/draftea/order-system/shared/events"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

var _ DeadLetterSink = (*PostgresDeadLetterSink)(nil)

// PostgresDeadLetterSink stores dead letters in PostgreSQL.
//
// Expected schema:
//
//	CREATE TABLE dead_letters (
//	    id             BIGSERIAL PRIMARY KEY,
//	    event_id       UUID NOT NULL,
//	    correlation_id TEXT NOT NULL DEFAULT '',
//	    endpoint       TEXT NOT NULL,
//	    reason         TEXT NOT NULL,
//	    error          TEXT NOT NULL,
//	    attempts       INT NOT NULL,
//	    event          JSONB NOT NULL,
//	    occurred_at    TIMESTAMPTZ NOT NULL
//	);
type PostgresDeadLetterSink struct {
	db *sqlx.DB
}

// NewPostgresDeadLetterSink creates a postgres-backed dead letter sink
func NewPostgresDeadLetterSink(db *sqlx.DB) *PostgresDeadLetterSink {
	return &PostgresDeadLetterSink{db: db}
}

type postgresDeadLetter struct {
	EventID       string    `db:"event_id"`
	CorrelationID string    `db:"correlation_id"`
	Endpoint      string    `db:"endpoint"`
	Reason        string    `db:"reason"`
	Error         string    `db:"error"`
	Attempts      int       `db:"attempts"`
	Event         []byte    `db:"event"`
	OccurredAt    time.Time `db:"occurred_at"`
}

// Store inserts a dead letter
func (s *PostgresDeadLetterSink) Store(ctx context.Context, letter *DeadLetter) error {
	body, err := letter.Event.ToJSON()
	if err != nil {
		return errors.Wrap(err, "failed to marshal dead letter event")
	}

	row := &postgresDeadLetter{
		EventID:       letter.Event.ID.String(),
		CorrelationID: letter.Event.CorrelationID.String(),
		Endpoint:      letter.Endpoint,
		Reason:        letter.Reason,
		Error:         letter.Error,
		Attempts:      letter.Attempts,
		Event:         body,
		OccurredAt:    letter.OccurredAt,
	}

	query := `
		INSERT INTO dead_letters (
			event_id, correlation_id, endpoint, reason, error, attempts, event, occurred_at
		) VALUES (
			:event_id, :correlation_id, :endpoint, :reason, :error, :attempts, :event, :occurred_at
		)`

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return errors.Wrap(err, "failed to insert dead letter")
	}
	return nil
}

// Unclaimed returns the most recent dead letters for an endpoint
func (s *PostgresDeadLetterSink) Unclaimed(ctx context.Context, endpoint string, limit int) ([]*DeadLetter, error) {
	query := `
		SELECT event_id, correlation_id, endpoint, reason, error, attempts, event, occurred_at
		FROM dead_letters
		WHERE endpoint = $1
		ORDER BY occurred_at DESC
		LIMIT $2`

	var rows []postgresDeadLetter
	if err := s.db.SelectContext(ctx, &rows, query, endpoint, limit); err != nil {
		return nil, errors.Wrap(err, "failed to select dead letters")
	}

	letters := make([]*DeadLetter, len(rows))
	for i, row := range rows {
		event, err := events.FromJSON(row.Event)
		if err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal dead letter event")
		}
		letters[i] = &DeadLetter{
			Event:      event,
			Endpoint:   row.Endpoint,
			Reason:     row.Reason,
			Error:      row.Error,
			Attempts:   row.Attempts,
			OccurredAt: row.OccurredAt,
		}
	}
	return letters, nil
}
