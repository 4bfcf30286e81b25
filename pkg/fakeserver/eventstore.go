// Package fakeserver is a minimal, sqlite-backed stand-in for the
// server side of the protocol — an event store plus a NATS responder
// that understands the subjects pkg/transport talks to. It exists only
// to drive integration tests against a real (if tiny) server instead of
// hand-rolled mocks.
package fakeserver

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/plaenen/axoncmd/pkg/wire"
)

// EventStore is a sqlite-backed aggregate.EventStore implementation.
type EventStore struct {
	db *sql.DB
}

// ConcurrencyConflictError reports that AppendEvents' expected sequence
// number no longer matched the store's view of the stream.
type ConcurrencyConflictError struct {
	AggregateID     string
	ExpectedLastSeq int64
	ActualLastSeq   int64
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict on %s: expected last seq %d, store has %d", e.AggregateID, e.ExpectedLastSeq, e.ActualLastSeq)
}

// NewEventStore opens (and migrates) a sqlite-backed event store at
// dsn. Use ":memory:" for tests.
func NewEventStore(dsn string) (*EventStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite event store: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			aggregate_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			message_id TEXT NOT NULL,
			aggregate_type TEXT NOT NULL,
			type_name TEXT NOT NULL,
			payload BLOB NOT NULL,
			timestamp INTEGER NOT NULL,
			PRIMARY KEY (aggregate_id, seq)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite event store: %w", err)
	}
	return &EventStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *EventStore) Close() error {
	return s.db.Close()
}

// LoadEvents implements aggregate.EventStore.
func (s *EventStore) LoadEvents(ctx context.Context, aggregateID string) ([]wire.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, message_id, aggregate_type, type_name, payload, timestamp
		FROM events WHERE aggregate_id = ? ORDER BY seq ASC
	`, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("query events for %s: %w", aggregateID, err)
	}
	defer rows.Close()

	var events []wire.Event
	for rows.Next() {
		var e wire.Event
		var timestampUnix int64
		if err := rows.Scan(&e.AggregateSequenceNumber, &e.MessageIdentifier, &e.AggregateType, &e.Payload.TypeName, &e.Payload.Data, &timestampUnix); err != nil {
			return nil, fmt.Errorf("scan event row for %s: %w", aggregateID, err)
		}
		e.AggregateIdentifier = aggregateID
		e.Timestamp = unixToTime(timestampUnix)
		events = append(events, e)
	}
	return events, rows.Err()
}

// AppendEvents implements aggregate.EventStore with optimistic
// concurrency control: the append is rejected with a
// ConcurrencyConflictError if the store's current last sequence number
// for aggregateID does not match expectedLastSeq.
func (s *EventStore) AppendEvents(ctx context.Context, aggregateID string, expectedLastSeq int64, events []wire.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append transaction: %w", err)
	}
	defer tx.Rollback()

	var actualLastSeq int64 = -1
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), -1) FROM events WHERE aggregate_id = ?`, aggregateID)
	if err := row.Scan(&actualLastSeq); err != nil {
		return fmt.Errorf("read current sequence for %s: %w", aggregateID, err)
	}
	if actualLastSeq != expectedLastSeq {
		return &ConcurrencyConflictError{AggregateID: aggregateID, ExpectedLastSeq: expectedLastSeq, ActualLastSeq: actualLastSeq}
	}

	for _, e := range events {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO events (aggregate_id, seq, message_id, aggregate_type, type_name, payload, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, aggregateID, e.AggregateSequenceNumber, e.MessageIdentifier, e.AggregateType, e.Payload.TypeName, e.Payload.Data, timeToUnix(e.Timestamp)); err != nil {
			return fmt.Errorf("insert event seq %d for %s: %w", e.AggregateSequenceNumber, aggregateID, err)
		}
	}

	return tx.Commit()
}
