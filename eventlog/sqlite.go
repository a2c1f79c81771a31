// Package eventlog persists the registry's domain events in an append-only
// SQLite table. The log is the audit trail external readers replay to
// reconstruct registry state without re-deriving it from transactions; rows
// are never updated or deleted.
package eventlog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/attestia/diploma-registry-backend/interfaces"
)

// Record is one persisted event with its position in the log.
type Record struct {
	Sequence   uint64          `json:"sequence"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	AppendedAt time.Time       `json:"appended_at"`
}

// SqliteLog is an EventSink backed by a SQLite database file.
type SqliteLog struct {
	db  *sql.DB
	log *slog.Logger
}

// NewSqliteLog opens (or creates) the event log database at dbPath.
func NewSqliteLog(dbPath string, log *slog.Logger) (*SqliteLog, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	l := &SqliteLog{db: db, log: log}
	if err := l.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return l, nil
}

func (l *SqliteLog) init() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			sequence INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			payload TEXT NOT NULL,
			appended_at DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create events table: %w", err)
	}
	return nil
}

// Append persists events in order within a single transaction. Either all
// events of a state transition land in the log or none do.
func (l *SqliteLog) Append(events ...interfaces.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT INTO events (kind, payload, appended_at) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to encode event %s: %w", event.Kind(), err)
		}
		if _, err := stmt.Exec(event.Kind(), string(payload), now); err != nil {
			return fmt.Errorf("failed to append event %s: %w", event.Kind(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit events: %w", err)
	}

	l.log.Debug("Appended events to audit log", slog.Int("count", len(events)))
	return nil
}

// Replay returns all events after the given sequence number in append
// order. Passing 0 replays the full log.
func (l *SqliteLog) Replay(afterSequence uint64) ([]Record, error) {
	rows, err := l.db.Query(
		"SELECT sequence, kind, payload, appended_at FROM events WHERE sequence > ? ORDER BY sequence ASC",
		afterSequence)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var payload string
		if err := rows.Scan(&rec.Sequence, &rec.Kind, &payload, &rec.AppendedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		rec.Payload = json.RawMessage(payload)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	return records, nil
}

// Close releases the underlying database handle.
func (l *SqliteLog) Close() error {
	return l.db.Close()
}
