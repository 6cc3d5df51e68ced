package eventstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists events in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path. Use ":memory:"
// for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps appends serialized and makes :memory:
	// databases behave (each pooled connection would otherwise get its
	// own empty database).
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		stream TEXT NOT NULL,
		type TEXT NOT NULL,
		version INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		data TEXT,
		UNIQUE (stream, version)
	);

	CREATE INDEX IF NOT EXISTS idx_events_stream ON events(stream, version);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, stream string, expectedVersion int, events []*Event) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	current, err := streamVersionTx(ctx, tx, stream)
	if err != nil {
		return 0, err
	}
	if expectedVersion != current {
		return 0, ErrConcurrencyConflict
	}

	version := current
	for _, event := range events {
		version++
		data := ""
		if len(event.Data) > 0 {
			data = string(event.Data)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO events (id, stream, type, version, timestamp, data)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			event.ID, stream, event.Type, version, event.Timestamp, data,
		)
		if err != nil {
			return 0, err
		}
		event.Stream = stream
		event.Version = version
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return version, nil
}

func streamVersionTx(ctx context.Context, tx *sql.Tx, stream string) (int, error) {
	var version sql.NullInt64
	err := tx.QueryRowContext(ctx,
		`SELECT MAX(version) FROM events WHERE stream = ?`, stream,
	).Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return -1, nil
	}
	return int(version.Int64), nil
}

// Read implements Store.
func (s *SQLiteStore) Read(ctx context.Context, stream string, fromVersion int) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, stream, type, version, timestamp, data
		 FROM events WHERE stream = ? AND version >= ? ORDER BY version`,
		stream, fromVersion,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var data sql.NullString
		if err := rows.Scan(&e.ID, &e.Stream, &e.Type, &e.Version, &e.Timestamp, &data); err != nil {
			return nil, err
		}
		if data.Valid && data.String != "" {
			e.Data = []byte(data.String)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// StreamVersion implements Store.
func (s *SQLiteStore) StreamVersion(ctx context.Context, stream string) (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM events WHERE stream = ?`, stream,
	).Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return -1, nil
	}
	return int(version.Int64), nil
}

// Streams implements Store.
func (s *SQLiteStore) Streams(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT stream FROM events ORDER BY stream`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// DeleteStream implements Store.
func (s *SQLiteStore) DeleteStream(ctx context.Context, stream string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE stream = ?`, stream)
	return err
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
