package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/yves-gaignard/poolmanager/internal/calendar"
	"github.com/yves-gaignard/poolmanager/internal/logic"
	"github.com/yves-gaignard/poolmanager/internal/pump"
)

// Compile-time interface check
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore keeps settings and events in a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info().Str("path", dbPath).Msg("SQLite store initialized")

	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate creates the database schema if it doesn't exist
func (s *SQLiteStore) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pump TEXT NOT NULL,
		type TEXT NOT NULL,
		uptime_ms INTEGER NOT NULL,
		tank_fill REAL NOT NULL,
		recorded_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_time ON events(recorded_at DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Debug().Msg("Database schema migrated")
	return nil
}

// SetValue stores value under key, replacing any previous value.
func (s *SQLiteStore) SetValue(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set %q: %w", key, err)
	}
	return nil
}

// GetValue returns the value under key and whether it exists.
func (s *SQLiteStore) GetValue(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %q: %w", key, err)
	}
	return value, true, nil
}

// SavePump writes the counters of a pump in a single transaction.
func (s *SQLiteStore) SavePump(state pump.State) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for key, value := range pumpValues(state) {
		if _, err := stmt.Exec(key, value); err != nil {
			return fmt.Errorf("failed to save %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug().Str("pump", state.Name).Dur("uptime", state.UpTime).Msg("Pump state saved")
	return nil
}

// LoadPump returns the saved counters of a pump; found is false if none
// were ever saved.
func (s *SQLiteStore) LoadPump(name string) (Saved, bool, error) {
	return loadPump(name, s.GetValue)
}

// Checkpoint records day as the last day the controller ran.
func (s *SQLiteStore) Checkpoint(day calendar.Date) error {
	return s.SetValue(keyDay, dayFormat.Text(day))
}

// LastDay returns the last checkpointed day.
func (s *SQLiteStore) LastDay() (calendar.Date, bool, error) {
	return lastDay(s.GetValue)
}

// InsertEvent appends a pump event to the log.
func (s *SQLiteStore) InsertEvent(event logic.Event) error {
	_, err := s.db.Exec(`
		INSERT INTO events (pump, type, uptime_ms, tank_fill, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		event.Pump,
		string(event.Type),
		event.UpTime.Milliseconds(),
		event.TankFill,
		event.Timestamp.UTC().Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit events, newest first.
func (s *SQLiteStore) RecentEvents(limit int) ([]logic.Event, error) {
	rows, err := s.db.Query(`
		SELECT pump, type, uptime_ms, tank_fill, recorded_at
		FROM events
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []logic.Event
	for rows.Next() {
		var (
			e          logic.Event
			typ        string
			uptimeMs   int64
			recordedAt string
		)
		if err := rows.Scan(&e.Pump, &typ, &uptimeMs, &e.TankFill, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Type = logic.EventType(typ)
		e.UpTime = time.Duration(uptimeMs) * time.Millisecond
		e.Timestamp, err = parseTimestamp(recordedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse event time %q: %w", recordedAt, err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// parseTimestamp accepts both the layout we write and the RFC 3339 form
// the driver returns for DATETIME columns.
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
