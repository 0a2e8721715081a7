// ABOUTME: SQLite implementation of the Ledger interface using modernc.org/sqlite
// ABOUTME: Opens the database in WAL mode and creates the schema on first use

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Ledger using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the ledger database at path.
// Parent directories are created if needed.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite ledger initialized", "path", path)
	return s, nil
}

// createSchema creates the ledger tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS relay_events (
			id               TEXT PRIMARY KEY,
			message_id       TEXT NOT NULL,
			room_id          TEXT NOT NULL,
			room_type        TEXT NOT NULL,
			person_id        TEXT NOT NULL,
			conversation_key TEXT NOT NULL,
			outcome          TEXT NOT NULL,
			detail           TEXT,
			duration_ms      INTEGER NOT NULL DEFAULT 0,
			created_at       TEXT NOT NULL,

			CHECK (outcome IN (
				'replied', 'fallback', 'reset', 'self_message',
				'not_mentioned', 'duplicate', 'invalid', 'error'
			))
		);

		CREATE INDEX IF NOT EXISTS idx_relay_events_room ON relay_events(room_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_relay_events_created ON relay_events(created_at);
		CREATE INDEX IF NOT EXISTS idx_relay_events_message ON relay_events(message_id);

		CREATE TABLE IF NOT EXISTS completion_usage (
			id                TEXT PRIMARY KEY,
			relay_event_id    TEXT NOT NULL,
			conversation_key  TEXT NOT NULL,
			session_id        TEXT NOT NULL,
			model             TEXT NOT NULL,
			prompt_tokens     INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens      INTEGER NOT NULL DEFAULT 0,
			created_at        TEXT NOT NULL,
			FOREIGN KEY (relay_event_id) REFERENCES relay_events(id)
		);

		CREATE INDEX IF NOT EXISTS idx_usage_conversation ON completion_usage(conversation_key, created_at);
		CREATE INDEX IF NOT EXISTS idx_usage_created ON completion_usage(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Ping reports whether the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite ledger")
	return s.db.Close()
}

// nullString converts an empty string to a NULL column value.
func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", v, err)
	}
	return t, nil
}

// Ensure SQLiteStore implements the Ledger interface.
var _ Ledger = (*SQLiteStore)(nil)
