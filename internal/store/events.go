// ABOUTME: SQLite persistence for relay events, one row per handled webhook call
// ABOUTME: Rows record routing metadata and outcome only, never message text

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultEventLimit = 100

// SaveRelayEvent stores a relay event. ID and CreatedAt are filled in when empty.
func (s *SQLiteStore) SaveRelayEvent(ctx context.Context, event *RelayEvent) error {
	if !event.Outcome.Valid() {
		return fmt.Errorf("invalid outcome %q", event.Outcome)
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO relay_events (
			id, message_id, room_id, room_type, person_id, conversation_key,
			outcome, detail, duration_ms, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.MessageID,
		event.RoomID,
		event.RoomType,
		event.PersonID,
		event.ConversationKey,
		string(event.Outcome),
		nullString(event.Detail),
		event.DurationMS,
		formatTime(event.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting relay event: %w", err)
	}

	s.logger.Debug("saved relay event",
		"id", event.ID,
		"message_id", event.MessageID,
		"outcome", event.Outcome,
	)
	return nil
}

// GetRelayEvent retrieves a relay event by ID.
// Returns ErrNotFound if the event doesn't exist.
func (s *SQLiteStore) GetRelayEvent(ctx context.Context, id string) (*RelayEvent, error) {
	query := `
		SELECT id, message_id, room_id, room_type, person_id, conversation_key,
		       outcome, detail, duration_ms, created_at
		FROM relay_events
		WHERE id = ?
	`
	event, err := scanRelayEvent(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}

// ListRelayEvents returns relay events newest first.
func (s *SQLiteStore) ListRelayEvents(ctx context.Context, filter EventFilter) ([]*RelayEvent, error) {
	query := `
		SELECT id, message_id, room_id, room_type, person_id, conversation_key,
		       outcome, detail, duration_ms, created_at
		FROM relay_events
		WHERE 1=1
	`
	args := []any{}

	if filter.RoomID != nil {
		query += " AND room_id = ?"
		args = append(args, *filter.RoomID)
	}
	if filter.Outcome != nil {
		query += " AND outcome = ?"
		args = append(args, string(*filter.Outcome))
	}
	if filter.Since != nil {
		query += " AND created_at >= ?"
		args = append(args, formatTime(*filter.Since))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultEventLimit
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying relay events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*RelayEvent
	for rows.Next() {
		event, err := scanRelayEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating relay events: %w", err)
	}
	return events, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRelayEvent(row rowScanner) (*RelayEvent, error) {
	var event RelayEvent
	var outcome, createdAt string
	var detail sql.NullString

	err := row.Scan(
		&event.ID,
		&event.MessageID,
		&event.RoomID,
		&event.RoomType,
		&event.PersonID,
		&event.ConversationKey,
		&outcome,
		&detail,
		&event.DurationMS,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning relay event: %w", err)
	}

	event.Outcome = Outcome(outcome)
	event.Detail = detail.String
	event.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	return &event, nil
}
