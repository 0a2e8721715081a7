// ABOUTME: Tests for SQLite ledger setup
// ABOUTME: Covers database creation, nested directories, schema idempotency, and Ping

package store

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestStore opens a ledger in a temp directory, closed on cleanup.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")

	s, err := NewSQLiteStore(dbPath, testLogger())
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file was not created")
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "ledger.db")

	s, err := NewSQLiteStore(dbPath, testLogger())
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file was not created in nested directory")
}

func TestNewSQLiteStore_ReopenKeepsRows(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	first, err := NewSQLiteStore(dbPath, testLogger())
	require.NoError(t, err)
	event := &RelayEvent{MessageID: "m1", RoomID: "r1", RoomType: "group", PersonID: "p1", ConversationKey: "r1", Outcome: OutcomeReplied}
	require.NoError(t, first.SaveRelayEvent(ctx, event))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(dbPath, testLogger())
	require.NoError(t, err)
	defer second.Close()

	got, err := second.GetRelayEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, "m1", got.MessageID)
}

func TestSQLiteStore_Ping(t *testing.T) {
	s := setupTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestTimeLayoutSortsLexically(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 5, 0, time.UTC)
	later := base.Add(500 * time.Millisecond)

	assert.Less(t, formatTime(base), formatTime(later))

	parsed, err := parseTime(formatTime(later))
	require.NoError(t, err)
	assert.True(t, later.Equal(parsed))
}
