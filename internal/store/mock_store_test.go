// ABOUTME: Tests that MockStore behaves like the SQLite ledger for the operations tests rely on
// ABOUTME: Runs the same scenarios against both implementations

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ledgers(t *testing.T) map[string]Ledger {
	return map[string]Ledger{
		"sqlite": setupTestStore(t),
		"mock":   NewMockStore(),
	}
}

func TestLedgers_EventRoundTrip(t *testing.T) {
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			event := &RelayEvent{MessageID: "m1", RoomID: "r1", RoomType: "direct", PersonID: "p1", ConversationKey: "p1", Outcome: OutcomeReset}
			require.NoError(t, l.SaveRelayEvent(ctx, event))

			got, err := l.GetRelayEvent(ctx, event.ID)
			require.NoError(t, err)
			assert.Equal(t, OutcomeReset, got.Outcome)
			assert.Equal(t, "p1", got.ConversationKey)

			_, err = l.GetRelayEvent(ctx, "nope")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestLedgers_ListNewestFirst(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, id := range []string{"m1", "m2", "m3"} {
				require.NoError(t, l.SaveRelayEvent(ctx, &RelayEvent{MessageID: id, Outcome: OutcomeReplied, CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
			}

			events, err := l.ListRelayEvents(ctx, EventFilter{Limit: 2})
			require.NoError(t, err)
			require.Len(t, events, 2)
			assert.Equal(t, "m3", events[0].MessageID)
			assert.Equal(t, "m2", events[1].MessageID)
		})
	}
}

func TestLedgers_UsageStats(t *testing.T) {
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			eventID := saveEvent(t, l, "room-1")
			require.NoError(t, l.SaveUsage(ctx, &TokenUsage{RelayEventID: eventID, ConversationKey: "room-1", SessionID: "s", Model: "gpt-4o", PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7}))
			require.NoError(t, l.SaveUsage(ctx, &TokenUsage{RelayEventID: eventID, ConversationKey: "room-1", SessionID: "s", Model: "gpt-4o", PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2}))

			stats, err := l.GetUsageStats(ctx, UsageFilter{})
			require.NoError(t, err)
			assert.Equal(t, &UsageStats{TotalPrompt: 4, TotalCompletion: 5, TotalTokens: 9, RequestCount: 2}, stats)

			assert.Error(t, l.SaveUsage(ctx, &TokenUsage{RelayEventID: "unknown", ConversationKey: "k", SessionID: "s", Model: "m"}))
		})
	}
}

func TestMockStore_PingAndClose(t *testing.T) {
	m := NewMockStore()
	assert.NoError(t, m.Ping(context.Background()))

	m.PingErr = errors.New("down")
	assert.Error(t, m.Ping(context.Background()))

	assert.False(t, m.Closed())
	require.NoError(t, m.Close())
	assert.True(t, m.Closed())
}
