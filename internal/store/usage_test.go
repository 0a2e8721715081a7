// ABOUTME: Tests for completion token usage tracking
// ABOUTME: Covers SaveUsage and GetUsageStats with and without filters

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// saveEvent stores a replied relay event and returns its ID.
func saveEvent(t *testing.T, s Ledger, room string) string {
	t.Helper()
	event := &RelayEvent{MessageID: "m-" + room, RoomID: room, RoomType: "group", ConversationKey: room, Outcome: OutcomeReplied}
	require.NoError(t, s.SaveRelayEvent(context.Background(), event))
	return event.ID
}

func TestSaveUsage(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	eventID := saveEvent(t, s, "room-1")

	usage := &TokenUsage{
		RelayEventID:     eventID,
		ConversationKey:  "room-1",
		SessionID:        "session-1",
		Model:            "gpt-4o",
		PromptTokens:     1000,
		CompletionTokens: 500,
		TotalTokens:      1500,
	}
	require.NoError(t, s.SaveUsage(ctx, usage))
	assert.NotEmpty(t, usage.ID)

	stats, err := s.GetUsageStats(ctx, UsageFilter{})
	require.NoError(t, err)
	assert.Equal(t, &UsageStats{TotalPrompt: 1000, TotalCompletion: 500, TotalTokens: 1500, RequestCount: 1}, stats)
}

func TestSaveUsage_RequiresRelayEvent(t *testing.T) {
	s := setupTestStore(t)

	err := s.SaveUsage(context.Background(), &TokenUsage{RelayEventID: "missing", ConversationKey: "k", SessionID: "s", Model: "m"})
	assert.Error(t, err, "foreign key to relay_events is enforced")
}

func TestGetUsageStats_Empty(t *testing.T) {
	s := setupTestStore(t)

	stats, err := s.GetUsageStats(context.Background(), UsageFilter{})
	require.NoError(t, err)
	assert.Equal(t, &UsageStats{}, stats)
}

func TestGetUsageStats_Filters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	roomA := saveEvent(t, s, "room-a")
	roomB := saveEvent(t, s, "room-b")

	usages := []*TokenUsage{
		{RelayEventID: roomA, ConversationKey: "room-a", SessionID: "s1", Model: "gpt-4o", PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, CreatedAt: base},
		{RelayEventID: roomA, ConversationKey: "room-a", SessionID: "s1", Model: "gpt-4o-mini", PromptTokens: 20, CompletionTokens: 10, TotalTokens: 30, CreatedAt: base.Add(time.Hour)},
		{RelayEventID: roomB, ConversationKey: "room-b", SessionID: "s2", Model: "gpt-4o", PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150, CreatedAt: base.Add(2 * time.Hour)},
	}
	for _, u := range usages {
		require.NoError(t, s.SaveUsage(ctx, u))
	}

	key := "room-a"
	stats, err := s.GetUsageStats(ctx, UsageFilter{ConversationKey: &key})
	require.NoError(t, err)
	assert.Equal(t, int64(45), stats.TotalTokens)
	assert.Equal(t, int64(2), stats.RequestCount)

	model := "gpt-4o"
	stats, err = s.GetUsageStats(ctx, UsageFilter{Model: &model})
	require.NoError(t, err)
	assert.Equal(t, int64(165), stats.TotalTokens)

	since := base.Add(30 * time.Minute)
	until := base.Add(90 * time.Minute)
	stats, err = s.GetUsageStats(ctx, UsageFilter{Since: &since, Until: &until})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.RequestCount)
	assert.Equal(t, int64(20), stats.TotalPrompt)
	assert.Equal(t, int64(10), stats.TotalCompletion)
}
