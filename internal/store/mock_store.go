// ABOUTME: In-memory Ledger implementation for testing
// ABOUTME: Allows relay and gateway tests to run without SQLite

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Ledger implementation for testing.
type MockStore struct {
	mu      sync.RWMutex
	events  map[string]*RelayEvent // keyed by event ID
	usage   []*TokenUsage
	PingErr error // returned by Ping when set
	closed  bool
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		events: make(map[string]*RelayEvent),
	}
}

// SaveRelayEvent stores a copy of event.
func (m *MockStore) SaveRelayEvent(_ context.Context, event *RelayEvent) error {
	if !event.Outcome.Valid() {
		return fmt.Errorf("invalid outcome %q", event.Outcome)
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e := *event
	m.events[e.ID] = &e
	return nil
}

// GetRelayEvent returns a copy of the event with id.
func (m *MockStore) GetRelayEvent(_ context.Context, id string) (*RelayEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *e
	return &out, nil
}

// ListRelayEvents returns matching events newest first.
func (m *MockStore) ListRelayEvents(_ context.Context, filter EventFilter) ([]*RelayEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*RelayEvent
	for _, e := range m.events {
		if filter.RoomID != nil && e.RoomID != *filter.RoomID {
			continue
		}
		if filter.Outcome != nil && e.Outcome != *filter.Outcome {
			continue
		}
		if filter.Since != nil && e.CreatedAt.Before(*filter.Since) {
			continue
		}
		c := *e
		out = append(out, &c)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveUsage stores a copy of usage.
func (m *MockStore) SaveUsage(_ context.Context, usage *TokenUsage) error {
	if usage.ID == "" {
		usage.ID = uuid.NewString()
	}
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[usage.RelayEventID]; !ok {
		return errors.New("usage references unknown relay event")
	}
	u := *usage
	m.usage = append(m.usage, &u)
	return nil
}

// GetUsageStats aggregates stored usage.
func (m *MockStore) GetUsageStats(_ context.Context, filter UsageFilter) (*UsageStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats UsageStats
	for _, u := range m.usage {
		if filter.ConversationKey != nil && u.ConversationKey != *filter.ConversationKey {
			continue
		}
		if filter.Model != nil && u.Model != *filter.Model {
			continue
		}
		if filter.Since != nil && u.CreatedAt.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && !u.CreatedAt.Before(*filter.Until) {
			continue
		}
		stats.TotalPrompt += u.PromptTokens
		stats.TotalCompletion += u.CompletionTokens
		stats.TotalTokens += u.TotalTokens
		stats.RequestCount++
	}
	return &stats, nil
}

// Usage returns copies of every stored usage row in insertion order.
func (m *MockStore) Usage() []TokenUsage {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]TokenUsage, 0, len(m.usage))
	for _, u := range m.usage {
		out = append(out, *u)
	}
	return out
}

// Ping returns PingErr.
func (m *MockStore) Ping(context.Context) error {
	return m.PingErr
}

// Close marks the store closed.
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockStore) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Ensure MockStore implements the Ledger interface.
var _ Ledger = (*MockStore)(nil)
