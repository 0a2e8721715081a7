// ABOUTME: Ledger interface and data types for webex-relay persistence
// ABOUTME: Defines RelayEvent and TokenUsage rows; message text is never stored

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Outcome records how the relay disposed of one webhook event.
type Outcome string

const (
	OutcomeReplied      Outcome = "replied"       // completion reply delivered
	OutcomeFallback     Outcome = "fallback"      // completion failed, fallback text delivered
	OutcomeReset        Outcome = "reset"         // conversation reset and acknowledged
	OutcomeSelfMessage  Outcome = "self_message"  // authored by the bot itself
	OutcomeNotMentioned Outcome = "not_mentioned" // group message without the bot name
	OutcomeDuplicate    Outcome = "duplicate"     // redelivery of a claimed message id
	OutcomeInvalid      Outcome = "invalid"       // rejected at validation
	OutcomeError        Outcome = "error"         // failed with a server error
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeReplied, OutcomeFallback, OutcomeReset, OutcomeSelfMessage,
		OutcomeNotMentioned, OutcomeDuplicate, OutcomeInvalid, OutcomeError:
		return true
	}
	return false
}

// RelayEvent is one handled webhook call.
type RelayEvent struct {
	ID              string
	MessageID       string
	RoomID          string
	RoomType        string
	PersonID        string
	ConversationKey string
	Outcome         Outcome
	Detail          string // error text or skip reason, never message content
	DurationMS      int64
	CreatedAt       time.Time
}

// TokenUsage is the token consumption of one completion call.
type TokenUsage struct {
	ID               string
	RelayEventID     string
	ConversationKey  string
	SessionID        string
	Model            string
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
	CreatedAt        time.Time
}

// EventFilter narrows ListRelayEvents. Nil fields match everything.
type EventFilter struct {
	RoomID  *string
	Outcome *Outcome
	Since   *time.Time
	Limit   int // 0 means 100
}

// UsageFilter narrows GetUsageStats. Nil fields match everything.
type UsageFilter struct {
	ConversationKey *string
	Model           *string
	Since           *time.Time
	Until           *time.Time
}

// UsageStats aggregates token usage.
type UsageStats struct {
	TotalPrompt     int64 `json:"total_prompt_tokens"`
	TotalCompletion int64 `json:"total_completion_tokens"`
	TotalTokens     int64 `json:"total_tokens"`
	RequestCount    int64 `json:"request_count"`
}

// Ledger is the persistence surface used by the relay and the gateway.
type Ledger interface {
	SaveRelayEvent(ctx context.Context, event *RelayEvent) error
	GetRelayEvent(ctx context.Context, id string) (*RelayEvent, error)
	ListRelayEvents(ctx context.Context, filter EventFilter) ([]*RelayEvent, error)

	SaveUsage(ctx context.Context, usage *TokenUsage) error
	GetUsageStats(ctx context.Context, filter UsageFilter) (*UsageStats, error)

	Ping(ctx context.Context) error
	Close() error
}
