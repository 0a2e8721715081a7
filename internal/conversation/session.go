// ABOUTME: Conversation session owning one transcript and one authorized completer
// ABOUTME: Submit appends a user turn, asks the model, and appends the assistant turn

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role tags a turn in the transcript.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged message. Turns are never modified after they are appended.
type Turn struct {
	Role    Role
	Content string
}

// Usage reports token consumption for one completion call.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// Completion is the model's answer to a transcript.
type Completion struct {
	Text  string
	Model string
	Usage Usage
}

// Completer sends a transcript to the completion endpoint.
type Completer interface {
	Complete(ctx context.Context, turns []Turn) (*Completion, error)
}

// ErrEmptyReply is reported when the model answered without any text.
var ErrEmptyReply = errors.New("completion returned no text")

// CompletionError wraps a failed completion call. The transcript is left as it
// was before the failed Submit.
type CompletionError struct {
	Err error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion failed: %v", e.Err)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

// PromptFunc yields the system prompt that opens a transcript.
type PromptFunc func() (string, error)

// StaticPrompt returns a PromptFunc that always yields text.
func StaticPrompt(text string) PromptFunc {
	return func() (string, error) { return text, nil }
}

// Session holds one transcript: a system turn followed by alternating user and
// assistant turns. Submit and Reset are serialized.
type Session struct {
	mu         sync.Mutex
	id         string
	key        string
	createdAt  time.Time
	completer  Completer
	resetTo    PromptFunc
	transcript []Turn
	logger     *slog.Logger
}

// NewSession creates a session whose transcript starts with systemPrompt.
// resetTo supplies the prompt used by Reset; nil reuses systemPrompt.
func NewSession(key, systemPrompt string, completer Completer, resetTo PromptFunc, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if resetTo == nil {
		resetTo = StaticPrompt(systemPrompt)
	}
	id := uuid.Must(uuid.NewV7()).String()
	return &Session{
		id:         id,
		key:        key,
		createdAt:  time.Now(),
		completer:  completer,
		resetTo:    resetTo,
		transcript: []Turn{{Role: RoleSystem, Content: systemPrompt}},
		logger:     logger.With("session_id", id, "conversation", key),
	}
}

// ID returns the unique session identifier.
func (s *Session) ID() string {
	return s.id
}

// Key returns the conversation key the session was created for.
func (s *Session) Key() string {
	return s.key
}

// CreatedAt returns when the session was built.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Submit sends text as the next user turn and returns the assistant's reply.
func (s *Session) Submit(ctx context.Context, text string) (string, error) {
	completion, err := s.Exchange(ctx, text)
	if err != nil {
		return "", err
	}
	return completion.Text, nil
}

// Exchange is Submit with the full completion, including token usage.
// On success the transcript grows by exactly two turns. On failure it is unchanged
// and the error is a *CompletionError.
func (s *Session) Exchange(ctx context.Context, text string) (*Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transcript = append(s.transcript, Turn{Role: RoleUser, Content: text})
	turns := make([]Turn, len(s.transcript))
	copy(turns, s.transcript)

	completion, err := s.completer.Complete(ctx, turns)
	if err == nil && (completion == nil || strings.TrimSpace(completion.Text) == "") {
		err = ErrEmptyReply
	}
	if err != nil {
		s.transcript = s.transcript[:len(s.transcript)-1]
		s.logger.Error("completion failed", "error", err, "turns", len(turns))
		return nil, &CompletionError{Err: err}
	}

	s.transcript = append(s.transcript, Turn{Role: RoleAssistant, Content: completion.Text})
	s.logger.Info("assistant replied",
		"model", completion.Model,
		"turns", len(s.transcript),
		"total_tokens", completion.Usage.TotalTokens,
	)
	return completion, nil
}

// Reset discards every turn and starts over with a fresh system turn.
func (s *Session) Reset() error {
	prompt, err := s.resetTo()
	if err != nil {
		return fmt.Errorf("loading reset prompt: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = []Turn{{Role: RoleSystem, Content: prompt}}
	s.logger.Info("conversation has been reset")
	return nil
}

// Transcript returns a copy of the current transcript.
func (s *Session) Transcript() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Turn, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Len returns the number of turns in the transcript.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transcript)
}
