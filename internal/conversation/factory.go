// ABOUTME: Builds conversation sessions: checks the token source, binds a completer, loads the prompt
// ABOUTME: FilePrompt reads the system prompt from disk each time a transcript starts

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// TokenSource yields a valid bearer token, refreshing it when it has expired.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// CompleterFunc builds a completer that authorizes each call through tokens.
type CompleterFunc func(tokens TokenSource) Completer

// FilePrompt returns a PromptFunc reading the prompt file at path.
func FilePrompt(path string) PromptFunc {
	return func() (string, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading prompt file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
}

// Factory builds sessions. Construction fails with a *CompletionError when no
// token can be obtained; afterwards every completion call asks the source again.
type Factory struct {
	tokens       TokenSource
	newCompleter CompleterFunc
	systemPrompt PromptFunc
	resetPrompt  PromptFunc
	logger       *slog.Logger
}

// FactoryConfig wires a Factory. ResetPrompt is optional and defaults to SystemPrompt.
type FactoryConfig struct {
	Tokens       TokenSource
	NewCompleter CompleterFunc
	SystemPrompt PromptFunc
	ResetPrompt  PromptFunc
	Logger       *slog.Logger
}

// NewFactory creates a session factory.
func NewFactory(cfg FactoryConfig) *Factory {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reset := cfg.ResetPrompt
	if reset == nil {
		reset = cfg.SystemPrompt
	}
	return &Factory{
		tokens:       cfg.Tokens,
		newCompleter: cfg.NewCompleter,
		systemPrompt: cfg.SystemPrompt,
		resetPrompt:  reset,
		logger:       logger.With("component", "conversation"),
	}
}

// New builds a session for the conversation identified by key.
func (f *Factory) New(ctx context.Context, key string) (*Session, error) {
	prompt, err := f.systemPrompt()
	if err != nil {
		return nil, fmt.Errorf("loading system prompt: %w", err)
	}

	if _, err := f.tokens.Token(ctx); err != nil {
		return nil, &CompletionError{Err: fmt.Errorf("authorizing completion client: %w", err)}
	}

	s := NewSession(key, prompt, f.newCompleter(f.tokens), f.resetPrompt, f.logger)
	f.logger.Debug("session created", "session_id", s.ID(), "conversation", key)
	return s, nil
}
