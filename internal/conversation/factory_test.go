// ABOUTME: Tests for the session factory and file-backed prompts
// ABOUTME: Checks token binding, prompt loading, and how token failures surface

package conversation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokens struct {
	token string
	err   error
	calls int
}

func (f *fakeTokens) Token(context.Context) (string, error) {
	f.calls++
	return f.token, f.err
}

func TestFactory_BindsTokenSourceToCompleter(t *testing.T) {
	tokens := &fakeTokens{token: "tok-1"}
	var boundTo TokenSource
	f := NewFactory(FactoryConfig{
		Tokens: tokens,
		NewCompleter: func(src TokenSource) Completer {
			boundTo = src
			return &fakeCompleter{reply: "ok"}
		},
		SystemPrompt: StaticPrompt("sys"),
		Logger:       testLogger(),
	})

	s, err := f.New(context.Background(), "room-1")
	require.NoError(t, err)

	assert.Same(t, tokens, boundTo)
	assert.Equal(t, 1, tokens.calls, "the source is checked once at construction")
	assert.Equal(t, "room-1", s.Key())
	assert.Equal(t, []Turn{{Role: RoleSystem, Content: "sys"}}, s.Transcript())
}

// tokenEchoCompleter records the token it was handed on each call.
type tokenEchoCompleter struct {
	tokens TokenSource
	used   []string
}

func (c *tokenEchoCompleter) Complete(ctx context.Context, _ []Turn) (*Completion, error) {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	c.used = append(c.used, tok)
	return &Completion{Text: "ok"}, nil
}

func TestFactory_SessionFollowsRefreshedToken(t *testing.T) {
	tokens := &fakeTokens{token: "tok-1"}
	completer := &tokenEchoCompleter{}
	f := NewFactory(FactoryConfig{
		Tokens: tokens,
		NewCompleter: func(src TokenSource) Completer {
			completer.tokens = src
			return completer
		},
		SystemPrompt: StaticPrompt("sys"),
	})

	s, err := f.New(context.Background(), "room-1")
	require.NoError(t, err)

	_, err = s.Submit(context.Background(), "first")
	require.NoError(t, err)
	tokens.token = "tok-2"
	_, err = s.Submit(context.Background(), "second")
	require.NoError(t, err)

	assert.Equal(t, []string{"tok-1", "tok-2"}, completer.used)
	assert.Equal(t, 5, s.Len())
}

func TestFactory_TokenFailureIsCompletionError(t *testing.T) {
	tokenErr := errors.New("invalid_client")
	f := NewFactory(FactoryConfig{
		Tokens:       &fakeTokens{err: tokenErr},
		NewCompleter: func(TokenSource) Completer { return &fakeCompleter{} },
		SystemPrompt: StaticPrompt("sys"),
	})

	_, err := f.New(context.Background(), "room-1")
	require.Error(t, err)

	var compErr *CompletionError
	assert.True(t, errors.As(err, &compErr))
	assert.ErrorIs(t, err, tokenErr)
}

func TestFactory_PromptFailureIsNotCompletionError(t *testing.T) {
	tokens := &fakeTokens{token: "tok"}
	f := NewFactory(FactoryConfig{
		Tokens:       tokens,
		NewCompleter: func(TokenSource) Completer { return &fakeCompleter{} },
		SystemPrompt: FilePrompt(filepath.Join(t.TempDir(), "missing.txt")),
	})

	_, err := f.New(context.Background(), "room-1")
	require.Error(t, err)

	var compErr *CompletionError
	assert.False(t, errors.As(err, &compErr))
	assert.Zero(t, tokens.calls, "no token is fetched without a prompt")
}

func TestFactory_ResetPromptDefaultsToSystemPrompt(t *testing.T) {
	f := NewFactory(FactoryConfig{
		Tokens:       &fakeTokens{token: "tok"},
		NewCompleter: func(TokenSource) Completer { return &fakeCompleter{reply: "ok"} },
		SystemPrompt: StaticPrompt("sys"),
	})

	s, err := f.New(context.Background(), "room-1")
	require.NoError(t, err)
	_, err = s.Submit(context.Background(), "hello")
	require.NoError(t, err)
	require.NoError(t, s.Reset())

	assert.Equal(t, []Turn{{Role: RoleSystem, Content: "sys"}}, s.Transcript())
}

func TestFilePrompt_ReloadsOnEveryCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("  first prompt\n"), 0o600))

	prompt := FilePrompt(path)
	got, err := prompt()
	require.NoError(t, err)
	assert.Equal(t, "first prompt", got)

	require.NoError(t, os.WriteFile(path, []byte("second prompt"), 0o600))
	got, err = prompt()
	require.NoError(t, err)
	assert.Equal(t, "second prompt", got)
}
