// ABOUTME: Azure-hosted chat completion client built on the openai-go SDK
// ABOUTME: Authorizes every call with a fresh provider token and tags it with the app key identity

package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/azure"
	"github.com/openai/openai-go/v3/option"

	"github.com/2389/webex-relay/internal/conversation"
)

// Config holds the completion endpoint settings shared by every session.
type Config struct {
	Endpoint   string
	APIVersion string
	Model      string // deployment name
	AppKey     string
	MaxRetries int
	Timeout    time.Duration
	HTTPClient *http.Client // optional
}

// Client creates completers for conversation sessions. The SDK client is
// shared; the access token is supplied per request.
type Client struct {
	api    openai.Client
	model  string
	user   string
	logger *slog.Logger
}

// New creates a completion client.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.RequestOption{
		azure.WithEndpoint(cfg.Endpoint, cfg.APIVersion),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &Client{
		api:    openai.NewClient(opts...),
		model:  cfg.Model,
		user:   IdentityTag(cfg.AppKey),
		logger: logger.With("component", "completion"),
	}
}

// IdentityTag renders the caller identity sent as the request's user field.
func IdentityTag(appKey string) string {
	return fmt.Sprintf(`{"appkey": "%s"}`, appKey)
}

// WithTokens returns a completer that asks tokens for the api-key of every
// request, so a long-lived session picks up refreshed tokens.
func (c *Client) WithTokens(tokens conversation.TokenSource) conversation.Completer {
	return &boundCompleter{client: c, tokens: tokens}
}

// boundCompleter is a Completer authorized through one token source.
type boundCompleter struct {
	client *Client
	tokens conversation.TokenSource
}

// Complete sends the whole transcript and returns the first choice.
func (b *boundCompleter) Complete(ctx context.Context, turns []conversation.Turn) (*conversation.Completion, error) {
	c := b.client
	messages, err := toMessages(turns)
	if err != nil {
		return nil, err
	}

	token, err := b.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("authorizing completion request: %w", err)
	}

	start := time.Now()
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
		User:     openai.String(c.user),
	}, azure.WithAPIKey(token))
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			c.logger.Error("completion endpoint returned error",
				"status", apiErr.StatusCode,
				"model", c.model,
			)
		}
		return nil, fmt.Errorf("creating chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	c.logger.Debug("chat completion finished",
		"model", resp.Model,
		"duration_ms", time.Since(start).Milliseconds(),
		"finish_reason", resp.Choices[0].FinishReason,
	)

	return &conversation.Completion{
		Text:  resp.Choices[0].Message.Content,
		Model: resp.Model,
		Usage: conversation.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func toMessages(turns []conversation.Turn) ([]openai.ChatCompletionMessageParamUnion, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for i, turn := range turns {
		switch turn.Role {
		case conversation.RoleSystem:
			messages = append(messages, openai.SystemMessage(turn.Content))
		case conversation.RoleUser:
			messages = append(messages, openai.UserMessage(turn.Content))
		case conversation.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Content))
		default:
			return nil, fmt.Errorf("turn %d: unknown role %q", i, turn.Role)
		}
	}
	return messages, nil
}
