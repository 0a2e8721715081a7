// ABOUTME: Minimal Webex messages API client: fetch a message by id, post a reply
// ABOUTME: Authenticates with the bot's bearer token and reports non-2xx responses as *APIError

package webex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the Webex messages endpoint.
const DefaultBaseURL = "https://webexapis.com/v1/messages"

// maxErrorBody caps how much of an error response is kept on APIError.
const maxErrorBody = 4096

// ErrNoRecipient is returned by Send when neither a room nor a person is given.
var ErrNoRecipient = errors.New("either room id or person id must be provided to send a message")

// APIError is a non-2xx response from the messages API.
type APIError struct {
	StatusCode int
	Body       string
	TrackingID string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("webex api returned status %d: %s", e.StatusCode, e.Body)
}

// Message is the subset of a Webex message the relay uses.
type Message struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"roomId,omitempty"`
	RoomType    string    `json:"roomType,omitempty"`
	PersonID    string    `json:"personId,omitempty"`
	PersonEmail string    `json:"personEmail,omitempty"`
	Text        string    `json:"text,omitempty"`
	Markdown    string    `json:"markdown,omitempty"`
	Created     time.Time `json:"created,omitempty"`
}

// Recipient addresses a reply. RoomID takes precedence over PersonID.
type Recipient struct {
	RoomID   string
	PersonID string
}

type sendRequest struct {
	Text       string `json:"text"`
	Markdown   string `json:"markdown,omitempty"`
	RoomID     string `json:"roomId,omitempty"`
	ToPersonID string `json:"toPersonId,omitempty"`
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL    string
	BotToken   string
	Markdown   bool // send replies as markdown with a plain-text fallback
	Timeout    time.Duration
	HTTPClient *http.Client // optional; built from Timeout when nil
}

// Client calls the Webex messages API as the bot.
type Client struct {
	http     *http.Client
	baseURL  string
	token    string
	markdown bool
	logger   *slog.Logger
}

// NewClient creates a messages API client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:     httpClient,
		baseURL:  baseURL,
		token:    strings.TrimSpace(cfg.BotToken),
		markdown: cfg.Markdown,
		logger:   logger.With("component", "webex"),
	}
}

// GetMessage fetches a message by id.
func (c *Client) GetMessage(ctx context.Context, id string) (*Message, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("message id is required")
	}

	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/"+url.PathEscape(id), nil)
	if err != nil {
		c.logger.Error("retrieving message details failed", "message_id", id, "error", err)
		return nil, fmt.Errorf("getting message %s: %w", id, err)
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("decoding message %s: %w", id, err)
	}
	return &msg, nil
}

// Send posts text to the recipient's room, or directly to the person when no
// room is given.
func (c *Client) Send(ctx context.Context, text string, to Recipient) (*Message, error) {
	req := sendRequest{Text: text}
	switch {
	case to.RoomID != "":
		req.RoomID = to.RoomID
	case to.PersonID != "":
		req.ToPersonID = to.PersonID
	default:
		c.logger.Error("reply has no recipient")
		return nil, ErrNoRecipient
	}

	if c.markdown {
		req.Markdown = text
		req.Text = PlainText(text)
	}

	body, err := c.do(ctx, http.MethodPost, c.baseURL, req)
	if err != nil {
		c.logger.Error("failed to send message", "room_id", req.RoomID, "to_person_id", req.ToPersonID, "error", err)
		return nil, fmt.Errorf("sending message: %w", err)
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("decoding sent message: %w", err)
	}
	c.logger.Debug("message sent", "message_id", msg.ID, "room_id", msg.RoomID)
	return &msg, nil
}

// do performs an authenticated request and returns the response body of a 2xx reply.
func (c *Client) do(ctx context.Context, method, endpoint string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			TrackingID: resp.Header.Get("Trackingid"),
		}
	}
	return body, nil
}
