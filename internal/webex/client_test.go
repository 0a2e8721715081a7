// ABOUTME: Tests for the Webex messages client against an httptest server
// ABOUTME: Covers message lookup, recipient precedence, markdown replies, and API errors

package webex

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newClient(url string, markdown bool) *Client {
	return NewClient(ClientConfig{BaseURL: url + "/v1/messages/", BotToken: "bot-token", Markdown: markdown}, testLogger())
}

func TestGetMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/messages/msg-1", r.URL.Path)
		assert.Equal(t, "Bearer bot-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg-1","roomId":"room-1","roomType":"group","personId":"p-1","personEmail":"a@example.com","text":"Bot hello","created":"2024-05-01T10:00:00.000Z"}`)
	}))
	defer srv.Close()

	msg, err := newClient(srv.URL, false).GetMessage(context.Background(), "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "msg-1", msg.ID)
	assert.Equal(t, "room-1", msg.RoomID)
	assert.Equal(t, "group", msg.RoomType)
	assert.Equal(t, "Bot hello", msg.Text)
	assert.False(t, msg.Created.IsZero())
}

func TestGetMessage_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Trackingid", "ROUTER_abc")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"The requested resource could not be found."}`)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, false).GetMessage(context.Background(), "missing")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "ROUTER_abc", apiErr.TrackingID)
	assert.Contains(t, apiErr.Body, "could not be found")
}

func TestGetMessage_EmptyID(t *testing.T) {
	_, err := newClient("http://127.0.0.1:1", false).GetMessage(context.Background(), " ")
	assert.Error(t, err)
}

// captureSend records the JSON body of POSTed messages.
func captureSend(t *testing.T, status int) (*httptest.Server, *map[string]string) {
	t.Helper()
	got := map[string]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer bot-token", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = io.WriteString(w, `{"id":"sent-1","roomId":"room-1"}`)
			return
		}
		_, _ = io.WriteString(w, `{"message":"Failed to post message."}`)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestSend_ToRoom(t *testing.T) {
	srv, got := captureSend(t, http.StatusOK)

	msg, err := newClient(srv.URL, false).Send(context.Background(), "hi", Recipient{RoomID: "room-1"})
	require.NoError(t, err)
	assert.Equal(t, "sent-1", msg.ID)
	assert.Equal(t, map[string]string{"text": "hi", "roomId": "room-1"}, *got)
}

func TestSend_ToPerson(t *testing.T) {
	srv, got := captureSend(t, http.StatusOK)

	_, err := newClient(srv.URL, false).Send(context.Background(), "hi", Recipient{PersonID: "person-1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"text": "hi", "toPersonId": "person-1"}, *got)
}

func TestSend_RoomWinsOverPerson(t *testing.T) {
	srv, got := captureSend(t, http.StatusOK)

	_, err := newClient(srv.URL, false).Send(context.Background(), "hi", Recipient{RoomID: "room-1", PersonID: "person-1"})
	require.NoError(t, err)
	assert.Equal(t, "room-1", (*got)["roomId"])
	_, hasPerson := (*got)["toPersonId"]
	assert.False(t, hasPerson)
}

func TestSend_NoRecipient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, false).Send(context.Background(), "hi", Recipient{})
	assert.ErrorIs(t, err, ErrNoRecipient)
	assert.Zero(t, calls.Load(), "no network call without a recipient")
}

func TestSend_Markdown(t *testing.T) {
	srv, got := captureSend(t, http.StatusOK)

	_, err := newClient(srv.URL, true).Send(context.Background(), "**Done**, see [docs](https://example.com)", Recipient{RoomID: "room-1"})
	require.NoError(t, err)
	assert.Equal(t, "**Done**, see [docs](https://example.com)", (*got)["markdown"])
	assert.Equal(t, "Done, see docs (https://example.com)", (*got)["text"])
}

func TestSend_APIError(t *testing.T) {
	srv, _ := captureSend(t, http.StatusBadRequest)

	_, err := newClient(srv.URL, false).Send(context.Background(), "hi", Recipient{RoomID: "room-1"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "Failed to post message.")
}

func TestNewClient_DefaultBaseURL(t *testing.T) {
	c := NewClient(ClientConfig{BotToken: "t"}, nil)
	assert.Equal(t, DefaultBaseURL, c.baseURL)
}
