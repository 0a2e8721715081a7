// ABOUTME: Inbound webhook event schema and boundary validation
// ABOUTME: Accepts the form-encoded notification or the Webex JSON envelope

package relay

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// maxBodyBytes bounds webhook bodies. Webex notifications are small.
const maxBodyBytes = 1 << 20

// RoomType is the kind of Webex space an event came from.
type RoomType string

const (
	RoomDirect RoomType = "direct"
	RoomGroup  RoomType = "group"
)

// Event is one inbound webhook notification. It carries ids only; the message
// text is fetched separately.
type Event struct {
	MessageID   string   `json:"id"`
	PersonID    string   `json:"personId"`
	RoomType    RoomType `json:"roomType"`
	RoomID      string   `json:"roomId"`
	PersonEmail string   `json:"personEmail"`
}

// ConversationKey identifies the transcript an event belongs to: the room for
// group spaces, the person for direct spaces.
func (e *Event) ConversationKey() string {
	if e.RoomType == RoomGroup {
		return e.RoomID
	}
	return e.PersonID
}

// ValidationError reports a malformed webhook body.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// envelope is the JSON body Webex posts for a messages:created webhook.
type envelope struct {
	Resource string `json:"resource"`
	Event    string `json:"event"`
	Data     *Event `json:"data"`
}

// ParseEvent reads and validates the webhook body. On a validation failure the
// returned event holds whatever fields were readable, for logging.
func ParseEvent(r *http.Request) (*Event, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var ev *Event
	var err error
	if mediaType == "application/json" {
		ev, err = parseJSON(r)
	} else {
		ev, err = parseForm(r)
	}
	if err != nil {
		return ev, err
	}
	return ev, ev.validate()
}

func parseForm(r *http.Request) (*Event, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return &Event{}, &ValidationError{Reason: "unreadable form body"}
	}
	form := r.PostForm
	return &Event{
		MessageID:   strings.TrimSpace(form.Get("messageId")),
		PersonID:    strings.TrimSpace(form.Get("personId")),
		RoomType:    RoomType(strings.TrimSpace(form.Get("roomType"))),
		RoomID:      strings.TrimSpace(form.Get("roomId")),
		PersonEmail: strings.TrimSpace(form.Get("personEmail")),
	}, nil
}

func parseJSON(r *http.Request) (*Event, error) {
	var env envelope
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&env); err != nil {
		return &Event{}, &ValidationError{Reason: "invalid JSON body"}
	}
	if env.Data == nil {
		return &Event{}, &ValidationError{Field: "data", Reason: "is required"}
	}
	ev := env.Data
	ev.MessageID = strings.TrimSpace(ev.MessageID)
	ev.PersonID = strings.TrimSpace(ev.PersonID)
	ev.RoomType = RoomType(strings.TrimSpace(string(ev.RoomType)))
	ev.RoomID = strings.TrimSpace(ev.RoomID)
	ev.PersonEmail = strings.TrimSpace(ev.PersonEmail)
	return ev, nil
}

func (e *Event) validate() error {
	required := []struct {
		field string
		value string
	}{
		{"messageId", e.MessageID},
		{"personId", e.PersonID},
		{"roomType", string(e.RoomType)},
		{"roomId", e.RoomID},
		{"personEmail", e.PersonEmail},
	}
	for _, r := range required {
		if r.value == "" {
			return &ValidationError{Field: r.field, Reason: "is required"}
		}
	}

	if e.RoomType != RoomDirect && e.RoomType != RoomGroup {
		return &ValidationError{Field: "roomType", Reason: fmt.Sprintf("must be %q or %q, got %q", RoomDirect, RoomGroup, e.RoomType)}
	}
	return nil
}
