// ABOUTME: Webhook dispatcher turning Webex message notifications into model replies
// ABOUTME: Filters self and unmentioned messages, handles reset, and records every outcome

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"runtime/debug"
	"strings"
	"time"

	"github.com/2389/webex-relay/internal/conversation"
	"github.com/2389/webex-relay/internal/store"
	"github.com/2389/webex-relay/internal/webex"
)

// Fixed replies sent to Webex.
const (
	ResetAck        = "The conversation has been reset. How may I assist you now?"
	FallbackMessage = "Error generating bot response. Please try again after some time."
)

// Response bodies for filtered events.
const (
	selfMessageNote  = "Message from the bot itself; not processed."
	notMentionedNote = "Bot not mentioned, ignoring message."
	duplicateNote    = "Duplicate delivery; message already handled."
)

// MessageClient reads and posts Webex messages.
type MessageClient interface {
	GetMessage(ctx context.Context, id string) (*webex.Message, error)
	Send(ctx context.Context, text string, to webex.Recipient) (*webex.Message, error)
}

// SessionProvider hands out the conversation session for a key.
type SessionProvider interface {
	Get(ctx context.Context, key string) (*conversation.Session, error)
	Reset(ctx context.Context, key string) error
}

// Deduper claims message ids so redeliveries are dropped.
type Deduper interface {
	Claim(messageID string) bool
	Release(messageID string)
}

// Config configures a Dispatcher. Ledger and Dedupe are optional.
type Config struct {
	BotName  string
	BotEmail string
	Messages MessageClient
	Sessions SessionProvider
	Ledger   store.Ledger
	Dedupe   Deduper
	Logger   *slog.Logger
}

// Dispatcher is the webhook http.Handler.
type Dispatcher struct {
	botEmail string
	mention  *regexp.Regexp
	messages MessageClient
	sessions SessionProvider
	ledger   store.Ledger
	dedupe   Deduper
	logger   *slog.Logger
}

// NewDispatcher creates a webhook dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var mention *regexp.Regexp
	if name := strings.TrimSpace(cfg.BotName); name != "" {
		mention = regexp.MustCompile("(?i)" + regexp.QuoteMeta(name))
	}
	return &Dispatcher{
		botEmail: strings.TrimSpace(cfg.BotEmail),
		mention:  mention,
		messages: cfg.Messages,
		sessions: cfg.Sessions,
		ledger:   cfg.Ledger,
		dedupe:   cfg.Dedupe,
		logger:   logger.With("component", "relay"),
	}
}

// result is the disposition of one event.
type result struct {
	status     int
	body       any
	outcome    store.Outcome
	detail     string
	sessionID  string
	completion *conversation.Completion
}

func note(outcome store.Outcome, message string) result {
	return result{status: http.StatusOK, body: map[string]string{"message": message}, outcome: outcome, detail: message}
}

func done(outcome store.Outcome, s string) result {
	return result{status: http.StatusOK, body: map[string]string{"status": s}, outcome: outcome}
}

func failure(err error) result {
	return result{
		status:  http.StatusInternalServerError,
		body:    map[string]string{"status": "error", "message": err.Error()},
		outcome: store.OutcomeError,
		detail:  err.Error(),
	}
}

// ServeHTTP handles one webhook notification.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	ev, err := ParseEvent(r)
	if err != nil {
		d.logger.Warn("rejected webhook body", "error", err)
		res := result{
			status:  http.StatusBadRequest,
			body:    map[string]string{"status": "error", "message": err.Error()},
			outcome: store.OutcomeInvalid,
			detail:  err.Error(),
		}
		d.record(ctx, ev, res, start)
		writeJSON(w, res.status, res.body)
		return
	}

	res := d.dispatch(ctx, ev)
	if res.outcome == store.OutcomeError && d.dedupe != nil {
		// Let Webex redeliver a message that was never answered.
		d.dedupe.Release(ev.MessageID)
	}

	d.logger.Info("webhook handled",
		"message_id", ev.MessageID,
		"room_type", ev.RoomType,
		"outcome", res.outcome,
		"status", res.status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	d.record(ctx, ev, res, start)
	writeJSON(w, res.status, res.body)
}

// dispatch runs the event through the filters and, when it survives them,
// through the conversation. Panics are reported as server errors.
func (d *Dispatcher) dispatch(ctx context.Context, ev *Event) (res result) {
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("panic while handling webhook",
				"message_id", ev.MessageID,
				"panic", p,
				"stack", string(debug.Stack()),
			)
			res = failure(fmt.Errorf("internal error: %v", p))
		}
	}()

	if d.botEmail != "" && strings.EqualFold(ev.PersonEmail, d.botEmail) {
		d.logger.Debug("ignoring message from the bot itself", "message_id", ev.MessageID)
		return note(store.OutcomeSelfMessage, selfMessageNote)
	}

	if d.dedupe != nil && !d.dedupe.Claim(ev.MessageID) {
		d.logger.Debug("duplicate delivery ignored", "message_id", ev.MessageID)
		return note(store.OutcomeDuplicate, duplicateNote)
	}

	msg, err := d.messages.GetMessage(ctx, ev.MessageID)
	if err != nil {
		return failure(fmt.Errorf("retrieving message details: %w", err))
	}

	text, ok := d.extractText(ev.RoomType, msg.Text)
	if !ok {
		d.logger.Debug("bot not mentioned", "message_id", ev.MessageID, "room_id", ev.RoomID)
		return note(store.OutcomeNotMentioned, notMentionedNote)
	}

	to := recipientFor(ev)
	key := ev.ConversationKey()

	if isResetCommand(text) {
		if err := d.sessions.Reset(ctx, key); err != nil {
			return failure(fmt.Errorf("resetting conversation: %w", err))
		}
		if _, err := d.messages.Send(ctx, ResetAck, to); err != nil {
			return failure(err)
		}
		return done(store.OutcomeReset, "conversation reset")
	}

	out, res := d.converse(ctx, key, text)
	if res.status != 0 {
		return res
	}

	if _, err := d.messages.Send(ctx, out.text, to); err != nil {
		return failure(err)
	}

	res = done(store.OutcomeReplied, "success")
	if out.fallback {
		res.outcome = store.OutcomeFallback
		res.detail = out.reason
	}
	res.sessionID = out.sessionID
	res.completion = out.completion
	return res
}

// reply is the text to post for a normal turn.
type reply struct {
	text       string
	fallback   bool
	reason     string
	sessionID  string
	completion *conversation.Completion
}

// converse submits text to the conversation's session. Completion failures
// become the fallback reply; any other failure is returned as a result.
func (d *Dispatcher) converse(ctx context.Context, key, text string) (reply, result) {
	var compErr *conversation.CompletionError

	session, err := d.sessions.Get(ctx, key)
	if errors.As(err, &compErr) {
		d.logger.Error("conversation unavailable", "conversation", key, "error", err)
		return reply{text: FallbackMessage, fallback: true, reason: err.Error()}, result{}
	}
	if err != nil {
		return reply{}, failure(fmt.Errorf("opening conversation: %w", err))
	}

	completion, err := session.Exchange(ctx, text)
	if errors.As(err, &compErr) {
		return reply{text: FallbackMessage, fallback: true, reason: err.Error(), sessionID: session.ID()}, result{}
	}
	if err != nil {
		return reply{}, failure(err)
	}

	return reply{text: completion.Text, sessionID: session.ID(), completion: completion}, result{}
}

// extractText applies the mention filter and strips the first mention of the
// bot name. It reports false when a group message does not mention the bot.
func (d *Dispatcher) extractText(roomType RoomType, text string) (string, bool) {
	if roomType != RoomGroup || d.mention == nil {
		return strings.TrimSpace(text), true
	}
	loc := d.mention.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	return strings.TrimSpace(text[:loc[0]] + text[loc[1]:]), true
}

func isResetCommand(text string) bool {
	return strings.EqualFold(text, "reset") || strings.EqualFold(text, "refresh")
}

// recipientFor answers in the room for group spaces and to the sender for direct ones.
func recipientFor(ev *Event) webex.Recipient {
	if ev.RoomType == RoomGroup {
		return webex.Recipient{RoomID: ev.RoomID}
	}
	return webex.Recipient{PersonID: ev.PersonID}
}

// record writes the ledger rows for a handled event. Ledger failures are logged only.
func (d *Dispatcher) record(ctx context.Context, ev *Event, res result, start time.Time) {
	if d.ledger == nil {
		return
	}
	if ev == nil {
		ev = &Event{}
	}
	ctx = context.WithoutCancel(ctx)

	event := &store.RelayEvent{
		MessageID:       ev.MessageID,
		RoomID:          ev.RoomID,
		RoomType:        string(ev.RoomType),
		PersonID:        ev.PersonID,
		ConversationKey: ev.ConversationKey(),
		Outcome:         res.outcome,
		Detail:          res.detail,
		DurationMS:      time.Since(start).Milliseconds(),
	}
	if err := d.ledger.SaveRelayEvent(ctx, event); err != nil {
		d.logger.Error("failed to record relay event", "message_id", ev.MessageID, "error", err)
		return
	}

	if res.completion == nil {
		return
	}
	usage := &store.TokenUsage{
		RelayEventID:     event.ID,
		ConversationKey:  event.ConversationKey,
		SessionID:        res.sessionID,
		Model:            res.completion.Model,
		PromptTokens:     res.completion.Usage.PromptTokens,
		CompletionTokens: res.completion.Usage.CompletionTokens,
		TotalTokens:      res.completion.Usage.TotalTokens,
	}
	if err := d.ledger.SaveUsage(ctx, usage); err != nil {
		d.logger.Error("failed to record token usage", "relay_event_id", event.ID, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
