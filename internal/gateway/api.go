// ABOUTME: Read-only HTTP API over the relay ledger
// ABOUTME: Serves token usage stats and recent relay events behind the webhook secret

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/webex-relay/internal/auth"
	"github.com/2389/webex-relay/internal/store"
)

// maxEventLimit caps the limit parameter of GET /api/events.
const maxEventLimit = 500

// RelayEventResponse is the JSON form of a ledger row.
type RelayEventResponse struct {
	ID              string `json:"id"`
	MessageID       string `json:"message_id"`
	RoomID          string `json:"room_id,omitempty"`
	RoomType        string `json:"room_type,omitempty"`
	PersonID        string `json:"person_id,omitempty"`
	ConversationKey string `json:"conversation_key,omitempty"`
	Outcome         string `json:"outcome"`
	Detail          string `json:"detail,omitempty"`
	DurationMS      int64  `json:"duration_ms"`
	CreatedAt       string `json:"created_at"`
}

func (g *Gateway) registerAPIRoutes(mux *http.ServeMux) {
	mux.Handle("GET /api/usage", g.requireSecret(http.HandlerFunc(g.handleUsage)))
	mux.Handle("GET /api/events", g.requireSecret(http.HandlerFunc(g.handleEvents)))
}

// requireSecret guards API routes with the same shared secret Webex presents.
func (g *Gateway) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := auth.CheckSharedSecret(g.config.Webhook.Secret, r.Header.Get("Authorization")); err != nil {
			g.logger.Warn("rejected API call", "path", r.URL.Path, "remote", r.RemoteAddr)
			g.sendJSONError(w, http.StatusUnauthorized, auth.UnauthorizedMessage)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleUsage returns aggregated token usage.
// Query parameters: conversation, model, since, until (RFC 3339).
func (g *Gateway) handleUsage(w http.ResponseWriter, r *http.Request) {
	if g.ledger == nil {
		g.sendJSONError(w, http.StatusNotFound, "ledger disabled")
		return
	}

	q := r.URL.Query()
	var filter store.UsageFilter
	if v := q.Get("conversation"); v != "" {
		filter.ConversationKey = &v
	}
	if v := q.Get("model"); v != "" {
		filter.Model = &v
	}
	var err error
	if filter.Since, err = parseTimeParam(q.Get("since")); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "since: "+err.Error())
		return
	}
	if filter.Until, err = parseTimeParam(q.Get("until")); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "until: "+err.Error())
		return
	}

	stats, err := g.ledger.GetUsageStats(r.Context(), filter)
	if err != nil {
		g.logger.Error("failed to get usage stats", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}

// handleEvents lists recent relay events, newest first.
// Query parameters: room, outcome, since (RFC 3339), limit (default 100, max 500).
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	if g.ledger == nil {
		g.sendJSONError(w, http.StatusNotFound, "ledger disabled")
		return
	}

	q := r.URL.Query()
	var filter store.EventFilter
	if v := q.Get("room"); v != "" {
		filter.RoomID = &v
	}
	if v := q.Get("outcome"); v != "" {
		outcome := store.Outcome(v)
		if !outcome.Valid() {
			g.sendJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown outcome %q", v))
			return
		}
		filter.Outcome = &outcome
	}
	var err error
	if filter.Since, err = parseTimeParam(q.Get("since")); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "since: "+err.Error())
		return
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = min(limit, maxEventLimit)
	}

	events, err := g.ledger.ListRelayEvents(r.Context(), filter)
	if err != nil {
		g.logger.Error("failed to list relay events", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]RelayEventResponse, len(events))
	for i, e := range events {
		response[i] = RelayEventResponse{
			ID:              e.ID,
			MessageID:       e.MessageID,
			RoomID:          e.RoomID,
			RoomType:        e.RoomType,
			PersonID:        e.PersonID,
			ConversationKey: e.ConversationKey,
			Outcome:         string(e.Outcome),
			Detail:          e.Detail,
			DurationMS:      e.DurationMS,
			CreatedAt:       e.CreatedAt.Format(time.RFC3339),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// parseTimeParam parses an optional RFC 3339 query value.
func parseTimeParam(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("must be an RFC 3339 timestamp")
	}
	return &t, nil
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
