package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/or0ji/Association-Website-Template/internal/models"
	"github.com/or0ji/Association-Website-Template/internal/services"
	"github.com/tmaxmax/go-sse"
)

// Texts sent in error records when the upstream can't be reached.
var (
	timeoutText = "The request timed out, please try again later."
	networkText = "Network error, please try again later."
)

const (
	defaultUserID = "web_user"

	maxChatBodySize       = 64 << 10
	maxConversationIDSize = 256
)

type chatHealth struct {
	Status        string `json:"status"`
	BotConfigured bool   `json:"bot_configured"`
}

// HandleChatStream relays a visitor message to the upstream and streams the reply back as
// server-sent events. The first record is always "connected"; an upstream failure is reported as a
// single "error" record that ends the stream.
func (m Main) HandleChatStream(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodySize)).Decode(&req); err != nil {
		m.logger.Error("Invalid chat request", slog.String(errLoggerKey, err.Error()))
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		m.logger.Error("Message is required")
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.ConversationID != nil && len(*req.ConversationID) > maxConversationIDSize {
		m.logger.Error("Conversation id too long", slog.Int("size", len(*req.ConversationID)))
		writeError(w, http.StatusBadRequest, "conversation_id is too long")
		return
	}
	if req.UserID == "" {
		req.UserID = defaultUserID
	}

	sess, err := sse.Upgrade(w, r)
	if err != nil {
		m.logger.Error("Failed to upgrade to event stream", slog.String(errLoggerKey, err.Error()))
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	h := w.Header()
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	h.Set("X-Accel-Buffering", "no")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(m.streams, cancel)
	defer stop()

	if err := m.sendEvent(sess, models.StreamEvent{Type: models.EventConnected}); err != nil {
		m.logger.Error("Failed to send event", slog.String(errLoggerKey, err.Error()))
		return
	}

	for ev, err := range m.upstream.Chat(ctx, req) {
		if err != nil {
			if ctx.Err() != nil && !services.IsTimeout(err) {
				m.logger.Debug("Chat stream abandoned", slog.String(errLoggerKey, err.Error()))
				return
			}
			m.logger.Error("Upstream chat failed", slog.String(errLoggerKey, err.Error()))
			ev = models.StreamEvent{Type: models.EventError, Content: upstreamErrorText(err)}
		}
		if err := m.sendEvent(sess, ev); err != nil {
			m.logger.Error("Failed to send event", slog.String(errLoggerKey, err.Error()))
			return
		}
		if ev.Type == models.EventError {
			return
		}
	}
}

func upstreamErrorText(err error) string {
	var se *services.StatusError
	switch {
	case errors.As(err, &se):
		return fmt.Sprintf("API error: %d", se.StatusCode)
	case services.IsTimeout(err):
		return timeoutText
	default:
		return networkText
	}
}

func (m Main) sendEvent(sess *sse.Session, ev models.StreamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sse.Message{}
	msg.AppendData(string(data))
	if err := sess.Send(msg); err != nil {
		return fmt.Errorf("failed to send event: %w", err)
	}
	return sess.Flush()
}

// HandleChatHealth reports whether the relay has an upstream configured.
func (m Main) HandleChatHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, chatHealth{
		Status:        "ok",
		BotConfigured: m.upstream.Configured(),
	})
}
