package services

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/or0ji/Association-Website-Template/internal/models"
)

// Completer streams the assistant's reply to a conversation.
type Completer interface {
	Complete(ctx context.Context, messages []models.ChatMessage) iter.Seq2[string, error]
}

// HistoryStore persists the conversations relayed to a stateless Completer.
type HistoryStore interface {
	Messages(ctx context.Context, conversationID string) ([]models.ChatMessage, error)
	AddMessages(ctx context.Context, conversationID string, messages ...models.ChatMessage) error
}

// Assistant relays chat turns to a Completer that has no notion of conversations, keeping the history
// itself. It produces the same event stream as Coze.
type Assistant struct {
	completer Completer
	store     HistoryStore
	timeout   time.Duration

	logger *slog.Logger
}

// NewAssistant creates an Assistant completing with completer and remembering conversations in store.
// A positive timeout bounds every turn.
func NewAssistant(completer Completer, store HistoryStore, timeout time.Duration, logger *slog.Logger) Assistant {
	return Assistant{
		completer: completer,
		store:     store,
		timeout:   timeout,
		logger:    logger.With(slog.String("module", "assistant")),
	}
}

// Configured always reports true; a misconfigured completer fails on its first request.
func (a Assistant) Configured() bool {
	return true
}

// Chat appends the visitor's message to the conversation and streams the reply. A request without a
// conversation id starts a new conversation. The turn is stored only after the reply is complete, so an
// interrupted turn leaves the history unchanged.
func (a Assistant) Chat(ctx context.Context, req models.ChatRequest) iter.Seq2[models.StreamEvent, error] {
	return func(yield func(models.StreamEvent, error) bool) {
		ctx, cancel := a.turnContext(ctx)
		defer cancel()

		var history []models.ChatMessage
		conversationID := uuid.New().String()
		if req.ConversationID != nil && *req.ConversationID != "" {
			conversationID = *req.ConversationID
			var err error
			history, err = a.store.Messages(ctx, conversationID)
			if err != nil {
				yield(models.StreamEvent{}, fmt.Errorf("failed to get history: %w", err))
				return
			}
		}

		userMsg := models.ChatMessage{
			ID:        uuid.New().String(),
			Role:      models.RoleUser,
			Content:   req.Message,
			Timestamp: time.Now(),
		}
		history = append(history, userMsg)

		var reply strings.Builder
		for delta, err := range a.completer.Complete(ctx, history) {
			if err != nil {
				yield(models.StreamEvent{}, err)
				return
			}
			reply.WriteString(delta)
			if !yield(models.StreamEvent{Type: models.EventContent, Content: delta}, nil) {
				return
			}
		}

		assistantMsg := models.ChatMessage{
			ID:        uuid.New().String(),
			Role:      models.RoleAssistant,
			Content:   reply.String(),
			Timestamp: time.Now(),
		}
		if err := a.store.AddMessages(ctx, conversationID, userMsg, assistantMsg); err != nil {
			a.logger.Error("Failed to store turn",
				slog.String("conversationID", conversationID),
				slog.String(errLoggerKey, err.Error()))
			yield(models.StreamEvent{}, fmt.Errorf("failed to store turn: %w", err))
			return
		}

		if !yield(models.StreamEvent{Type: models.EventDone, ConversationID: conversationID}, nil) {
			return
		}
		yield(models.StreamEvent{Type: models.EventCompleted}, nil)
	}
}

func (a Assistant) turnContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout > 0 {
		return context.WithTimeout(ctx, a.timeout)
	}
	return context.WithCancel(ctx)
}
