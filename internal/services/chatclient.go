package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/or0ji/Association-Website-Template/internal/models"
)

// ChatTexts holds the fixed texts the chat client shows in place of a reply.
type ChatTexts struct {
	Welcome        string `yaml:"welcome"`
	RequestFailed  string `yaml:"requestFailed"`
	NetworkFailure string `yaml:"networkFailure"`
	ErrorFallback  string `yaml:"errorFallback"`
}

// DefaultChatTexts are used for every ChatTexts field left empty.
var DefaultChatTexts = ChatTexts{
	Welcome:        "Hello! I am the association's assistant. Ask me anything about the association and its services.",
	RequestFailed:  "Sorry, the request failed. Please try again later.",
	NetworkFailure: "Sorry, there was a network problem. Please try again later.",
	ErrorFallback:  "Sorry, an error occurred. Please try again later.",
}

var (
	// ErrEmptyMessage is returned by SendMessage when the text is blank.
	ErrEmptyMessage = errors.New("chat: message is empty")
	// ErrTurnInFlight is returned by SendMessage while the previous turn is still running.
	ErrTurnInFlight = errors.New("chat: a turn is already in flight")
)

const (
	chatStreamPath = "/api/chat/stream"
	readChunkSize  = 4096
	welcomeID      = "welcome"

	errLoggerKey = "err"
)

// ChatClient talks to the chat stream endpoint of the association backend. It is safe to share between
// sessions.
type ChatClient struct {
	baseURL string
	texts   ChatTexts

	client *http.Client

	logger *slog.Logger
}

// NewChatClient creates a ChatClient for the backend at baseURL. A nil httpClient means a client
// without timeout; a streaming turn is bounded only by the caller's context.
func NewChatClient(baseURL string, httpClient *http.Client, texts ChatTexts, logger *slog.Logger) ChatClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if texts.Welcome == "" {
		texts.Welcome = DefaultChatTexts.Welcome
	}
	if texts.RequestFailed == "" {
		texts.RequestFailed = DefaultChatTexts.RequestFailed
	}
	if texts.NetworkFailure == "" {
		texts.NetworkFailure = DefaultChatTexts.NetworkFailure
	}
	if texts.ErrorFallback == "" {
		texts.ErrorFallback = DefaultChatTexts.ErrorFallback
	}

	return ChatClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		texts:   texts,
		client:  httpClient,
		logger:  logger.With(slog.String("module", "chatclient")),
	}
}

// Texts returns the fixed texts in use after defaults were applied.
func (c ChatClient) Texts() ChatTexts {
	return c.texts
}

// NewSession starts an empty conversation whose only message is the welcome text. Every session gets
// its own user id, sent with each request.
func (c ChatClient) NewSession() *ChatSession {
	return &ChatSession{
		client: c,
		userID: "web_" + uuid.NewString(),
		state:  models.TurnIdle,
		messages: []models.ChatMessage{
			{
				ID:        welcomeID,
				Role:      models.RoleAssistant,
				Content:   c.texts.Welcome,
				Timestamp: time.Now(),
			},
		},
	}
}

func (c ChatClient) open(ctx context.Context, req models.ChatRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatStreamPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	c.logger.Debug("Sending chat request", slog.String("url", httpReq.URL.String()))

	return c.client.Do(httpReq)
}

// ChatSession is one visitor's conversation. Messages are kept in display order; only the running turn
// writes to them, replacing the assistant message by id so that readers always see whole snapshots.
type ChatSession struct {
	client ChatClient
	userID string

	mu             sync.Mutex
	messages       []models.ChatMessage
	conversationID string
	state          models.TurnState
}

// UserID returns the identifier sent as user_id with every request of the session.
func (s *ChatSession) UserID() string {
	return s.userID
}

// Messages returns a copy of the conversation.
func (s *ChatSession) Messages() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// ConversationID returns the id assigned by the backend, if any turn has completed with one.
func (s *ChatSession) ConversationID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID, s.conversationID != ""
}

// State returns the lifecycle phase of the latest turn.
func (s *ChatSession) State() models.TurnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Busy reports whether a turn is in flight, in which case SendMessage would be rejected.
func (s *ChatSession) Busy() bool {
	st := s.State()
	return st != models.TurnIdle && !st.Terminal()
}

// SendMessage starts a new turn. It appends the trimmed text as a user message and an empty streaming
// assistant message, then returns a sequence that performs the request when ranged over and yields a
// snapshot of the assistant message after each change. The sequence can be consumed once; the session
// accepts another turn once it has been consumed, or once ctx is done if it never is.
//
// Failures of the turn are not returned as errors: they end up as the assistant message content, and
// the final yielded snapshot always has IsStreaming false. Cancelling ctx, or breaking out of the
// range loop, ends the turn as cancelled and keeps whatever was streamed so far.
func (s *ChatSession) SendMessage(ctx context.Context, text string) (iter.Seq[models.ChatMessage], error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.state != models.TurnIdle && !s.state.Terminal() {
		s.mu.Unlock()
		return nil, ErrTurnInFlight
	}

	now := time.Now()
	um := models.ChatMessage{
		ID:        uuid.NewString(),
		Role:      models.RoleUser,
		Content:   text,
		Timestamp: now,
	}
	am := models.ChatMessage{
		ID:          uuid.NewString(),
		Role:        models.RoleAssistant,
		IsStreaming: true,
		Timestamp:   now,
	}
	s.messages = append(s.messages, um, am)
	s.state = models.TurnRequesting

	req := models.ChatRequest{
		Message: text,
		UserID:  s.userID,
	}
	if s.conversationID != "" {
		convID := s.conversationID
		req.ConversationID = &convID
	}
	s.mu.Unlock()

	t := &turn{
		session:     s,
		assistantID: am.ID,
		logger:      s.client.logger.With(slog.String("messageID", am.ID)),
	}

	// A sequence nobody ranges over still has to give the turn up once ctx is done.
	stop := context.AfterFunc(ctx, func() {
		if t.started.CompareAndSwap(false, true) {
			t.logger.Debug("Turn cancelled before it started")
			t.settle(models.TurnCancelled)
		}
	})

	return func(yield func(models.ChatMessage) bool) {
		if !t.started.CompareAndSwap(false, true) {
			return
		}
		stop()
		t.run(ctx, req, yield)
	}, nil
}

// turn drives a single request/response exchange. Only the goroutine ranging over the sequence
// touches the unexported fields without the session lock.
type turn struct {
	session     *ChatSession
	assistantID string
	started     atomic.Bool

	content       strings.Builder
	pendingConvID string
	errored       bool
	stopped       bool

	logger *slog.Logger
}

func (t *turn) run(ctx context.Context, req models.ChatRequest, yield func(models.ChatMessage) bool) {
	// Whatever happens below, the turn must end in a terminal state with the streaming flag cleared.
	defer t.settle(models.TurnCancelled)

	emit := func(msg models.ChatMessage, changed bool) {
		if t.stopped || !changed {
			return
		}
		if !yield(msg) {
			t.stopped = true
		}
	}

	texts := t.session.client.texts

	resp, err := t.session.client.open(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			emit(t.finish(models.TurnCancelled, nil))
			return
		}
		t.logger.Error("Chat request failed", slog.String(errLoggerKey, err.Error()))
		emit(t.finish(models.TurnFailed, &texts.NetworkFailure))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		t.logger.Error("Chat request rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(body)))
		emit(t.finish(models.TurnFailed, &texts.RequestFailed))
		return
	}

	t.session.setState(models.TurnStreaming)

	var dec EventDecoder
	chunk := make([]byte, readChunkSize)
	for !t.stopped {
		n, err := resp.Body.Read(chunk)
		if n > 0 {
			for _, ev := range dec.Feed(chunk[:n]) {
				emit(t.apply(ev))
				if t.stopped {
					break
				}
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				emit(t.finish(models.TurnCancelled, nil))
				return
			}
			t.logger.Error("Chat stream broken", slog.String(errLoggerKey, err.Error()))
			emit(t.finish(models.TurnFailed, &texts.NetworkFailure))
			return
		}
	}
	if t.stopped {
		return
	}

	if t.errored {
		emit(t.finish(models.TurnFailed, nil))
		return
	}
	emit(t.finish(models.TurnDone, nil))
}

// apply folds a single event into the assistant message. It reports whether the message changed.
func (t *turn) apply(ev models.StreamEvent) (models.ChatMessage, bool) {
	t.logger.Debug("Received event", slog.String("type", string(ev.Type)))

	switch ev.Type {
	case models.EventContent:
		if ev.Content == "" || t.errored {
			return models.ChatMessage{}, false
		}
		t.content.WriteString(ev.Content)
		content := t.content.String()
		return t.session.updateMessage(t.assistantID, func(m *models.ChatMessage) {
			m.Content = content
		}), true
	case models.EventDone:
		if ev.ConversationID != "" {
			t.pendingConvID = ev.ConversationID
		}
	case models.EventError:
		t.errored = true
		if t.content.Len() == 0 {
			msg := ev.Content
			if msg == "" {
				msg = t.session.client.texts.ErrorFallback
			}
			t.content.WriteString(msg)
		}
		content := t.content.String()
		return t.session.updateMessage(t.assistantID, func(m *models.ChatMessage) {
			m.Content = content
			m.IsStreaming = false
		}), true
	case models.EventConnected, models.EventCompleted:
	default:
		t.logger.Debug("Ignoring unknown event type", slog.String("type", string(ev.Type)))
	}
	return models.ChatMessage{}, false
}

// finish moves the turn to a terminal state, optionally replacing the content, and clears the
// streaming flag. Only a done turn commits the conversation id.
func (t *turn) finish(state models.TurnState, replace *string) (models.ChatMessage, bool) {
	s := t.session
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = state
	if state == models.TurnDone && t.pendingConvID != "" {
		s.conversationID = t.pendingConvID
	}

	idx := s.indexLocked(t.assistantID)
	if idx < 0 {
		return models.ChatMessage{}, false
	}
	msg := s.messages[idx]
	changed := msg.IsStreaming
	msg.IsStreaming = false
	if replace != nil && msg.Content != *replace {
		msg.Content = *replace
		changed = true
	}
	s.messages[idx] = msg

	return msg, changed
}

func (t *turn) settle(state models.TurnState) {
	if t.session.State().Terminal() {
		return
	}
	t.finish(state, nil)
}

func (s *ChatSession) setState(state models.TurnState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *ChatSession) updateMessage(id string, update func(*models.ChatMessage)) models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return models.ChatMessage{}
	}
	msg := s.messages[idx]
	update(&msg)
	s.messages[idx] = msg
	return msg
}

func (s *ChatSession) indexLocked(id string) int {
	return slices.IndexFunc(s.messages, func(m models.ChatMessage) bool { return m.ID == id })
}
