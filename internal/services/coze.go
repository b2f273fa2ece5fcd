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
	"strings"
	"time"

	"github.com/or0ji/Association-Website-Template/internal/models"
	"github.com/tmaxmax/go-sse"
)

// Coze relays chat turns to a Coze bot. Coze keeps the conversation history itself, so the relay only
// forwards the conversation id it handed out on a previous turn.
type Coze struct {
	baseURL string
	botID   string
	token   string

	client *http.Client

	logger *slog.Logger
}

// StatusError is returned when an upstream answers with an unexpected HTTP status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.StatusCode, e.Body)
}

type cozeChatRequest struct {
	BotID              string         `json:"bot_id"`
	UserID             string         `json:"user_id"`
	Stream             bool           `json:"stream"`
	AdditionalMessages []cozeMessage  `json:"additional_messages"`
	Parameters         map[string]any `json:"parameters"`
	ConversationID     string         `json:"conversation_id,omitempty"`
}

type cozeMessage struct {
	Role        string `json:"role"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
	Type        string `json:"type"`
}

type cozeMessageData struct {
	Role           string `json:"role"`
	Type           string `json:"type"`
	Content        string `json:"content"`
	ConversationID string `json:"conversation_id"`
}

type cozeChatData struct {
	LastError struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"last_error"`
}

const (
	// CozeAPIEndpoint is the API base of coze.cn.
	CozeAPIEndpoint = "https://api.coze.cn"

	cozeQuotaErrorCode = 4028

	cozeEventMessageDelta     = "conversation.message.delta"
	cozeEventMessageCompleted = "conversation.message.completed"
	cozeEventChatCompleted    = "conversation.chat.completed"
	cozeEventChatFailed       = "conversation.chat.failed"
	cozeEventDone             = "done"

	defaultUserID = "web_user"
)

// Texts sent to the visitor when Coze reports a failed chat.
var (
	CozeQuotaText       = "The AI service quota is exhausted, please contact the administrator."
	CozeUnavailableText = "The service is temporarily unavailable."
)

// NewCoze creates a Coze upstream. A zero timeout means the turn is bounded only by the request context.
func NewCoze(baseURL, botID, token string, timeout time.Duration, logger *slog.Logger) Coze {
	if baseURL == "" {
		baseURL = CozeAPIEndpoint
	}
	return Coze{
		baseURL: strings.TrimRight(baseURL, "/"),
		botID:   botID,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With(slog.String("module", "coze")),
	}
}

// Configured reports whether a bot id was provided.
func (c Coze) Configured() bool {
	return c.botID != ""
}

// Chat sends the visitor's message to the bot and translates the Coze event stream into relay events.
// Failures reported inside the stream become EventError records; failures to reach Coze or to read
// its stream are yielded as errors.
func (c Coze) Chat(ctx context.Context, req models.ChatRequest) iter.Seq2[models.StreamEvent, error] {
	return func(yield func(models.StreamEvent, error) bool) {
		resp, err := c.doRequest(ctx, req)
		if err != nil {
			yield(models.StreamEvent{}, err)
			return
		}
		defer resp.Body.Close()

		for ev, err := range sse.Read(resp.Body, nil) {
			if err != nil {
				yield(models.StreamEvent{}, fmt.Errorf("error reading response: %w", err))
				return
			}

			c.logger.Debug("Received event", slog.String("type", ev.Type), slog.String("data", ev.Data))

			out, ok := c.translate(ev.Type, ev.Data)
			if !ok {
				continue
			}
			if !yield(out, nil) {
				return
			}
			if out.Type == models.EventError {
				return
			}
		}
	}
}

// translate maps a single Coze event to a relay event. It reports false for events the relay doesn't
// forward.
func (c Coze) translate(eventType, data string) (models.StreamEvent, bool) {
	data = strings.TrimSpace(data)
	if data == "" || data == doneSentinel {
		return models.StreamEvent{}, false
	}
	// Some events carry a bare JSON string instead of an object.
	if strings.HasPrefix(data, `"`) {
		return models.StreamEvent{}, false
	}

	switch eventType {
	case cozeEventMessageDelta:
		var msg cozeMessageData
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			c.logger.Warn("Malformed message delta", slog.String(errLoggerKey, err.Error()))
			return models.StreamEvent{}, false
		}
		if msg.Content == "" {
			return models.StreamEvent{}, false
		}
		return models.StreamEvent{Type: models.EventContent, Content: msg.Content}, true
	case cozeEventMessageCompleted:
		var msg cozeMessageData
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			c.logger.Warn("Malformed message completion", slog.String(errLoggerKey, err.Error()))
			return models.StreamEvent{}, false
		}
		if msg.Role != string(models.RoleAssistant) || msg.Type != "answer" {
			return models.StreamEvent{}, false
		}
		return models.StreamEvent{Type: models.EventDone, ConversationID: msg.ConversationID}, true
	case cozeEventChatCompleted, cozeEventDone:
		return models.StreamEvent{Type: models.EventCompleted}, true
	case cozeEventChatFailed:
		var chat cozeChatData
		if err := json.Unmarshal([]byte(data), &chat); err != nil {
			c.logger.Warn("Malformed chat failure", slog.String(errLoggerKey, err.Error()))
			return models.StreamEvent{}, false
		}
		msg := chat.LastError.Msg
		if msg == "" {
			msg = CozeUnavailableText
		}
		c.logger.Error("Coze chat failed",
			slog.Int("code", chat.LastError.Code),
			slog.String("msg", chat.LastError.Msg))
		if chat.LastError.Code == cozeQuotaErrorCode || strings.Contains(strings.ToLower(msg), "insufficient") {
			msg = CozeQuotaText
		}
		return models.StreamEvent{Type: models.EventError, Content: msg}, true
	}
	return models.StreamEvent{}, false
}

func (c Coze) doRequest(ctx context.Context, req models.ChatRequest) (*http.Response, error) {
	userID := req.UserID
	if userID == "" {
		userID = defaultUserID
	}

	reqBody := cozeChatRequest{
		BotID:  c.botID,
		UserID: userID,
		Stream: true,
		AdditionalMessages: []cozeMessage{
			{
				Role:        string(models.RoleUser),
				Content:     req.Message,
				ContentType: "text",
				Type:        "question",
			},
		},
		Parameters: map[string]any{},
	}
	if req.ConversationID != nil {
		reqBody.ConversationID = *req.ConversationID
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	c.logger.Debug("Request Body", slog.String("body", string(jsonBody)))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v3/chat", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return resp, nil
}

// IsTimeout reports whether err was caused by a deadline, either of a context or of the HTTP client.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
