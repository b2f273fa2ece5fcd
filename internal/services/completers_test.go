package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/or0ji/Association-Website-Template/internal/models"
	"github.com/or0ji/Association-Website-Template/internal/services"
)

var conversation = []models.ChatMessage{
	{Role: models.RoleUser, Content: "When do you meet?"},
	{Role: models.RoleAssistant, Content: "Every Friday."},
	{Role: models.RoleUser, Content: "Where?"},
}

type capturedRequest struct {
	path string
	body map[string]any
}

func newProviderServer(t *testing.T, status int, contentType, body string) (*httptest.Server, <-chan capturedRequest) {
	t.Helper()

	reqs := make(chan capturedRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		reqs <- capturedRequest{path: r.URL.Path, body: payload}

		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, reqs
}

func collectText(seq iter.Seq2[string, error]) (string, error) {
	var sb strings.Builder
	for delta, err := range seq {
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(delta)
	}
	return sb.String(), nil
}

func roles(body map[string]any) []string {
	msgs, _ := body["messages"].([]any)
	var res []string
	for _, m := range msgs {
		msg, _ := m.(map[string]any)
		role, _ := msg["role"].(string)
		res = append(res, role)
	}
	return res
}

func TestOpenAIComplete(t *testing.T) {
	stream := `data: {"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"role":"assistant"}}]}` + "\n\n" +
		`data: {"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"In the "}}]}` + "\n\n" +
		`data: {"id":"1","object":"chat.completion.chunk","choices":[]}` + "\n\n" +
		`data: {"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"library."}}]}` + "\n\n" +
		"data: [DONE]\n\n"
	srv, reqs := newProviderServer(t, http.StatusOK, "text/event-stream", stream)

	temp := float32(0.2)
	openai := services.NewOpenAI("sk-test", srv.URL+"/v1", "gpt-4o-mini", "Be brief.",
		services.LLMParameters{Temperature: &temp}, testLogger())

	got, err := collectText(openai.Complete(context.Background(), conversation))
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "In the library." {
		t.Errorf("Complete() = %q, want %q", got, "In the library.")
	}

	req := <-reqs
	if req.path != "/v1/chat/completions" {
		t.Errorf("path = %q, want /v1/chat/completions", req.path)
	}
	if want := []string{"system", "user", "assistant", "user"}; strings.Join(roles(req.body), ",") != strings.Join(want, ",") {
		t.Errorf("roles = %v, want %v", roles(req.body), want)
	}
	if req.body["model"] != "gpt-4o-mini" || req.body["stream"] != true {
		t.Errorf("request = %v", req.body)
	}
}

func TestOpenAICompleteError(t *testing.T) {
	srv, _ := newProviderServer(t, http.StatusUnauthorized, "application/json",
		`{"error":{"message":"bad key","type":"invalid_request_error"}}`)

	openai := services.NewOpenAI("sk-bad", srv.URL+"/v1", "gpt-4o-mini", "", services.LLMParameters{}, testLogger())

	if _, err := collectText(openai.Complete(context.Background(), conversation)); err == nil {
		t.Error("Complete() should fail on an unauthorized response")
	}
}

func TestOllamaComplete(t *testing.T) {
	stream := `{"model":"qwen2.5","message":{"role":"assistant","content":"In the "},"done":false}` + "\n" +
		`{"model":"qwen2.5","message":{"role":"assistant","content":"library."},"done":false}` + "\n" +
		`{"model":"qwen2.5","message":{"role":"assistant","content":""},"done":true}` + "\n"
	srv, reqs := newProviderServer(t, http.StatusOK, "application/x-ndjson", stream)

	ollama, err := services.NewOllama(srv.URL, "qwen2.5", "Be brief.", testLogger())
	if err != nil {
		t.Fatalf("NewOllama() error = %v", err)
	}

	got, err := collectText(ollama.Complete(context.Background(), conversation))
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "In the library." {
		t.Errorf("Complete() = %q, want %q", got, "In the library.")
	}

	req := <-reqs
	if req.path != "/api/chat" {
		t.Errorf("path = %q, want /api/chat", req.path)
	}
	if want := "system,user,assistant,user"; strings.Join(roles(req.body), ",") != want {
		t.Errorf("roles = %v, want %v", roles(req.body), want)
	}
}

func TestOllamaCompleteStop(t *testing.T) {
	stream := `{"message":{"role":"assistant","content":"one"},"done":false}` + "\n" +
		`{"message":{"role":"assistant","content":"two"},"done":false}` + "\n" +
		`{"message":{"role":"assistant","content":""},"done":true}` + "\n"
	srv, _ := newProviderServer(t, http.StatusOK, "application/x-ndjson", stream)

	ollama, err := services.NewOllama(srv.URL, "qwen2.5", "", testLogger())
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	for delta, err := range ollama.Complete(context.Background(), conversation) {
		if err != nil {
			t.Fatalf("Complete() error = %v", err)
		}
		got = append(got, delta)
		break
	}
	if len(got) != 1 || got[0] != "one" {
		t.Errorf("Complete() = %v, want [one]", got)
	}
}

func TestNewOllamaInvalidHost(t *testing.T) {
	if _, err := services.NewOllama("://nope", "m", "", testLogger()); err == nil {
		t.Error("NewOllama() should reject an invalid host")
	}
}

func TestAnthropicComplete(t *testing.T) {
	stream := "event: message_start\n" +
		`data: {"type":"message_start","message":{"id":"msg_1"}}` + "\n\n" +
		"event: content_block_delta\n" +
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"In the "}}` + "\n\n" +
		"event: ping\n" +
		`data: {"type":"ping"}` + "\n\n" +
		"event: content_block_delta\n" +
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"library."}}` + "\n\n" +
		"event: message_stop\n" +
		`data: {"type":"message_stop"}` + "\n\n"
	srv, reqs := newProviderServer(t, http.StatusOK, "text/event-stream", stream)

	anthropic := services.NewAnthropic("key", srv.URL, "claude-3-5-haiku-latest", "Be brief.", 256, testLogger())

	got, err := collectText(anthropic.Complete(context.Background(), conversation))
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "In the library." {
		t.Errorf("Complete() = %q, want %q", got, "In the library.")
	}

	req := <-reqs
	if req.path != "/messages" {
		t.Errorf("path = %q, want /messages", req.path)
	}
	if req.body["system"] != "Be brief." {
		t.Errorf("system = %v, want Be brief.", req.body["system"])
	}
	if want := "user,assistant,user"; strings.Join(roles(req.body), ",") != want {
		t.Errorf("roles = %v, want %v", roles(req.body), want)
	}
}

func TestAnthropicCompleteErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{
			name:   "Bad status",
			status: http.StatusTooManyRequests,
			body:   `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`,
			check: func(err error) bool {
				var se *services.StatusError
				return errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests
			},
		},
		{
			name:   "Error event",
			status: http.StatusOK,
			body: "event: error\n" +
				`data: {"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}` + "\n\n",
			check: func(err error) bool {
				return err != nil && strings.Contains(err.Error(), "overloaded_error")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newProviderServer(t, tt.status, "text/event-stream", tt.body)
			anthropic := services.NewAnthropic("key", srv.URL, "claude-3-5-haiku-latest", "", 256, testLogger())

			_, err := collectText(anthropic.Complete(context.Background(), conversation))
			if !tt.check(err) {
				t.Errorf("Complete() error = %v", err)
			}
		})
	}
}
