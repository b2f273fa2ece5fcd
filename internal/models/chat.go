package models

import (
	"time"
)

// ChatMessage represents an individual entry of a conversation shown in the chat widget. User messages
// are immutable once appended; the assistant message currently receiving tokens grows in place and
// carries IsStreaming until its turn ends.
type ChatMessage struct {
	ID          string    `json:"id"`
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	IsStreaming bool      `json:"is_streaming,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleUser represents a message typed by the visitor.
	RoleUser Role = "user"
	// RoleAssistant represents a reply produced by the chat backend.
	RoleAssistant Role = "assistant"
)

// EventType is the discriminator of a StreamEvent record.
type EventType string

const (
	// EventConnected acknowledges that the relay accepted the request.
	EventConnected EventType = "connected"
	// EventContent carries the next piece of the assistant reply.
	EventContent EventType = "content"
	// EventDone carries the conversation id assigned by the backend.
	EventDone EventType = "done"
	// EventError reports an upstream failure. Content holds the message to show, if any.
	EventError EventType = "error"
	// EventCompleted is informational and marks the end of the upstream chat.
	EventCompleted EventType = "completed"
)

// StreamEvent is a single record of the chat event stream, encoded as JSON after a "data:" prefix.
//
// Content is filled for EventContent and optionally for EventError. ConversationID is filled for
// EventDone.
type StreamEvent struct {
	Type           EventType `json:"type"`
	Content        string    `json:"content,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
}

// ChatRequest is the body of a POST to the chat stream endpoint.
type ChatRequest struct {
	Message        string  `json:"message"`
	ConversationID *string `json:"conversation_id"`
	UserID         string  `json:"user_id"`
}
