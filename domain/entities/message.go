package entities

import (
	"time"
)

// MessageRole represents the role of a message sender
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message is one committed turn of the conversation. Messages are never
// modified after they are appended to a History.
type Message struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp int64       `json:"timestamp"` // epoch milliseconds
}

// NewMessage creates a message stamped with the given time
func NewMessage(role MessageRole, content string, at time.Time) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: at.UnixMilli(),
	}
}

// History is the ordered, append-only conversation log that is replayed
// to the generation service on every turn.
type History struct {
	messages []Message
}

// NewHistory creates a history seeded with the given messages
func NewHistory(seed ...Message) *History {
	h := &History{messages: make([]Message, 0, len(seed)+8)}
	h.messages = append(h.messages, seed...)
	return h
}

// Append adds a message at the end of the history
func (h *History) Append(message Message) {
	h.messages = append(h.messages, message)
}

// Len returns the number of messages
func (h *History) Len() int {
	return len(h.messages)
}

// Messages returns a copy of the history in chronological order
func (h *History) Messages() []Message {
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// LastUserMessage scans the history backwards and returns the most recent
// user message.
func (h *History) LastUserMessage() (Message, bool) {
	for i := len(h.messages) - 1; i >= 0; i-- {
		if h.messages[i].Role == MessageRoleUser {
			return h.messages[i], true
		}
	}
	return Message{}, false
}
