package entities

import (
	"testing"
	"time"
)

func TestNewMessage(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	msg := NewMessage(MessageRoleUser, "Hello", at)

	if msg.Role != MessageRoleUser {
		t.Errorf("Expected role %s, got %s", MessageRoleUser, msg.Role)
	}

	if msg.Content != "Hello" {
		t.Errorf("Expected content Hello, got %s", msg.Content)
	}

	if msg.Timestamp != at.UnixMilli() {
		t.Errorf("Expected timestamp %d, got %d", at.UnixMilli(), msg.Timestamp)
	}
}

func TestHistoryAppendKeepsOrder(t *testing.T) {
	now := time.Now()
	history := NewHistory(NewMessage(MessageRoleAssistant, "Hi!", now))

	history.Append(NewMessage(MessageRoleUser, "Hello", now))
	history.Append(NewMessage(MessageRoleAssistant, "How are you?", now))

	if history.Len() != 3 {
		t.Fatalf("Expected 3 messages, got %d", history.Len())
	}

	want := []string{"Hi!", "Hello", "How are you?"}
	for i, msg := range history.Messages() {
		if msg.Content != want[i] {
			t.Errorf("Message %d: expected %q, got %q", i, want[i], msg.Content)
		}
	}
}

func TestHistoryMessagesReturnsCopy(t *testing.T) {
	history := NewHistory(NewMessage(MessageRoleAssistant, "Hi!", time.Now()))

	messages := history.Messages()
	messages[0].Content = "changed"

	if history.Messages()[0].Content != "Hi!" {
		t.Error("History should not be modified through the returned slice")
	}
}

func TestHistoryLastUserMessage(t *testing.T) {
	now := time.Now()

	history := NewHistory(NewMessage(MessageRoleAssistant, "hi", now))
	if _, ok := history.LastUserMessage(); ok {
		t.Error("Expected no user message in a greeting-only history")
	}

	history.Append(NewMessage(MessageRoleUser, "I like music", now))
	history.Append(NewMessage(MessageRoleAssistant, "Which kind?", now))
	history.Append(NewMessage(MessageRoleUser, "I go to school yesterday", now))
	history.Append(NewMessage(MessageRoleAssistant, "nice", now))

	msg, ok := history.LastUserMessage()
	if !ok {
		t.Fatal("Expected a user message")
	}

	if msg.Content != "I go to school yesterday" {
		t.Errorf("Expected the most recent user message, got %q", msg.Content)
	}
}

func TestSpeechStateErrors(t *testing.T) {
	var state SpeechState

	if state.HasError() {
		t.Error("New state should have no error")
	}

	state.SetError(ErrorEmptyUtterance)
	if state.ErrorCode != ErrorEmptyUtterance {
		t.Errorf("Expected code %s, got %s", ErrorEmptyUtterance, state.ErrorCode)
	}
	if state.Error != ErrorEmptyUtterance.Message() {
		t.Errorf("Expected message %q, got %q", ErrorEmptyUtterance.Message(), state.Error)
	}

	state.ClearError()
	if state.HasError() || state.Error != "" {
		t.Error("Error should be cleared")
	}
}

func TestErrorCodeMessagesAreDistinct(t *testing.T) {
	seen := make(map[string]ErrorCode)
	for code := range errorMessages {
		msg := code.Message()
		if other, ok := seen[msg]; ok {
			t.Errorf("Codes %s and %s share the message %q", code, other, msg)
		}
		seen[msg] = code
	}

	if ErrorCode("bogus").Message() == "" {
		t.Error("Unknown codes should still produce a message")
	}
}
