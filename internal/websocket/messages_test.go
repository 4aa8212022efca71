package websocket

import (
	"encoding/json"
	"testing"

	"github.com/satriahrh/speakup/domain/repositories"
	"github.com/satriahrh/speakup/usecase"
)

func TestMessageValidator_ValidateMessage(t *testing.T) {
	validator := NewMessageValidator()

	tests := []struct {
		name     string
		message  string
		wantType interface{}
		wantErr  bool
	}{
		{
			name:     "capabilities with voices",
			message:  `{"type":"capabilities","recognition":true,"synthesis":true,"voices":[{"name":"Google US English","lang":"en-US"}]}`,
			wantType: &CapabilitiesMessage{},
		},
		{
			name:     "permission granted",
			message:  `{"type":"permission_result","request_id":"r1","granted":true}`,
			wantType: &PermissionResultMessage{},
		},
		{
			name:    "permission without request id",
			message: `{"type":"permission_result","granted":true}`,
			wantErr: true,
		},
		{
			name:     "recognition result",
			message:  `{"type":"recognition_result","run_id":"run-1","result_index":1,"results":[{"transcript":"hello","is_final":true},{"transcript":" there"}]}`,
			wantType: &RecognitionResultMessage{},
		},
		{
			name:    "recognition result index out of range",
			message: `{"type":"recognition_result","run_id":"run-1","result_index":3,"results":[]}`,
			wantErr: true,
		},
		{
			name:    "recognition result without run",
			message: `{"type":"recognition_result","result_index":0,"results":[]}`,
			wantErr: true,
		},
		{
			name:     "recognition error",
			message:  `{"type":"recognition_error","run_id":"run-1","error":"no-speech"}`,
			wantType: &RecognitionErrorMessage{},
		},
		{
			name:    "recognition error without code",
			message: `{"type":"recognition_error","run_id":"run-1"}`,
			wantErr: true,
		},
		{
			name:     "recognition end",
			message:  `{"type":"recognition_end","run_id":"run-1"}`,
			wantType: &RecognitionEndMessage{},
		},
		{
			name:     "start talking action",
			message:  `{"type":"start_talking"}`,
			wantType: &ActionMessage{},
		},
		{
			name:     "dismiss evaluation action",
			message:  `{"type":"dismiss_evaluation"}`,
			wantType: &ActionMessage{},
		},
		{
			name:     "ping",
			message:  `{"type":"ping","data":"hello"}`,
			wantType: &PingMessage{},
		},
		{
			name:    "unknown type",
			message: `{"type":"audio_chunk"}`,
			wantErr: true,
		},
		{
			name:    "invalid json",
			message: `{"type":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validator.ValidateMessage([]byte(tt.message))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if gotType, wantType := typeName(got), typeName(tt.wantType); gotType != wantType {
				t.Errorf("expected %s, got %s", wantType, gotType)
			}
		})
	}
}

func typeName(v interface{}) string {
	switch v.(type) {
	case *CapabilitiesMessage:
		return "capabilities"
	case *PermissionResultMessage:
		return "permission_result"
	case *RecognitionResultMessage:
		return "recognition_result"
	case *RecognitionErrorMessage:
		return "recognition_error"
	case *RecognitionEndMessage:
		return "recognition_end"
	case *ActionMessage:
		return "action"
	case *PingMessage:
		return "ping"
	default:
		return "unknown"
	}
}

func TestMessageValidator_ActionKeepsType(t *testing.T) {
	got, err := NewMessageValidator().ValidateMessage([]byte(`{"type":"request_report"}`))
	if err != nil {
		t.Fatalf("ValidateMessage failed: %v", err)
	}
	action, ok := got.(*ActionMessage)
	if !ok || action.Type != MessageTypeRequestReport {
		t.Errorf("expected request_report action, got %+v", got)
	}
}

func TestCapabilitiesMessage_VoiceLocaleField(t *testing.T) {
	got, err := NewMessageValidator().ValidateMessage([]byte(`{"type":"capabilities","synthesis":true,"voices":[{"name":"Daniel","lang":"en-GB"}]}`))
	if err != nil {
		t.Fatalf("ValidateMessage failed: %v", err)
	}
	caps := got.(*CapabilitiesMessage)
	want := []repositories.Voice{{Name: "Daniel", Locale: "en-GB"}}
	if len(caps.Voices) != 1 || caps.Voices[0] != want[0] {
		t.Errorf("expected %+v, got %+v", want, caps.Voices)
	}
}

func TestCreateStateMessage(t *testing.T) {
	msg := CreateStateMessage(usecase.Snapshot{SessionID: "s1", Phase: usecase.PhaseListening})

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Failed to marshal state: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal state: %v", err)
	}
	if decoded["type"] != "state" {
		t.Errorf("expected type state, got %v", decoded["type"])
	}
	state, ok := decoded["state"].(map[string]interface{})
	if !ok || state["phase"] != "listening" || state["session_id"] != "s1" {
		t.Errorf("unexpected state payload %v", decoded["state"])
	}
	if decoded["timestamp"] == "" {
		t.Error("expected timestamp to be set")
	}
}

func TestCreateErrorMessage(t *testing.T) {
	msg := CreateErrorMessage("action_rejected", "action not allowed in current state", "start_talking")

	if msg.Type != MessageTypeError {
		t.Errorf("Expected type %s, got %s", MessageTypeError, msg.Type)
	}
	if msg.Code != "action_rejected" || msg.Details != "start_talking" {
		t.Errorf("unexpected error message %+v", msg)
	}
}

func TestCreatePongMessage(t *testing.T) {
	msg := CreatePongMessage("test-data")

	if msg.Type != MessageTypePong {
		t.Errorf("Expected type %s, got %s", MessageTypePong, msg.Type)
	}
	if msg.Data != "test-data" {
		t.Errorf("Expected data 'test-data', got %s", msg.Data)
	}
}
