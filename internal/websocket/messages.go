package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/satriahrh/speakup/domain/repositories"
	"github.com/satriahrh/speakup/usecase"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Server to client
const (
	MessageTypeState             MessageType = "state"
	MessageTypePermissionRequest MessageType = "permission_request"
	MessageTypeRecognitionStart  MessageType = "recognition_start"
	MessageTypeRecognitionStop   MessageType = "recognition_stop"
	MessageTypeSpeak             MessageType = "speak"
	MessageTypeSpeakCancel       MessageType = "speak_cancel"
	MessageTypeSpeakingStart     MessageType = "speaking_start"
	MessageTypeSpeakingEnd       MessageType = "speaking_end"
	MessageTypeSpeakingCancel    MessageType = "speaking_cancel"
	MessageTypeError             MessageType = "error"
	MessageTypePong              MessageType = "pong"
)

// Client to server
const (
	MessageTypeCapabilities      MessageType = "capabilities"
	MessageTypePermissionResult  MessageType = "permission_result"
	MessageTypeRecognitionResult MessageType = "recognition_result"
	MessageTypeRecognitionError  MessageType = "recognition_error"
	MessageTypeRecognitionEnd    MessageType = "recognition_end"
	MessageTypeStartTalking      MessageType = "start_talking"
	MessageTypeStopAndSend       MessageType = "stop_and_send"
	MessageTypeRequestReport     MessageType = "request_report"
	MessageTypeDismissEvaluation MessageType = "dismiss_evaluation"
	MessageTypePing              MessageType = "ping"
)

// Recognition modes announced in recognition_start
const (
	// RecognitionModeBrowser asks the client to run its native recognizer
	RecognitionModeBrowser = "browser"
	// RecognitionModeAudio asks the client to stream raw microphone audio as binary frames
	RecognitionModeAudio = "audio"
)

// Permission failure reasons reported by the client
const (
	PermissionReasonNotAllowed  = "not-allowed"
	PermissionReasonNotFound    = "not-found"
	PermissionReasonUnsupported = "unsupported"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id,omitempty"`
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{Type: t, Timestamp: time.Now().Format(time.RFC3339)}
}

// StateMessage pushes a session snapshot to the presentation layer
type StateMessage struct {
	BaseMessage
	State usecase.Snapshot `json:"state"`
}

// CapabilitiesMessage advertises what the client can do natively
type CapabilitiesMessage struct {
	BaseMessage
	Recognition bool                 `json:"recognition"`
	Synthesis   bool                 `json:"synthesis"`
	Voices      []repositories.Voice `json:"voices,omitempty"`
}

// PermissionRequestMessage asks the client for microphone access
type PermissionRequestMessage struct {
	BaseMessage
	RequestID string `json:"request_id"`
}

// PermissionResultMessage answers a permission request
type PermissionResultMessage struct {
	BaseMessage
	RequestID string `json:"request_id"`
	Granted   bool   `json:"granted"`
	Reason    string `json:"reason,omitempty"`
}

// RecognitionStartMessage starts a capture run on the client
type RecognitionStartMessage struct {
	BaseMessage
	RunID  string                         `json:"run_id"`
	Mode   string                         `json:"mode"`
	Config repositories.RecognitionConfig `json:"config"`
}

// RecognitionStopMessage asks the client to finish the run
type RecognitionStopMessage struct {
	BaseMessage
	RunID string `json:"run_id"`
}

// RecognitionResultMessage carries the cumulative results of a run
type RecognitionResultMessage struct {
	BaseMessage
	RunID       string                           `json:"run_id"`
	ResultIndex int                              `json:"result_index"`
	Results     []repositories.RecognitionResult `json:"results"`
}

// RecognitionErrorMessage reports a recognizer failure
type RecognitionErrorMessage struct {
	BaseMessage
	RunID string `json:"run_id"`
	Error string `json:"error"`
}

// RecognitionEndMessage reports that the run is over
type RecognitionEndMessage struct {
	BaseMessage
	RunID string `json:"run_id"`
}

// SpeakMessage asks the client to speak with its native synthesizer
type SpeakMessage struct {
	BaseMessage
	Utterance repositories.Utterance `json:"utterance"`
}

// SpeakingStartMessage precedes binary audio frames of one utterance
type SpeakingStartMessage struct {
	BaseMessage
	UtteranceID string                   `json:"utterance_id"`
	Text        string                   `json:"text"`
	Format      repositories.AudioFormat `json:"format"`
}

// SpeakingEndMessage closes an utterance's audio stream
type SpeakingEndMessage struct {
	BaseMessage
	UtteranceID string `json:"utterance_id"`
}

// ActionMessage carries a learner action with no payload
type ActionMessage struct {
	BaseMessage
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage parses an incoming text frame into its typed message
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeCapabilities:
		var msg CapabilitiesMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid capabilities message: %w", err)
		}
		return &msg, nil

	case MessageTypePermissionResult:
		var msg PermissionResultMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid permission result message: %w", err)
		}
		if msg.RequestID == "" {
			return nil, fmt.Errorf("request_id is required")
		}
		return &msg, nil

	case MessageTypeRecognitionResult:
		var msg RecognitionResultMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid recognition result message: %w", err)
		}
		if err := v.validateRecognitionResult(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypeRecognitionError:
		var msg RecognitionErrorMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid recognition error message: %w", err)
		}
		if msg.RunID == "" || msg.Error == "" {
			return nil, fmt.Errorf("run_id and error are required")
		}
		return &msg, nil

	case MessageTypeRecognitionEnd:
		var msg RecognitionEndMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid recognition end message: %w", err)
		}
		if msg.RunID == "" {
			return nil, fmt.Errorf("run_id is required")
		}
		return &msg, nil

	case MessageTypeStartTalking, MessageTypeStopAndSend, MessageTypeRequestReport, MessageTypeDismissEvaluation:
		return &ActionMessage{BaseMessage: base}, nil

	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

func (v *MessageValidator) validateRecognitionResult(msg *RecognitionResultMessage) error {
	if msg.RunID == "" {
		return fmt.Errorf("run_id is required")
	}
	if msg.ResultIndex < 0 {
		return fmt.Errorf("result_index must not be negative")
	}
	if msg.ResultIndex > len(msg.Results) {
		return fmt.Errorf("result_index %d out of range for %d results", msg.ResultIndex, len(msg.Results))
	}
	return nil
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: newBase(MessageTypeError),
		Code:        code,
		Message:     message,
		Details:     details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: newBase(MessageTypePong),
		Data:        data,
	}
}

// CreateStateMessage wraps a session snapshot
func CreateStateMessage(snapshot usecase.Snapshot) *StateMessage {
	return &StateMessage{
		BaseMessage: newBase(MessageTypeState),
		State:       snapshot,
	}
}
