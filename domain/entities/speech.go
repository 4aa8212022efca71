package entities

// ErrorCode identifies a user-visible session error
type ErrorCode string

const (
	ErrorPermissionDenied   ErrorCode = "permission_denied"
	ErrorDeviceNotFound     ErrorCode = "device_not_found"
	ErrorNoSpeech           ErrorCode = "no_speech"
	ErrorNetwork            ErrorCode = "network"
	ErrorUnsupported        ErrorCode = "unsupported"
	ErrorEmptyUtterance     ErrorCode = "empty_utterance"
	ErrorConversationFailed ErrorCode = "conversation_failed"
	ErrorEvaluationFailed   ErrorCode = "evaluation_failed"
	ErrorNothingToEvaluate  ErrorCode = "nothing_to_evaluate"
)

var errorMessages = map[ErrorCode]string{
	ErrorPermissionDenied:   "Microphone access was denied. Please allow microphone access in your browser settings and try again.",
	ErrorDeviceNotFound:     "No microphone was found. Please connect a microphone and try again.",
	ErrorNoSpeech:           "No speech was detected. Please try speaking again.",
	ErrorNetwork:            "A network error interrupted speech recognition. Please check your connection.",
	ErrorUnsupported:        "Speech recognition is not supported here. Please use a recent version of Chrome or Edge.",
	ErrorEmptyUtterance:     "I didn't hear anything. Please try again.",
	ErrorConversationFailed: "Sorry, I couldn't reach the conversation service. Please check your connection and try again.",
	ErrorEvaluationFailed:   "Sorry, the performance report could not be generated. Please try again.",
	ErrorNothingToEvaluate:  "Please say something first so there is something to evaluate.",
}

// Message returns the user-facing text for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Something went wrong. Please try again."
}

// SpeechState is the live capture/processing state shown to the learner.
// IsListening and IsProcessing are never both true.
type SpeechState struct {
	IsListening  bool      `json:"is_listening"`
	Transcript   string    `json:"transcript"`
	IsProcessing bool      `json:"is_processing"`
	Error        string    `json:"error,omitempty"`
	ErrorCode    ErrorCode `json:"error_code,omitempty"`
}

// SetError records the error code together with its user-facing message
func (s *SpeechState) SetError(code ErrorCode) {
	s.ErrorCode = code
	s.Error = code.Message()
}

// ClearError removes any displayed error
func (s *SpeechState) ClearError() {
	s.ErrorCode = ""
	s.Error = ""
}

// HasError reports whether an error is currently displayed
func (s SpeechState) HasError() bool {
	return s.ErrorCode != ""
}
