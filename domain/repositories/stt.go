package repositories

import (
	"context"
	"errors"
)

var (
	// ErrPermissionDenied is returned when the learner refuses microphone access
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrMicrophoneNotFound is returned when no capture device is available
	ErrMicrophoneNotFound = errors.New("microphone not found")
	// ErrUnsupported is returned when the environment lacks a capability
	ErrUnsupported = errors.New("capability not supported")
)

// Microphone grants access to the capture device. It is asked explicitly
// before recognition starts.
type Microphone interface {
	RequestPermission(ctx context.Context) error
}

// RecognitionConfig represents configuration for continuous speech recognition
type RecognitionConfig struct {
	Continuous     bool   `json:"continuous"`
	InterimResults bool   `json:"interim_results"`
	Language       string `json:"language"`
}

// RecognitionResult is one recognized segment. Non-final segments may still
// be revised by later callbacks.
type RecognitionResult struct {
	Transcript string `json:"transcript"`
	IsFinal    bool   `json:"is_final"`
}

// RecognitionErrorCode is the categorical failure reported by a recognizer
type RecognitionErrorCode string

const (
	RecognitionErrorNotAllowed        RecognitionErrorCode = "not-allowed"
	RecognitionErrorServiceNotAllowed RecognitionErrorCode = "service-not-allowed"
	RecognitionErrorNoSpeech          RecognitionErrorCode = "no-speech"
	RecognitionErrorNetwork           RecognitionErrorCode = "network"
	RecognitionErrorAudioCapture      RecognitionErrorCode = "audio-capture"
	RecognitionErrorAborted           RecognitionErrorCode = "aborted"
	RecognitionErrorUnsupported       RecognitionErrorCode = "unsupported"
)

// RecognitionHandler receives recognizer events. OnResult carries the index
// of the first changed segment and the cumulative segment list since Start.
type RecognitionHandler struct {
	OnResult func(resultIndex int, results []RecognitionResult)
	OnError  func(code RecognitionErrorCode)
	OnEnd    func()
}

// Recognizer abstracts a continuous, incremental speech-to-text capability
type Recognizer interface {
	// Start begins a recognition run; events are delivered to handler until OnEnd
	Start(ctx context.Context, config RecognitionConfig, handler RecognitionHandler) error
	// Stop asks the recognizer to finish; OnEnd fires once the last result is delivered
	Stop() error
}

// AudioInput accepts raw capture audio for server-side recognizers
type AudioInput interface {
	WriteAudio(data []byte) error
}
