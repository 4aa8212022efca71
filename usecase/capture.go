package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/speakup/domain/entities"
	"github.com/satriahrh/speakup/domain/repositories"
)

const (
	DefaultLanguage    = "en-US"
	defaultStopTimeout = 3 * time.Second
)

// CaptureError carries the user-facing error category of a capture failure
type CaptureError struct {
	Code entities.ErrorCode
	Err  error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("speech capture failed (%s): %v", e.Code, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// CaptureListener receives transcript updates and terminal events of one run
type CaptureListener struct {
	OnTranscript func(transcript string)
	OnError      func(code entities.ErrorCode)
	OnEnd        func()
}

// CaptureConfig configures the recognizer run
type CaptureConfig struct {
	Language    string
	StopTimeout time.Duration
}

// SpeechCapture turns recognizer callbacks into a running transcript
type SpeechCapture struct {
	microphone repositories.Microphone
	recognizer repositories.Recognizer
	config     CaptureConfig
	logger     *zap.Logger

	mu         sync.Mutex
	run        int
	active     bool
	closed     bool
	transcript string
	ended      chan struct{}
}

// NewSpeechCapture creates a capture adapter. A nil recognizer means the
// environment cannot recognize speech.
func NewSpeechCapture(microphone repositories.Microphone, recognizer repositories.Recognizer, config CaptureConfig, logger *zap.Logger) *SpeechCapture {
	if config.Language == "" {
		config.Language = DefaultLanguage
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = defaultStopTimeout
	}
	return &SpeechCapture{
		microphone: microphone,
		recognizer: recognizer,
		config:     config,
		logger:     logger,
	}
}

// RequestPermission asks for microphone access before any recognition starts
func (c *SpeechCapture) RequestPermission(ctx context.Context) error {
	if c.microphone == nil || c.recognizer == nil {
		return &CaptureError{Code: entities.ErrorUnsupported, Err: repositories.ErrUnsupported}
	}

	err := c.microphone.RequestPermission(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrPermissionDenied):
		return &CaptureError{Code: entities.ErrorPermissionDenied, Err: err}
	case errors.Is(err, repositories.ErrUnsupported):
		return &CaptureError{Code: entities.ErrorUnsupported, Err: err}
	default:
		return &CaptureError{Code: entities.ErrorDeviceNotFound, Err: err}
	}
}

// Start begins a continuous run with interim results. Callbacks of any
// earlier run are ignored from here on.
func (c *SpeechCapture) Start(ctx context.Context, listener CaptureListener) error {
	if c.recognizer == nil {
		return &CaptureError{Code: entities.ErrorUnsupported, Err: repositories.ErrUnsupported}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return &CaptureError{Code: entities.ErrorUnsupported, Err: ErrSessionClosed}
	}
	c.run++
	run := c.run
	c.active = true
	c.transcript = ""
	ended := make(chan struct{})
	c.ended = ended
	c.mu.Unlock()

	var endOnce sync.Once
	handler := repositories.RecognitionHandler{
		OnResult: func(resultIndex int, results []repositories.RecognitionResult) {
			transcript := joinSegments(results)

			c.mu.Lock()
			if c.run != run {
				c.mu.Unlock()
				return
			}
			c.transcript = transcript
			c.mu.Unlock()

			if listener.OnTranscript != nil {
				listener.OnTranscript(transcript)
			}
		},
		OnError: func(code repositories.RecognitionErrorCode) {
			if code == repositories.RecognitionErrorAborted || !c.isCurrent(run) {
				return
			}
			c.logger.Warn("Speech recognition error", zap.String("code", string(code)))
			if listener.OnError != nil {
				listener.OnError(recognitionErrorCode(code))
			}
		},
		OnEnd: func() {
			endOnce.Do(func() {
				c.mu.Lock()
				current := c.run == run
				if current {
					c.active = false
				}
				c.mu.Unlock()

				close(ended)
				if current && listener.OnEnd != nil {
					listener.OnEnd()
				}
			})
		},
	}

	config := repositories.RecognitionConfig{
		Continuous:     true,
		InterimResults: true,
		Language:       c.config.Language,
	}
	if err := c.recognizer.Start(ctx, config, handler); err != nil {
		c.mu.Lock()
		if c.run == run {
			c.active = false
		}
		c.mu.Unlock()
		return &CaptureError{Code: startErrorCode(err), Err: err}
	}

	// an Abort or Close that raced the start could not stop this run yet
	if !c.isCurrent(run) {
		if err := c.recognizer.Stop(); err != nil {
			c.logger.Warn("Failed to stop superseded recognizer run", zap.Error(err))
		}
		return &CaptureError{Code: entities.ErrorUnsupported, Err: ErrSessionClosed}
	}

	c.logger.Debug("Speech capture started", zap.Int("run", run))
	return nil
}

// Stop ends the current run and returns its final transcript. It waits for
// the recognizer to deliver its last result, at most StopTimeout.
func (c *SpeechCapture) Stop(ctx context.Context) (string, error) {
	c.mu.Lock()
	active := c.active
	ended := c.ended
	c.mu.Unlock()

	if active {
		if err := c.recognizer.Stop(); err != nil {
			c.logger.Warn("Failed to stop recognizer", zap.Error(err))
		}

		timer := time.NewTimer(c.config.StopTimeout)
		defer timer.Stop()

		select {
		case <-ended:
		case <-timer.C:
			c.logger.Warn("Timed out waiting for recognizer to end",
				zap.Duration("timeout", c.config.StopTimeout))
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.run++
	c.active = false
	return c.transcript, nil
}

// Abort stops the recognizer and discards every pending callback
func (c *SpeechCapture) Abort() {
	c.mu.Lock()
	active := c.active
	c.run++
	c.active = false
	c.transcript = ""
	c.mu.Unlock()

	if active {
		if err := c.recognizer.Stop(); err != nil {
			c.logger.Warn("Failed to abort recognizer", zap.Error(err))
		}
	}
}

// Close aborts the current run and refuses any later Start
func (c *SpeechCapture) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.Abort()
}

func (c *SpeechCapture) isCurrent(run int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run == run
}

// joinSegments concatenates every recognized segment of the run
func joinSegments(results []repositories.RecognitionResult) string {
	parts := make([]string, 0, len(results))
	for _, result := range results {
		if text := strings.TrimSpace(result.Transcript); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

func recognitionErrorCode(code repositories.RecognitionErrorCode) entities.ErrorCode {
	switch code {
	case repositories.RecognitionErrorNotAllowed, repositories.RecognitionErrorServiceNotAllowed:
		return entities.ErrorPermissionDenied
	case repositories.RecognitionErrorNoSpeech:
		return entities.ErrorNoSpeech
	case repositories.RecognitionErrorAudioCapture:
		return entities.ErrorDeviceNotFound
	case repositories.RecognitionErrorUnsupported:
		return entities.ErrorUnsupported
	default:
		return entities.ErrorNetwork
	}
}

func startErrorCode(err error) entities.ErrorCode {
	switch {
	case errors.Is(err, repositories.ErrUnsupported):
		return entities.ErrorUnsupported
	case errors.Is(err, repositories.ErrPermissionDenied):
		return entities.ErrorPermissionDenied
	case errors.Is(err, repositories.ErrMicrophoneNotFound):
		return entities.ErrorDeviceNotFound
	default:
		return entities.ErrorNetwork
	}
}

// ErrorCodeOf extracts the capture error category, if any
func ErrorCodeOf(err error) (entities.ErrorCode, bool) {
	var captureErr *CaptureError
	if errors.As(err, &captureErr) {
		return captureErr.Code, true
	}
	return "", false
}
