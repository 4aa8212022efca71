package stt

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/speakup/domain/repositories"
)

// MockRecognizer replays scripted segments, one per interval, for local
// development without a browser or cloud credentials
type MockRecognizer struct {
	logger   *zap.Logger
	segments []string
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
}

// NewMockRecognizer creates a recognizer that "hears" the given segments
func NewMockRecognizer(logger *zap.Logger, interval time.Duration, segments ...string) *MockRecognizer {
	if interval <= 0 {
		interval = 300 * time.Millisecond
	}
	return &MockRecognizer{
		logger:   logger,
		segments: segments,
		interval: interval,
	}
}

// Start implements repositories.Recognizer
func (m *MockRecognizer) Start(ctx context.Context, config repositories.RecognitionConfig, handler repositories.RecognitionHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stop != nil {
		return errors.New("recognition already started")
	}
	stop := make(chan struct{})
	m.stop = stop

	m.logger.Info("Starting mock recognition",
		zap.String("language", config.Language),
		zap.Int("segments", len(m.segments)))

	go m.run(ctx, stop, handler)
	return nil
}

func (m *MockRecognizer) run(ctx context.Context, stop chan struct{}, handler repositories.RecognitionHandler) {
	defer func() {
		m.mu.Lock()
		if m.stop == stop {
			m.stop = nil
		}
		m.mu.Unlock()
		handler.OnEnd()
	}()

	var results []repositories.RecognitionResult
	for i, segment := range m.segments {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-time.After(m.interval):
		}
		results = append(results, repositories.RecognitionResult{Transcript: segment, IsFinal: true})
		snapshot := make([]repositories.RecognitionResult, len(results))
		copy(snapshot, results)
		handler.OnResult(i, snapshot)
	}

	select {
	case <-stop:
	case <-ctx.Done():
	}
}

// Stop implements repositories.Recognizer
func (m *MockRecognizer) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	return nil
}

// WriteAudio implements repositories.AudioInput. The audio is discarded;
// the mock only ever hears its script.
func (m *MockRecognizer) WriteAudio(data []byte) error {
	return nil
}

// MockMicrophone grants or refuses permission with a fixed outcome
type MockMicrophone struct {
	Err error
}

// RequestPermission implements repositories.Microphone
func (m *MockMicrophone) RequestPermission(ctx context.Context) error {
	return m.Err
}
