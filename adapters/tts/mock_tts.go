package tts

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/speakup/domain/repositories"
)

// MockTextToSpeech is a placeholder implementation for text-to-speech
type MockTextToSpeech struct {
	logger *zap.Logger
}

var _ repositories.TextToSpeech = (*MockTextToSpeech)(nil)

// NewMockTextToSpeech creates a new mock text-to-speech service
func NewMockTextToSpeech(logger *zap.Logger) *MockTextToSpeech {
	return &MockTextToSpeech{logger: logger}
}

func (t *MockTextToSpeech) Format() repositories.AudioFormat {
	return repositories.AudioFormat{Encoding: "pcm", SampleRate: 16000}
}

func (t *MockTextToSpeech) Voices(ctx context.Context) ([]repositories.Voice, error) {
	return []repositories.Voice{
		{ID: "mock-en-us", Name: "Mock US English", Locale: "en-US", Default: true},
		{ID: "mock-en-gb", Name: "Mock British English", Locale: "en-GB"},
	}, nil
}

// ConvertTextToSpeech emits a byte pattern sized after the text
func (t *MockTextToSpeech) ConvertTextToSpeech(ctx context.Context, utterance repositories.Utterance) (<-chan []byte, error) {
	if strings.TrimSpace(utterance.Text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	t.logger.Info("Processing text-to-speech",
		zap.Int("textLength", len(utterance.Text)),
		zap.String("lang", utterance.Language))

	audio := make([]byte, len(utterance.Text)*100)
	for i := range audio {
		audio[i] = byte(i % 256)
	}

	audioChan := make(chan []byte, 4)
	go func() {
		defer close(audioChan)
		for start := 0; start < len(audio); start += defaultChunkSize {
			end := min(start+defaultChunkSize, len(audio))
			select {
			case audioChan <- audio[start:end]:
			case <-ctx.Done():
				return
			}
		}
	}()

	return audioChan, nil
}
