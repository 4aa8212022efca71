package tts

import (
	"context"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/speakup/domain/repositories"
)

func TestMockTextToSpeech(t *testing.T) {
	mock := NewMockTextToSpeech(zaptest.NewLogger(t))

	audioChan, err := mock.ConvertTextToSpeech(context.Background(), repositories.Utterance{Text: "Hello there"})
	if err != nil {
		t.Fatalf("ConvertTextToSpeech failed: %v", err)
	}

	total := 0
	for chunk := range audioChan {
		total += len(chunk)
	}
	if total != len("Hello there")*100 {
		t.Errorf("unexpected audio size %d", total)
	}

	voices, _ := mock.Voices(context.Background())
	if len(voices) == 0 || voices[0].Locale != "en-US" {
		t.Errorf("unexpected voices %+v", voices)
	}
}
