package usecase

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/speakup/domain/repositories"
)

func TestSelectVoice(t *testing.T) {
	voices := []repositories.Voice{
		{Name: "Microsoft Zira", Locale: "en-US"},
		{Name: "Google UK English Female", Locale: "en-GB"},
		{Name: "Google US English", Locale: "en-US"},
		{Name: "Google Deutsch", Locale: "de-DE"},
	}

	tests := []struct {
		name      string
		voices    []repositories.Voice
		locale    string
		preferred string
		want      string
	}{
		{"preferred exact locale", voices, "en-US", "Google", "Google US English"},
		{"locale match without preferred", voices, "en-US", "Samantha", "Microsoft Zira"},
		{"exact locale beats preferred language match", voices[:2], "en-US", "Google", "Microsoft Zira"},
		{"preferred language match", voices[1:2], "en-US", "Google", "Google UK English Female"},
		{"preferred among language matches", []repositories.Voice{{Name: "Daniel", Locale: "en-GB"}, {Name: "Google UK English Male", Locale: "en-GB"}}, "en-US", "Google", "Google UK English Male"},
		{"language prefix match", []repositories.Voice{{Name: "Daniel", Locale: "en_GB"}}, "en-US", "Google", "Daniel"},
		{"no match", voices[3:], "en-US", "Google", ""},
		{"empty list", nil, "en-US", "Google", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectVoice(tt.voices, tt.locale, tt.preferred)
			if tt.want == "" {
				if got != nil {
					t.Errorf("expected platform default, got %+v", got)
				}
				return
			}
			if got == nil || got.Name != tt.want {
				t.Errorf("expected %s, got %+v", tt.want, got)
			}
		})
	}
}

func TestSpeechOutput_SpeakCancelsAndCachesVoices(t *testing.T) {
	synthesizer := &fakeSynthesizer{voices: []repositories.Voice{{Name: "Google US English", Locale: "en-US"}}}
	output := NewSpeechOutput(synthesizer, OutputConfig{Rate: 0.9}, zaptest.NewLogger(t))

	output.Speak(context.Background(), "First reply.")
	waitForUtterances(t, synthesizer, 1)
	output.Speak(context.Background(), "Second reply.")
	waitForUtterances(t, synthesizer, 2)

	synthesizer.mu.Lock()
	defer synthesizer.mu.Unlock()
	if synthesizer.cancels != 2 {
		t.Errorf("expected every utterance to cancel the previous one, got %d cancels", synthesizer.cancels)
	}
	if synthesizer.voiceCalls != 1 {
		t.Errorf("expected voices to be fetched once, got %d", synthesizer.voiceCalls)
	}
	last := synthesizer.spoken[1]
	if last.Text != "Second reply." || last.Rate != 0.9 || last.Pitch != 1.0 || last.Language != "en-US" {
		t.Errorf("unexpected utterance %+v", last)
	}
}

func TestSpeechOutput_IgnoresBlankTextAndMissingSynthesizer(t *testing.T) {
	synthesizer := &fakeSynthesizer{}
	output := NewSpeechOutput(synthesizer, OutputConfig{}, zaptest.NewLogger(t))
	output.Speak(context.Background(), "  ")

	time.Sleep(20 * time.Millisecond)
	if len(synthesizer.utterances()) != 0 {
		t.Error("blank text must not be spoken")
	}

	// no synthesizer: nothing to do, nothing to panic on
	NewSpeechOutput(nil, OutputConfig{}, zaptest.NewLogger(t)).Speak(context.Background(), "Hello")
}

func waitForUtterances(t *testing.T, synthesizer *fakeSynthesizer, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(synthesizer.utterances()) < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d utterances, got %d", n, len(synthesizer.utterances()))
		}
		time.Sleep(5 * time.Millisecond)
	}
}
