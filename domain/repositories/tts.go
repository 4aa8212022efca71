package repositories

import "context"

// Voice describes a synthesis voice offered by a speech engine
type Voice struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Locale  string `json:"lang"`
	Default bool   `json:"default,omitempty"`
}

// Utterance is a piece of text to be spoken with its voice settings
type Utterance struct {
	Text     string  `json:"text"`
	Language string  `json:"lang"`
	Rate     float64 `json:"rate"`
	Pitch    float64 `json:"pitch"`
	Voice    *Voice  `json:"voice,omitempty"`
}

// SpeechSynthesizer abstracts a text-to-speech capability with at most one
// audible utterance
type SpeechSynthesizer interface {
	Voices(ctx context.Context) ([]Voice, error)
	Speak(ctx context.Context, utterance Utterance) error
	Cancel() error
}

// AudioFormat describes the encoding of synthesized audio chunks
type AudioFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

// TextToSpeech abstracts server-side synthesis services that return audio
type TextToSpeech interface {
	Voices(ctx context.Context) ([]Voice, error)
	ConvertTextToSpeech(ctx context.Context, utterance Utterance) (<-chan []byte, error)
	Format() AudioFormat
}
