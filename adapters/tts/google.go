package tts

import (
	"context"
	"fmt"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"go.uber.org/zap"

	"github.com/satriahrh/speakup/domain/repositories"
)

const (
	googleSampleRate = 24000
	maxPitchSemitone = 20.0
)

type synthesisClient interface {
	ListVoices(ctx context.Context, req *texttospeechpb.ListVoicesRequest) (*texttospeechpb.ListVoicesResponse, error)
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error)
	Close() error
}

type cloudClient struct {
	client *texttospeech.Client
}

func (c cloudClient) ListVoices(ctx context.Context, req *texttospeechpb.ListVoicesRequest) (*texttospeechpb.ListVoicesResponse, error) {
	return c.client.ListVoices(ctx, req)
}

func (c cloudClient) SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error) {
	return c.client.SynthesizeSpeech(ctx, req)
}

func (c cloudClient) Close() error {
	return c.client.Close()
}

// GoogleTTS implements TextToSpeech with Google Cloud Text-to-Speech.
// Synthesis is not streamed by the API; the MP3 payload is chunked locally.
type GoogleTTS struct {
	client    synthesisClient
	chunkSize int
	logger    *zap.Logger
}

var _ repositories.TextToSpeech = (*GoogleTTS)(nil)

// NewGoogleTTS creates a client using application default credentials
func NewGoogleTTS(ctx context.Context, logger *zap.Logger) (*GoogleTTS, error) {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create text-to-speech client: %w", err)
	}
	return newGoogleTTS(cloudClient{client: client}, logger), nil
}

func newGoogleTTS(client synthesisClient, logger *zap.Logger) *GoogleTTS {
	return &GoogleTTS{client: client, chunkSize: defaultChunkSize * 4, logger: logger}
}

// Close releases the underlying gRPC connection
func (g *GoogleTTS) Close() error {
	return g.client.Close()
}

func (g *GoogleTTS) Format() repositories.AudioFormat {
	return repositories.AudioFormat{Encoding: "mp3", SampleRate: googleSampleRate}
}

func (g *GoogleTTS) Voices(ctx context.Context) ([]repositories.Voice, error) {
	resp, err := g.client.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list voices: %w", err)
	}

	var voices []repositories.Voice
	for _, v := range resp.Voices {
		for _, code := range v.LanguageCodes {
			voices = append(voices, repositories.Voice{
				ID:     v.Name,
				Name:   v.Name,
				Locale: code,
			})
		}
	}

	g.logger.Info("Retrieved available voices", zap.Int("count", len(voices)))
	return voices, nil
}

func (g *GoogleTTS) ConvertTextToSpeech(ctx context.Context, utterance repositories.Utterance) (<-chan []byte, error) {
	if strings.TrimSpace(utterance.Text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	voice := &texttospeechpb.VoiceSelectionParams{LanguageCode: utterance.Language}
	if utterance.Voice != nil {
		voice.Name = utterance.Voice.Name
		if utterance.Voice.Locale != "" {
			voice.LanguageCode = utterance.Voice.Locale
		}
	}

	resp, err := g.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: utterance.Text},
		},
		Voice: voice,
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding:   texttospeechpb.AudioEncoding_MP3,
			SampleRateHertz: googleSampleRate,
			SpeakingRate:    utterance.Rate,
			Pitch:           pitchSemitones(utterance.Pitch),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize speech: %w", err)
	}

	g.logger.Debug("Synthesized speech",
		zap.String("voice", voice.Name),
		zap.Int("bytes", len(resp.AudioContent)))

	audioChan := make(chan []byte, 10)
	go func() {
		defer close(audioChan)
		audio := resp.AudioContent
		for start := 0; start < len(audio); start += g.chunkSize {
			end := min(start+g.chunkSize, len(audio))
			select {
			case audioChan <- audio[start:end]:
			case <-ctx.Done():
				return
			}
		}
	}()

	return audioChan, nil
}

// pitchSemitones maps a relative pitch (1.0 = natural, 0..2) onto the
// API's -20..20 semitone range
func pitchSemitones(pitch float64) float64 {
	if pitch == 0 {
		return 0
	}
	semitones := (pitch - 1) * maxPitchSemitone
	return max(-maxPitchSemitone, min(maxPitchSemitone, semitones))
}
