package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/speakup/domain/repositories"
)

const (
	defaultAPIBaseURL   = "https://api.elevenlabs.io/v1"
	defaultVoiceID      = "21m00Tcm4TlvDq8ikWAM"   // Rachel voice
	defaultChunkSize    = 1024                     // Size of audio chunks to stream
	defaultOutputFormat = "pcm_24000"              // PCM format for real-time applications
	defaultModelID      = "eleven_multilingual_v2" // Default model ID
	defaultStability    = 0.5
	defaultClarity      = 0.75

	minSpeed = 0.7
	maxSpeed = 1.2
)

// ElevenLabsConfig holds configuration for the ElevenLabsTTS adapter.
// Only APIKey is required; zero values fall back to the defaults above.
type ElevenLabsConfig struct {
	APIKey       string
	APIBaseURL   string
	VoiceID      string
	ModelID      string
	OutputFormat string
	ChunkSize    int
	Stability    float64
	Clarity      float64
}

// ElevenLabsTTS implements TextToSpeech interface using Eleven Labs API
type ElevenLabsTTS struct {
	apiKey       string
	apiBaseURL   string
	voiceID      string
	modelID      string
	outputFormat string
	chunkSize    int
	stability    float64
	clarity      float64
	httpClient   *http.Client
	logger       *zap.Logger
}

var _ repositories.TextToSpeech = (*ElevenLabsTTS)(nil)

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

type elevenLabsRequest struct {
	Text                   string                  `json:"text"`
	ModelID                string                  `json:"model_id"`
	LanguageCode           string                  `json:"language_code,omitempty"`
	VoiceSettings          elevenLabsVoiceSettings `json:"voice_settings"`
	ApplyTextNormalization string                  `json:"apply_text_normalization,omitempty"`
}

type elevenLabsVoice struct {
	VoiceID           string            `json:"voice_id"`
	Name              string            `json:"name"`
	Labels            map[string]string `json:"labels"`
	VerifiedLanguages []struct {
		Language string `json:"language"`
		Locale   string `json:"locale"`
	} `json:"verified_languages"`
}

// ValidateElevenLabsConfig validates the ElevenLabsConfig
func ValidateElevenLabsConfig(config ElevenLabsConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("eleven labs API key is required")
	}
	if config.Stability < 0 || config.Stability > 1 {
		return fmt.Errorf("stability must be between 0 and 1, got %f", config.Stability)
	}
	if config.Clarity < 0 || config.Clarity > 1 {
		return fmt.Errorf("clarity must be between 0 and 1, got %f", config.Clarity)
	}
	if config.ChunkSize < 0 {
		return fmt.Errorf("chunk size must be positive, got %d", config.ChunkSize)
	}
	if _, err := parseOutputFormat(config.OutputFormat); config.OutputFormat != "" && err != nil {
		return err
	}
	return nil
}

// NewElevenLabsTTS creates a new Eleven Labs TTS instance
func NewElevenLabsTTS(config ElevenLabsConfig, logger *zap.Logger) (*ElevenLabsTTS, error) {
	if err := ValidateElevenLabsConfig(config); err != nil {
		return nil, err
	}

	e := &ElevenLabsTTS{
		apiKey:       config.APIKey,
		apiBaseURL:   strings.TrimRight(config.APIBaseURL, "/"),
		voiceID:      config.VoiceID,
		modelID:      config.ModelID,
		outputFormat: config.OutputFormat,
		chunkSize:    config.ChunkSize,
		stability:    config.Stability,
		clarity:      config.Clarity,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		logger:       logger,
	}
	if e.apiBaseURL == "" {
		e.apiBaseURL = defaultAPIBaseURL
	}
	if e.voiceID == "" {
		e.voiceID = defaultVoiceID
	}
	if e.modelID == "" {
		e.modelID = defaultModelID
	}
	if e.outputFormat == "" {
		e.outputFormat = defaultOutputFormat
	}
	if e.chunkSize == 0 {
		e.chunkSize = defaultChunkSize
	}
	if e.stability == 0 {
		e.stability = defaultStability
	}
	if e.clarity == 0 {
		e.clarity = defaultClarity
	}

	logger.Info("Eleven Labs TTS configured",
		zap.String("voiceID", e.voiceID),
		zap.String("modelID", e.modelID),
		zap.String("outputFormat", e.outputFormat))

	return e, nil
}

// Format reports the encoding of the chunks ConvertTextToSpeech emits
func (e *ElevenLabsTTS) Format() repositories.AudioFormat {
	format, _ := parseOutputFormat(e.outputFormat)
	return format
}

// ConvertTextToSpeech streams synthesized audio for the utterance. The
// returned channel is closed when the stream ends or ctx is cancelled.
func (e *ElevenLabsTTS) ConvertTextToSpeech(ctx context.Context, utterance repositories.Utterance) (<-chan []byte, error) {
	if strings.TrimSpace(utterance.Text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	voiceID := e.voiceID
	if utterance.Voice != nil && utterance.Voice.ID != "" {
		voiceID = utterance.Voice.ID
	}

	request := elevenLabsRequest{
		Text:                   utterance.Text,
		ModelID:                e.modelID,
		LanguageCode:           languageOf(utterance.Language),
		ApplyTextNormalization: "auto",
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       e.stability,
			SimilarityBoost: e.clarity,
			Speed:           speakingSpeed(utterance.Rate),
			UseSpeakerBoost: true,
		},
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s/stream?output_format=%s&enable_logging=false",
		e.apiBaseURL, voiceID, e.outputFormat)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	acceptHeader := "audio/mpeg"
	if strings.HasPrefix(e.outputFormat, "pcm") {
		acceptHeader = "audio/pcm"
	}
	httpReq.Header.Set("Accept", acceptHeader)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", e.apiKey)

	e.logger.Debug("Requesting Eleven Labs synthesis",
		zap.String("voiceID", voiceID),
		zap.Int("textLength", len(utterance.Text)))

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		errorBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("eleven labs API returned %d: %s", resp.StatusCode, string(errorBody))
	}

	audioChan := make(chan []byte, 10)
	go e.streamBody(ctx, resp.Body, audioChan)

	return audioChan, nil
}

func (e *ElevenLabsTTS) streamBody(ctx context.Context, body io.ReadCloser, audioChan chan<- []byte) {
	defer close(audioChan)
	defer body.Close()

	buffer := make([]byte, e.chunkSize)
	totalBytes := 0
	chunkCount := 0

	for {
		n, err := body.Read(buffer)
		if n > 0 {
			totalBytes += n
			chunkCount++

			chunk := make([]byte, n)
			copy(chunk, buffer[:n])

			select {
			case audioChan <- chunk:
			case <-ctx.Done():
				e.logger.Debug("Synthesis stream cancelled", zap.Int("totalBytes", totalBytes))
				return
			}
		}

		if err == io.EOF {
			e.logger.Debug("Finished streaming audio data",
				zap.Int("totalChunks", chunkCount),
				zap.Int("totalBytes", totalBytes))
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				e.logger.Error("Error reading response body", zap.Error(err))
			}
			return
		}
	}
}

// Voices retrieves the voices available to the account
func (e *ElevenLabsTTS) Voices(ctx context.Context) ([]repositories.Voice, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, e.apiBaseURL+"/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("eleven labs API returned %d: %s", resp.StatusCode, string(errorBody))
	}

	var voicesResponse struct {
		Voices []elevenLabsVoice `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&voicesResponse); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	voices := make([]repositories.Voice, 0, len(voicesResponse.Voices))
	for _, v := range voicesResponse.Voices {
		voices = append(voices, repositories.Voice{
			ID:      v.VoiceID,
			Name:    v.Name,
			Locale:  v.locale(),
			Default: v.VoiceID == e.voiceID,
		})
	}

	e.logger.Info("Retrieved available voices", zap.Int("count", len(voices)))
	return voices, nil
}

func (v elevenLabsVoice) locale() string {
	for _, lang := range v.VerifiedLanguages {
		if lang.Locale != "" {
			return lang.Locale
		}
		if lang.Language != "" {
			return lang.Language
		}
	}
	if lang := v.Labels["language"]; lang != "" {
		return lang
	}
	// the stock voice library is English
	return "en"
}

// parseOutputFormat reads formats such as "pcm_24000" or "mp3_44100_128"
func parseOutputFormat(format string) (repositories.AudioFormat, error) {
	parts := strings.Split(format, "_")
	if len(parts) < 2 {
		return repositories.AudioFormat{}, fmt.Errorf("unsupported output format: %q", format)
	}
	sampleRate, err := strconv.Atoi(parts[1])
	if err != nil {
		return repositories.AudioFormat{}, fmt.Errorf("unsupported output format: %q", format)
	}
	return repositories.AudioFormat{Encoding: parts[0], SampleRate: sampleRate}, nil
}

// languageOf returns the ISO 639-1 part of a BCP-47 tag
func languageOf(tag string) string {
	lang, _, _ := strings.Cut(tag, "-")
	return strings.ToLower(lang)
}

func speakingSpeed(rate float64) float64 {
	switch {
	case rate == 0:
		return 0
	case rate < minSpeed:
		return minSpeed
	case rate > maxSpeed:
		return maxSpeed
	default:
		return rate
	}
}
