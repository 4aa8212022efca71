// Command voices lists the voices of the configured server synthesizer, shows
// which one the reply voice policy picks, and saves a spoken sample.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/speakup/adapters/tts"
	"github.com/satriahrh/speakup/domain/repositories"
	"github.com/satriahrh/speakup/internal/config"
	"github.com/satriahrh/speakup/usecase"
)

const sampleText = "Nice to meet you! Tell me, what did you do last weekend?"

func main() {
	provider := flag.String("provider", "", "synthesizer provider (elevenlabs, google, mock); defaults to the configured one")
	output := flag.String("out", "voice_sample", "output file name without extension")
	text := flag.String("text", sampleText, "text to synthesize")
	limit := flag.Int("limit", 10, "number of voices to list")
	autoplay := flag.Bool("play", os.Getenv("NO_AUTOPLAY") != "true", "play the sample after saving it")
	flag.Parse()

	// Create logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load("")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if *provider != "" {
		cfg.Speech.Synthesizer.Provider = *provider
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	synth, err := newSynthesizer(ctx, cfg.Speech.Synthesizer, logger)
	if err != nil {
		logger.Fatal("Failed to create TTS service", zap.Error(err))
	}

	voices, err := synth.Voices(ctx)
	if err != nil {
		logger.Fatal("Failed to get available voices", zap.Error(err))
	}

	fmt.Printf("\n📢 Available voices (%d):\n", len(voices))
	for i, voice := range voices {
		if i >= *limit {
			fmt.Printf("... and %d more voices\n", len(voices)-*limit)
			break
		}
		fmt.Printf("  - %s [%s] (ID: %s)\n", voice.Name, voice.Locale, voice.ID)
	}

	voice := usecase.SelectVoice(voices, cfg.Speech.Language, cfg.Speech.Synthesizer.PreferredVoice)
	if voice == nil {
		fmt.Printf("\nNo voice matches %s, the engine default will be used\n", cfg.Speech.Language)
	} else {
		fmt.Printf("\nSelected voice for %s (preferring %q): %s\n", cfg.Speech.Language, cfg.Speech.Synthesizer.PreferredVoice, voice.Name)
	}

	audioChan, err := synth.ConvertTextToSpeech(ctx, repositories.Utterance{
		Text:     *text,
		Language: cfg.Speech.Language,
		Rate:     cfg.Speech.Synthesizer.Rate,
		Pitch:    cfg.Speech.Synthesizer.Pitch,
		Voice:    voice,
	})
	if err != nil {
		logger.Fatal("Failed to convert text to speech", zap.Error(err))
	}

	format := synth.Format()
	outputFile := *output + "." + format.Encoding
	file, err := os.Create(outputFile)
	if err != nil {
		logger.Fatal("Failed to create output file", zap.Error(err))
	}

	totalBytes, chunkCount := 0, 0
	for audioChunk := range audioChan {
		n, err := file.Write(audioChunk)
		if err != nil {
			logger.Error("Failed to write audio chunk", zap.Error(err))
			break
		}
		totalBytes += n
		chunkCount++
	}
	file.Close()

	fmt.Printf("✅ Audio saved to %s (%d bytes in %d chunks, %s @ %d Hz)\n",
		outputFile, totalBytes, chunkCount, format.Encoding, format.SampleRate)

	if *autoplay {
		if err := playAudioFile(outputFile, format, logger); err != nil {
			logger.Warn("Failed to play audio automatically", zap.Error(err))
		}
	}
}

func newSynthesizer(ctx context.Context, cfg config.SynthesizerConfig, logger *zap.Logger) (repositories.TextToSpeech, error) {
	switch cfg.Provider {
	case config.ProviderElevenLabs:
		return tts.NewElevenLabsTTS(tts.ElevenLabsConfig{
			APIKey:       cfg.ElevenLabs.APIKey,
			APIBaseURL:   cfg.ElevenLabs.BaseURL,
			VoiceID:      cfg.ElevenLabs.VoiceID,
			ModelID:      cfg.ElevenLabs.ModelID,
			OutputFormat: cfg.ElevenLabs.OutputFormat,
			Stability:    cfg.ElevenLabs.Stability,
			Clarity:      cfg.ElevenLabs.Clarity,
		}, logger)
	case config.ProviderGoogle:
		return tts.NewGoogleTTS(ctx, logger)
	case config.ProviderMock, config.ProviderBrowser:
		return tts.NewMockTextToSpeech(logger), nil
	default:
		return nil, fmt.Errorf("unknown synthesizer provider %q", cfg.Provider)
	}
}

// audioPlayer represents an audio player command and its arguments
type audioPlayer struct {
	command string
	args    []string
}

func audioPlayers(format repositories.AudioFormat) []audioPlayer {
	if format.Encoding != "pcm" {
		return []audioPlayer{
			{"ffplay", []string{"-nodisp", "-autoexit"}},
			{"play", nil},
			{"afplay", nil},
		}
	}
	rate := strconv.Itoa(format.SampleRate)
	// signed 16-bit mono
	return []audioPlayer{
		{"play", []string{"-t", "raw", "-r", rate, "-e", "signed", "-b", "16", "-c", "1"}},
		{"ffplay", []string{"-f", "s16le", "-ar", rate, "-ac", "1", "-nodisp", "-autoexit"}},
		{"aplay", []string{"-f", "S16_LE", "-r", rate, "-c", "1"}},
	}
}

// playAudioFile tries the available system players in turn
func playAudioFile(filename string, format repositories.AudioFormat, logger *zap.Logger) error {
	for _, player := range audioPlayers(format) {
		if _, err := exec.LookPath(player.command); err != nil {
			continue
		}
		args := append(player.args, filename)
		logger.Info("Attempting to play audio", zap.String("player", player.command), zap.Strings("args", args))
		err := exec.Command(player.command, args...).Run()
		if err == nil {
			return nil
		}
		logger.Debug("Player failed", zap.String("player", player.command), zap.Error(err))
	}
	return fmt.Errorf("no suitable audio player found")
}
