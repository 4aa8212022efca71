package usecase

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/speakup/domain/repositories"
)

const DefaultPreferredVoice = "Google"

// OutputConfig holds the utterance settings used for every reply
type OutputConfig struct {
	Language       string
	Rate           float64
	Pitch          float64
	PreferredVoice string
}

// SpeechOutput speaks assistant replies, one at a time
type SpeechOutput struct {
	synthesizer repositories.SpeechSynthesizer
	config      OutputConfig
	logger      *zap.Logger

	speakMu sync.Mutex

	mu          sync.Mutex
	cancel      context.CancelFunc
	voiceLoaded bool
	voice       *repositories.Voice
}

func NewSpeechOutput(synthesizer repositories.SpeechSynthesizer, config OutputConfig, logger *zap.Logger) *SpeechOutput {
	if config.Language == "" {
		config.Language = DefaultLanguage
	}
	if config.Rate == 0 {
		config.Rate = 1.0
	}
	if config.Pitch == 0 {
		config.Pitch = 1.0
	}
	if config.PreferredVoice == "" {
		config.PreferredVoice = DefaultPreferredVoice
	}
	return &SpeechOutput{
		synthesizer: synthesizer,
		config:      config,
		logger:      logger,
	}
}

// Speak interrupts whatever is playing and starts speaking text. It returns
// immediately; synthesis failures are only logged.
func (o *SpeechOutput) Speak(ctx context.Context, text string) {
	if o.synthesizer == nil {
		o.logger.Debug("No speech synthesizer available, skipping reply playback")
		return
	}
	if strings.TrimSpace(text) == "" {
		return
	}

	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	speakCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.mu.Unlock()

	if err := o.synthesizer.Cancel(); err != nil {
		o.logger.Warn("Failed to cancel previous utterance", zap.Error(err))
	}

	go func() {
		voice := o.selectedVoice(speakCtx)

		o.speakMu.Lock()
		defer o.speakMu.Unlock()

		if speakCtx.Err() != nil {
			return
		}

		utterance := repositories.Utterance{
			Text:     text,
			Language: o.config.Language,
			Rate:     o.config.Rate,
			Pitch:    o.config.Pitch,
			Voice:    voice,
		}
		if err := o.synthesizer.Speak(speakCtx, utterance); err != nil && speakCtx.Err() == nil {
			o.logger.Warn("Speech synthesis failed", zap.Error(err))
		}
	}()
}

// Stop silences any utterance in progress
func (o *SpeechOutput) Stop() {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.mu.Unlock()

	if o.synthesizer != nil {
		if err := o.synthesizer.Cancel(); err != nil {
			o.logger.Warn("Failed to cancel utterance", zap.Error(err))
		}
	}
}

// selectedVoice loads the voice list once per session. A failed lookup is
// retried on the next reply and speaks with the platform default meanwhile.
func (o *SpeechOutput) selectedVoice(ctx context.Context) *repositories.Voice {
	o.mu.Lock()
	if o.voiceLoaded {
		voice := o.voice
		o.mu.Unlock()
		return voice
	}
	o.mu.Unlock()

	voices, err := o.synthesizer.Voices(ctx)
	if err != nil {
		o.logger.Warn("Failed to load voices", zap.Error(err))
		return nil
	}

	voice := SelectVoice(voices, o.config.Language, o.config.PreferredVoice)
	if voice != nil {
		o.logger.Info("Selected voice", zap.String("voice", voice.Name), zap.String("lang", voice.Locale))
	}

	o.mu.Lock()
	o.voiceLoaded = true
	o.voice = voice
	o.mu.Unlock()

	return voice
}

// SelectVoice picks a voice for the locale. An exact locale always beats a
// language-only match; within the same match a voice whose name contains
// preferred wins. nil means the engine default.
func SelectVoice(voices []repositories.Voice, locale, preferred string) *repositories.Voice {
	best := -1
	bestScore := 0
	for i, voice := range voices {
		score := localeScore(voice.Locale, locale)
		if score == 0 {
			continue
		}
		score *= 2
		if preferred != "" && strings.Contains(voice.Name, preferred) {
			score++
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return nil
	}
	voice := voices[best]
	return &voice
}

// localeScore is 2 for the same locale, 1 for the same language, else 0
func localeScore(candidate, target string) int {
	candidate = strings.ToLower(strings.ReplaceAll(candidate, "_", "-"))
	target = strings.ToLower(strings.ReplaceAll(target, "_", "-"))
	if candidate == "" || target == "" {
		return 0
	}
	if candidate == target {
		return 2
	}
	candidateLang, _, _ := strings.Cut(candidate, "-")
	targetLang, _, _ := strings.Cut(target, "-")
	if candidateLang == targetLang {
		return 1
	}
	return 0
}
