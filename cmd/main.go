package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/speakup/adapters/llm"
	"github.com/satriahrh/speakup/adapters/stt"
	"github.com/satriahrh/speakup/adapters/tts"
	"github.com/satriahrh/speakup/domain/repositories"
	"github.com/satriahrh/speakup/internal/api"
	"github.com/satriahrh/speakup/internal/auth"
	"github.com/satriahrh/speakup/internal/config"
	"github.com/satriahrh/speakup/internal/logging"
	"github.com/satriahrh/speakup/internal/websocket"
	"github.com/satriahrh/speakup/usecase"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize adapters
	model, err := newLanguageModel(ctx, cfg.LLM, logger)
	if err != nil {
		logger.Fatal("Failed to initialize language model", zap.Error(err))
	}
	textToSpeech, closeTTS, err := newTextToSpeech(ctx, cfg.Speech.Synthesizer, logger)
	if err != nil {
		logger.Fatal("Failed to initialize speech synthesis", zap.Error(err))
	}
	defer closeTTS()

	providers := websocket.Providers{
		Conversation:  model,
		Evaluation:    model,
		NewRecognizer: newRecognizerFactory(cfg.Speech.Recognizer, logger),
		TextToSpeech:  textToSpeech,
		Session:       usecase.SessionConfig{Greeting: cfg.Session.Greeting},
		Capture: usecase.CaptureConfig{
			Language:    cfg.Speech.Language,
			StopTimeout: cfg.Speech.StopTimeout,
		},
		Output: usecase.OutputConfig{
			Language:       cfg.Speech.Language,
			Rate:           cfg.Speech.Synthesizer.Rate,
			Pitch:          cfg.Speech.Synthesizer.Pitch,
			PreferredVoice: cfg.Speech.Synthesizer.PreferredVoice,
		},
	}

	// Initialize WebSocket hub and idle session cleanup
	hub := websocket.NewHub(providers, cfg.Server.AllowedOrigins, logger)
	go hub.Run(ctx)

	cleanup := websocket.NewSessionCleanupService(hub, cfg.Session.IdleTimeout, logger)
	cleanup.Start()
	defer cleanup.Stop()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	if len(cfg.Server.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: cfg.Server.AllowedOrigins}))
	} else {
		e.Use(middleware.CORS())
	}

	// Initialize API routes
	issuer := auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	api.InitRoutes(e, hub, issuer, api.Options{
		AuthDisabled:   cfg.Auth.Disabled,
		AccessKey:      cfg.Auth.AccessKey,
		TokenRateLimit: cfg.Auth.RateLimit,
	}, logger)

	if cfg.Auth.Disabled {
		logger.Warn("Authentication is disabled, every websocket connection is accepted")
	}

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("port", cfg.Server.Port),
		zap.String("llm", cfg.LLM.Provider),
		zap.String("recognizer", cfg.Speech.Recognizer.Provider),
		zap.String("synthesizer", cfg.Speech.Synthesizer.Provider))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	// Disconnect learners before draining HTTP
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newLanguageModel(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (repositories.LargeLanguageModel, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return llm.NewGeminiClient(ctx, llm.GeminiConfig{
			APIKey:         cfg.Gemini.APIKey,
			Model:          cfg.Gemini.Model,
			TimeoutSeconds: cfg.Gemini.TimeoutSeconds,
		}, logger)
	case config.ProviderOpenAI:
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:         cfg.OpenAI.APIKey,
			Model:          cfg.OpenAI.Model,
			BaseURL:        cfg.OpenAI.BaseURL,
			TimeoutSeconds: cfg.OpenAI.TimeoutSeconds,
		}, logger)
	case config.ProviderMock:
		logger.Warn("Using mock language model")
		return llm.NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// newTextToSpeech returns nil when replies are spoken by the browser
func newTextToSpeech(ctx context.Context, cfg config.SynthesizerConfig, logger *zap.Logger) (repositories.TextToSpeech, func(), error) {
	noop := func() {}

	switch cfg.Provider {
	case config.ProviderBrowser:
		return nil, noop, nil
	case config.ProviderElevenLabs:
		eleven, err := tts.NewElevenLabsTTS(tts.ElevenLabsConfig{
			APIKey:       cfg.ElevenLabs.APIKey,
			APIBaseURL:   cfg.ElevenLabs.BaseURL,
			VoiceID:      cfg.ElevenLabs.VoiceID,
			ModelID:      cfg.ElevenLabs.ModelID,
			OutputFormat: cfg.ElevenLabs.OutputFormat,
			Stability:    cfg.ElevenLabs.Stability,
			Clarity:      cfg.ElevenLabs.Clarity,
		}, logger)
		if err != nil {
			return nil, noop, err
		}
		return eleven, noop, nil
	case config.ProviderGoogle:
		google, err := tts.NewGoogleTTS(ctx, logger)
		if err != nil {
			return nil, noop, err
		}
		return google, func() {
			if err := google.Close(); err != nil {
				logger.Warn("Failed to close text-to-speech client", zap.Error(err))
			}
		}, nil
	case config.ProviderMock:
		return tts.NewMockTextToSpeech(logger), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown synthesizer provider %q", cfg.Provider)
	}
}

// newRecognizerFactory returns nil when recognition runs in the browser
func newRecognizerFactory(cfg config.RecognizerConfig, logger *zap.Logger) func() repositories.Recognizer {
	switch cfg.Provider {
	case config.ProviderGoogle:
		return func() repositories.Recognizer {
			return stt.NewGoogleRecognizer(stt.GoogleConfig{
				SampleRate: cfg.SampleRate,
				Encoding:   cfg.Encoding,
			}, logger)
		}
	case config.ProviderMock:
		script := cfg.MockScript
		if len(script) == 0 {
			script = []string{"I usually go hiking with my friends", "on the weekends"}
		}
		return func() repositories.Recognizer {
			return stt.NewMockRecognizer(logger, 400*time.Millisecond, script...)
		}
	default:
		return nil
	}
}
