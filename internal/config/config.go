package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when CONFIG_PATH is not set. A missing default file is
// not an error.
const DefaultPath = "config.yaml"

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Auth    AuthConfig    `yaml:"auth"`
	LLM     LLMConfig     `yaml:"llm"`
	Speech  SpeechConfig  `yaml:"speech"`
	Session SessionConfig `yaml:"session"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type AuthConfig struct {
	Disabled  bool          `yaml:"disabled"`
	Secret    string        `yaml:"secret"`
	AccessKey string        `yaml:"access_key"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	// RateLimit is the number of token requests allowed per IP per minute
	RateLimit int `yaml:"rate_limit"`
}

type LLMConfig struct {
	Provider string       `yaml:"provider"`
	Gemini   GeminiConfig `yaml:"gemini"`
	OpenAI   OpenAIConfig `yaml:"openai"`
}

type GeminiConfig struct {
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type SpeechConfig struct {
	Language    string            `yaml:"language"`
	StopTimeout time.Duration     `yaml:"stop_timeout"`
	Recognizer  RecognizerConfig  `yaml:"recognizer"`
	Synthesizer SynthesizerConfig `yaml:"synthesizer"`
}

type RecognizerConfig struct {
	Provider   string `yaml:"provider"`
	SampleRate int    `yaml:"sample_rate"`
	Encoding   string `yaml:"encoding"`
	// MockScript is what the mock recognizer hears, one segment per entry
	MockScript []string `yaml:"mock_script"`
}

type SynthesizerConfig struct {
	Provider       string           `yaml:"provider"`
	Rate           float64          `yaml:"rate"`
	Pitch          float64          `yaml:"pitch"`
	PreferredVoice string           `yaml:"preferred_voice"`
	ElevenLabs     ElevenLabsConfig `yaml:"elevenlabs"`
}

type ElevenLabsConfig struct {
	APIKey       string  `yaml:"api_key"`
	BaseURL      string  `yaml:"base_url"`
	VoiceID      string  `yaml:"voice_id"`
	ModelID      string  `yaml:"model_id"`
	OutputFormat string  `yaml:"output_format"`
	Stability    float64 `yaml:"stability"`
	Clarity      float64 `yaml:"clarity"`
}

type SessionConfig struct {
	Greeting    string        `yaml:"greeting"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// Providers
const (
	ProviderGemini     = "gemini"
	ProviderOpenAI     = "openai"
	ProviderBrowser    = "browser"
	ProviderGoogle     = "google"
	ProviderElevenLabs = "elevenlabs"
	ProviderMock       = "mock"
)

// Load reads .env, the YAML file at path (environment variables in it are
// expanded), applies defaults and then the environment overrides.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg.setDefaults()
	cfg.applyEnv()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if c.Auth.RateLimit == 0 {
		c.Auth.RateLimit = 10
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderGemini
	}
	if c.LLM.Gemini.Model == "" {
		c.LLM.Gemini.Model = "gemini-2.5-flash"
	}
	if c.LLM.Gemini.TimeoutSeconds == 0 {
		c.LLM.Gemini.TimeoutSeconds = 30
	}
	if c.LLM.OpenAI.TimeoutSeconds == 0 {
		c.LLM.OpenAI.TimeoutSeconds = 30
	}
	if c.Speech.Language == "" {
		c.Speech.Language = "en-US"
	}
	if c.Speech.StopTimeout == 0 {
		c.Speech.StopTimeout = 3 * time.Second
	}
	if c.Speech.Recognizer.Provider == "" {
		c.Speech.Recognizer.Provider = ProviderBrowser
	}
	if c.Speech.Synthesizer.Provider == "" {
		c.Speech.Synthesizer.Provider = ProviderBrowser
	}
	if c.Speech.Synthesizer.Rate == 0 {
		c.Speech.Synthesizer.Rate = 1.0
	}
	if c.Speech.Synthesizer.Pitch == 0 {
		c.Speech.Synthesizer.Pitch = 1.0
	}
	if c.Speech.Synthesizer.PreferredVoice == "" {
		c.Speech.Synthesizer.PreferredVoice = "Google"
	}
	if c.Speech.Synthesizer.ElevenLabs.BaseURL == "" {
		c.Speech.Synthesizer.ElevenLabs.BaseURL = "https://api.elevenlabs.io/v1"
	}
	if c.Speech.Synthesizer.ElevenLabs.ModelID == "" {
		c.Speech.Synthesizer.ElevenLabs.ModelID = "eleven_flash_v2_5"
	}
	if c.Speech.Synthesizer.ElevenLabs.OutputFormat == "" {
		c.Speech.Synthesizer.ElevenLabs.OutputFormat = "mp3_44100_128"
	}
	if c.Speech.Synthesizer.ElevenLabs.Stability == 0 {
		c.Speech.Synthesizer.ElevenLabs.Stability = 0.5
	}
	if c.Speech.Synthesizer.ElevenLabs.Clarity == 0 {
		c.Speech.Synthesizer.ElevenLabs.Clarity = 0.75
	}
	if c.Session.IdleTimeout == 0 {
		c.Session.IdleTimeout = 30 * time.Minute
	}
}

func (c *Config) applyEnv() {
	override := func(target *string, key string) {
		if value := os.Getenv(key); value != "" {
			*target = value
		}
	}
	override(&c.Server.Port, "PORT")
	override(&c.Auth.Secret, "JWT_SECRET")
	override(&c.Auth.AccessKey, "ACCESS_KEY")
	override(&c.LLM.Provider, "LLM_PROVIDER")
	override(&c.LLM.Gemini.APIKey, "GEMINI_API_KEY")
	override(&c.LLM.OpenAI.APIKey, "OPENAI_API_KEY")
	override(&c.Speech.Synthesizer.ElevenLabs.APIKey, "ELEVEN_LABS_API_KEY")
	override(&c.Speech.Synthesizer.ElevenLabs.VoiceID, "ELEVEN_LABS_VOICE_ID")
	override(&c.Log.Level, "LOG_LEVEL")
}

// Validate rejects unknown providers and missing credentials for the
// selected ones
func (c *Config) Validate() error {
	var errs []error

	switch c.LLM.Provider {
	case ProviderGemini:
		if c.LLM.Gemini.APIKey == "" {
			errs = append(errs, errors.New("llm.gemini.api_key (GEMINI_API_KEY) is required"))
		}
	case ProviderOpenAI:
		if c.LLM.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("llm.openai.api_key (OPENAI_API_KEY) is required"))
		}
	case ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider %q", c.LLM.Provider))
	}

	switch c.Speech.Recognizer.Provider {
	case ProviderBrowser, ProviderGoogle, ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("unknown recognizer provider %q", c.Speech.Recognizer.Provider))
	}

	switch c.Speech.Synthesizer.Provider {
	case ProviderElevenLabs:
		if c.Speech.Synthesizer.ElevenLabs.APIKey == "" {
			errs = append(errs, errors.New("speech.synthesizer.elevenlabs.api_key (ELEVEN_LABS_API_KEY) is required"))
		}
		if c.Speech.Synthesizer.ElevenLabs.VoiceID == "" {
			errs = append(errs, errors.New("speech.synthesizer.elevenlabs.voice_id (ELEVEN_LABS_VOICE_ID) is required"))
		}
	case ProviderBrowser, ProviderGoogle, ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("unknown synthesizer provider %q", c.Speech.Synthesizer.Provider))
	}

	if !c.Auth.Disabled {
		if c.Auth.Secret == "" {
			errs = append(errs, errors.New("auth.secret (JWT_SECRET) is required unless auth is disabled"))
		}
		if c.Auth.AccessKey == "" {
			errs = append(errs, errors.New("auth.access_key (ACCESS_KEY) is required unless auth is disabled"))
		}
	}

	if c.Speech.Synthesizer.Rate <= 0 || c.Speech.Synthesizer.Pitch <= 0 {
		errs = append(errs, errors.New("speech rate and pitch must be positive"))
	}
	if !strings.HasPrefix(c.Speech.Language, "en") {
		errs = append(errs, fmt.Errorf("speech.language must be an English locale, got %q", c.Speech.Language))
	}

	return errors.Join(errs...)
}
