package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoad_YAMLWithExpansion(t *testing.T) {
	t.Setenv("TEST_GEMINI_MODEL", "gemini-test")
	t.Setenv("PORT", "")
	path := writeConfig(t, `
server:
  port: "9090"
  allowed_origins: ["https://speakup.example"]
llm:
  provider: gemini
  gemini:
    model: ${TEST_GEMINI_MODEL}
speech:
  stop_timeout: 2s
  recognizer:
    provider: mock
    mock_script: ["I like reading", "mystery novels"]
  synthesizer:
    provider: mock
    rate: 0.9
session:
  idle_timeout: 5m
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if diff := cmp.Diff([]string{"https://speakup.example"}, cfg.Server.AllowedOrigins); diff != "" {
		t.Errorf("allowed origins mismatch (-want +got):\n%s", diff)
	}
	if cfg.LLM.Gemini.Model != "gemini-test" {
		t.Errorf("expected expanded model, got %s", cfg.LLM.Gemini.Model)
	}
	if cfg.Speech.StopTimeout != 2*time.Second {
		t.Errorf("expected 2s stop timeout, got %s", cfg.Speech.StopTimeout)
	}
	if diff := cmp.Diff([]string{"I like reading", "mystery novels"}, cfg.Speech.Recognizer.MockScript); diff != "" {
		t.Errorf("mock script mismatch (-want +got):\n%s", diff)
	}
	if cfg.Speech.Synthesizer.Rate != 0.9 || cfg.Speech.Synthesizer.Pitch != 1.0 {
		t.Errorf("unexpected rate/pitch %v/%v", cfg.Speech.Synthesizer.Rate, cfg.Speech.Synthesizer.Pitch)
	}
	if cfg.Session.IdleTimeout != 5*time.Minute {
		t.Errorf("expected 5m idle timeout, got %s", cfg.Session.IdleTimeout)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("PORT", "")
	t.Setenv("LLM_PROVIDER", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port, got %s", cfg.Server.Port)
	}
	if cfg.LLM.Provider != ProviderGemini {
		t.Errorf("expected gemini provider, got %s", cfg.LLM.Provider)
	}
	if cfg.Speech.Recognizer.Provider != ProviderBrowser || cfg.Speech.Synthesizer.Provider != ProviderBrowser {
		t.Errorf("expected browser capabilities by default, got %s/%s",
			cfg.Speech.Recognizer.Provider, cfg.Speech.Synthesizer.Provider)
	}
	if cfg.Speech.Language != "en-US" || cfg.Speech.StopTimeout != 3*time.Second {
		t.Errorf("unexpected speech defaults %+v", cfg.Speech)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour || cfg.Auth.RateLimit != 10 {
		t.Errorf("unexpected auth defaults %+v", cfg.Auth)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unterminated")
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ELEVEN_LABS_API_KEY", "eleven-key")
	path := writeConfig(t, `
server:
  port: "9090"
llm:
  gemini:
    api_key: from-file
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != "7000" {
		t.Errorf("expected env port, got %s", cfg.Server.Port)
	}
	if cfg.LLM.Gemini.APIKey != "gemini-key" {
		t.Errorf("expected env API key, got %s", cfg.LLM.Gemini.APIKey)
	}
	if cfg.Auth.Secret != "secret" || cfg.Speech.Synthesizer.ElevenLabs.APIKey != "eleven-key" {
		t.Errorf("expected secrets from env, got %+v", cfg.Auth)
	}
}

func validConfig() *Config {
	cfg := &Config{
		Auth: AuthConfig{Secret: "secret", AccessKey: "key"},
		LLM:  LLMConfig{Gemini: GeminiConfig{APIKey: "gemini-key"}},
	}
	cfg.setDefaults()
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "missing gemini key",
			mutate:  func(c *Config) { c.LLM.Gemini.APIKey = "" },
			wantErr: "GEMINI_API_KEY",
		},
		{
			name:    "openai without key",
			mutate:  func(c *Config) { c.LLM.Provider = ProviderOpenAI },
			wantErr: "OPENAI_API_KEY",
		},
		{
			name:    "unknown llm",
			mutate:  func(c *Config) { c.LLM.Provider = "claude" },
			wantErr: `unknown llm provider "claude"`,
		},
		{
			name:    "unknown recognizer",
			mutate:  func(c *Config) { c.Speech.Recognizer.Provider = "whisper" },
			wantErr: "unknown recognizer provider",
		},
		{
			name:    "elevenlabs without voice",
			mutate:  func(c *Config) { c.Speech.Synthesizer.Provider = ProviderElevenLabs; c.Speech.Synthesizer.ElevenLabs.APIKey = "k" },
			wantErr: "ELEVEN_LABS_VOICE_ID",
		},
		{
			name:    "auth without secret",
			mutate:  func(c *Config) { c.Auth.Secret = "" },
			wantErr: "JWT_SECRET",
		},
		{
			name:   "auth disabled",
			mutate: func(c *Config) { c.Auth = AuthConfig{Disabled: true} },
		},
		{
			name:    "non english language",
			mutate:  func(c *Config) { c.Speech.Language = "fr-FR" },
			wantErr: "English locale",
		},
		{
			name:   "mock everything",
			mutate: func(c *Config) { c.LLM = LLMConfig{Provider: ProviderMock}; c.Speech.Recognizer.Provider = ProviderMock },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
