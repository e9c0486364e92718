// Package config loads bridge settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// STT backend selections.
const (
	STTBackendWhisper = "whisper"
	STTBackendGoogle  = "google"
	STTBackendNone    = "none"
)

// Relay backend selections.
const (
	RelayBackendOpenClaw = "openclaw"
	RelayBackendGemini   = "gemini"
)

// Config holds all bridge settings.
type Config struct {
	Port int `env:"WEBSOCKET_PORT" envDefault:"8765"`

	GatewayURL    string `env:"OPENCLAW_GATEWAY_URL" envDefault:"http://localhost:8080"`
	GatewayAPIKey string `env:"OPENCLAW_API_KEY"`

	STTBackend          string `env:"STT_BACKEND" envDefault:"whisper"`
	WhisperURL          string `env:"WHISPER_URL"`
	WhisperModel        string `env:"WHISPER_MODEL" envDefault:"base"`
	GoogleSTTLanguage   string `env:"GOOGLE_STT_LANGUAGE" envDefault:"en-US"`
	GoogleSTTSampleRate int    `env:"GOOGLE_STT_SAMPLE_RATE" envDefault:"16000"`

	RelayBackend string `env:"RELAY_BACKEND" envDefault:"openclaw"`
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`

	SessionTimeoutSeconds int     `env:"SESSION_TIMEOUT_SECONDS" envDefault:"300"`
	SweepIntervalSeconds  int     `env:"SWEEP_INTERVAL_SECONDS" envDefault:"60"`
	MaxAudioSizeMB        float64 `env:"MAX_AUDIO_SIZE_MB" envDefault:"10"`
	MaxQueuedMessages     int     `env:"MAX_QUEUED_MESSAGES" envDefault:"256"`
	AudioEnabled          bool    `env:"AUDIO_ENABLED" envDefault:"true"`

	AdminTokenSecret string `env:"ADMIN_TOKEN_SECRET"`

	MongoURI      string `env:"MONGODB_URI"`
	MongoDatabase string `env:"MONGODB_DATABASE" envDefault:"openclaw_bridge"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads .env (when present) and parses the environment.
func Load() (*Config, error) {
	// A missing .env file is fine; explicit environment wins anyway.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks field ranges and backend selections.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("WEBSOCKET_PORT must be between 1 and 65535, got %d", c.Port)
	}

	switch c.STTBackend {
	case STTBackendWhisper, STTBackendGoogle, STTBackendNone:
	default:
		return fmt.Errorf("STT_BACKEND must be one of [whisper, google, none], got %q", c.STTBackend)
	}

	switch c.RelayBackend {
	case RelayBackendOpenClaw:
		if strings.TrimSpace(c.GatewayURL) == "" {
			return fmt.Errorf("OPENCLAW_GATEWAY_URL cannot be empty with the openclaw relay")
		}
	case RelayBackendGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required with the gemini relay")
		}
	default:
		return fmt.Errorf("RELAY_BACKEND must be one of [openclaw, gemini], got %q", c.RelayBackend)
	}

	if c.SessionTimeoutSeconds < 1 {
		return fmt.Errorf("SESSION_TIMEOUT_SECONDS must be at least 1, got %d", c.SessionTimeoutSeconds)
	}
	if c.SweepIntervalSeconds < 1 {
		return fmt.Errorf("SWEEP_INTERVAL_SECONDS must be at least 1, got %d", c.SweepIntervalSeconds)
	}
	if c.MaxAudioSizeMB <= 0 {
		return fmt.Errorf("MAX_AUDIO_SIZE_MB must be positive, got %f", c.MaxAudioSizeMB)
	}
	if c.MaxQueuedMessages < 1 {
		return fmt.Errorf("MAX_QUEUED_MESSAGES must be at least 1, got %d", c.MaxQueuedMessages)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of [debug, info, warn, error], got %q", c.LogLevel)
	}

	return nil
}

// SessionTimeout returns the idle-session timeout as a duration.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSeconds) * time.Second
}

// SweepInterval returns the sweeper tick period as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// MaxAudioBytes returns the audio buffer cap in bytes.
func (c *Config) MaxAudioBytes() int {
	return int(c.MaxAudioSizeMB * 1024 * 1024)
}
