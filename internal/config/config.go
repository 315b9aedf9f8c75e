// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/quarrel-labs/internal/generation"
	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	FrontendURL string `env:"FRONTEND_URL"`
	DBPath      string `env:"DB_PATH" envDefault:"./data/quarrel.db"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"quarrel-labs"`

	Generation GenerationConfig `envPrefix:"GENERATION_"`
	RateLimit  RateLimitConfig  `envPrefix:"TURN_RATE_"`
	Transcript TranscriptConfig `envPrefix:"TRANSCRIPT_"`

	// EngineIdleTTL drops a device's live battle after this long without activity.
	EngineIdleTTL time.Duration `env:"ENGINE_IDLE_TTL" envDefault:"60m"`
	// OTELEndpoint enables tracing when set.
	OTELEndpoint string `env:"OTEL_ENDPOINT"`
}

// GenerationConfig selects and tunes the generation service.
type GenerationConfig struct {
	// GeminiAPIKey enables the direct Gemini transport.
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	TextModel    string `env:"TEXT_MODEL" envDefault:"gemini-2.5-pro"`
	VisionModel  string `env:"VISION_MODEL" envDefault:"gemini-2.5-flash-image"`
	SpeechModel  string `env:"SPEECH_MODEL" envDefault:"gemini-2.5-flash-preview-tts"`

	// GatewayAddr routes generation through a gRPC gateway instead of Gemini.
	GatewayAddr    string        `env:"GATEWAY_ADDR"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`

	// GatewayListen is the address cmd/gateway serves on.
	GatewayListen string `env:"GATEWAY_LISTEN" envDefault:":50051"`

	MaxAttempts    int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	RetryBaseDelay time.Duration `env:"RETRY_BASE_DELAY" envDefault:"1s"`
}

// RateLimitConfig bounds turn submissions per device.
type RateLimitConfig struct {
	Requests int           `env:"LIMIT" envDefault:"10"`
	Window   time.Duration `env:"WINDOW" envDefault:"1m"`
}

// TranscriptConfig controls NDJSON turn transcripts.
type TranscriptConfig struct {
	Enabled   bool   `env:"ENABLED" envDefault:"true"`
	Dir       string `env:"DIR" envDefault:"./data/logs/transcripts"`
	QueueSize int    `env:"QUEUE_SIZE" envDefault:"1000"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// StoreConfig is the subset of configuration needed by offline tools that
// only touch battle history.
type StoreConfig struct {
	DBPath string `env:"DB_PATH" envDefault:"./data/quarrel.db"`
}

// LoadStore reads the store configuration without requiring generation
// credentials.
func LoadStore() (*StoreConfig, error) {
	cfg := &StoreConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DBPath == "" {
		return nil, errors.New("DB_PATH cannot be empty")
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return errors.New("DB_PATH cannot be empty")
	}
	if c.Generation.GeminiAPIKey == "" && c.Generation.GatewayAddr == "" {
		return errors.New("one of GENERATION_GEMINI_API_KEY or GENERATION_GATEWAY_ADDR must be set")
	}
	if c.Generation.MaxAttempts <= 0 {
		return errors.New("GENERATION_MAX_ATTEMPTS must be > 0")
	}
	if c.Generation.RetryBaseDelay < 0 {
		return errors.New("GENERATION_RETRY_BASE_DELAY cannot be negative")
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("TURN_RATE_LIMIT and TURN_RATE_WINDOW must be > 0")
	}
	if c.Transcript.Enabled && c.Transcript.Dir == "" {
		return errors.New("TRANSCRIPT_DIR cannot be empty")
	}
	if c.Transcript.QueueSize <= 0 {
		return errors.New("TRANSCRIPT_QUEUE_SIZE must be > 0")
	}
	return nil
}

// GenerationOpenConfig returns the transport selection for generation.Open.
func (c *Config) GenerationOpenConfig() generation.OpenConfig {
	return generation.OpenConfig{
		GatewayAddr:    c.Generation.GatewayAddr,
		RequestTimeout: c.Generation.RequestTimeout,
		Genai: generation.GenaiConfig{
			APIKey:      c.Generation.GeminiAPIKey,
			TextModel:   c.Generation.TextModel,
			VisionModel: c.Generation.VisionModel,
			SpeechModel: c.Generation.SpeechModel,
		},
	}
}

// RetryPolicy returns the configured generation retry policy.
func (c *Config) RetryPolicy() generation.RetryPolicy {
	return generation.RetryPolicy{
		MaxAttempts: c.Generation.MaxAttempts,
		BaseDelay:   c.Generation.RetryBaseDelay,
	}
}

// UseGateway reports whether generation goes through the gRPC gateway.
func (c *Config) UseGateway() bool {
	return c.Generation.GatewayAddr != ""
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}
