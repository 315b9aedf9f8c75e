package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GENERATION_GEMINI_API_KEY", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.Generation.MaxAttempts != 3 || cfg.Generation.RetryBaseDelay != time.Second {
		t.Errorf("retry = %d/%v", cfg.Generation.MaxAttempts, cfg.Generation.RetryBaseDelay)
	}
	if cfg.RateLimit.Requests != 10 || cfg.RateLimit.Window != time.Minute {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}
	if !cfg.Transcript.Enabled || cfg.Transcript.QueueSize != 1000 {
		t.Errorf("transcript = %+v", cfg.Transcript)
	}
	if cfg.UseGateway() {
		t.Error("expected direct Gemini transport by default")
	}
	if !cfg.IsDevelopment() {
		t.Error("expected development mode without FRONTEND_URL")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GENERATION_GATEWAY_ADDR", "gateway:50051")
	t.Setenv("TURN_RATE_LIMIT", "2")
	t.Setenv("TRANSCRIPT_ENABLED", "false")
	t.Setenv("FRONTEND_URL", "https://quarrel.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.UseGateway() {
		t.Error("expected gateway transport")
	}
	if cfg.RateLimit.Requests != 2 {
		t.Errorf("Requests = %d", cfg.RateLimit.Requests)
	}
	if cfg.Transcript.Enabled {
		t.Error("expected transcripts disabled")
	}
	if cfg.IsDevelopment() {
		t.Error("expected production mode")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Port:       "8080",
			DBPath:     "db",
			Generation: GenerationConfig{GeminiAPIKey: "k", MaxAttempts: 3},
			RateLimit:  RateLimitConfig{Requests: 1, Window: time.Second},
			Transcript: TranscriptConfig{Enabled: true, Dir: "logs", QueueSize: 1},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"no port", func(c *Config) { c.Port = "" }, "PORT"},
		{"no transport", func(c *Config) { c.Generation.GeminiAPIKey = "" }, "GATEWAY_ADDR"},
		{"no attempts", func(c *Config) { c.Generation.MaxAttempts = 0 }, "MAX_ATTEMPTS"},
		{"no window", func(c *Config) { c.RateLimit.Window = 0 }, "TURN_RATE"},
		{"no transcript dir", func(c *Config) { c.Transcript.Dir = "" }, "TRANSCRIPT_DIR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadStoreWithoutGenerationCredentials(t *testing.T) {
	t.Setenv("GENERATION_GEMINI_API_KEY", "")
	t.Setenv("GENERATION_GATEWAY_ADDR", "")
	t.Setenv("DB_PATH", "/tmp/battles.db")

	cfg, err := LoadStore()
	if err != nil {
		t.Fatalf("LoadStore failed: %v", err)
	}
	if cfg.DBPath != "/tmp/battles.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
}
