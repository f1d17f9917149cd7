// Package unit contains unit tests for individual components of the
// signaling server, exercised through their exported APIs.
package unit

import (
	"testing"

	"github.com/cleech/gbplaybook-webrtc-server/internal/server"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := server.NewConfig()

	if cfg.Port != ":8081" {
		t.Errorf("Expected default port :8081, got %q", cfg.Port)
	}
	if cfg.Mode != "development" {
		t.Errorf("Expected default mode development, got %q", cfg.Mode)
	}
	if cfg.MaxMessageSize != 64*1024 {
		t.Errorf("Expected 64 KiB message limit, got %d", cfg.MaxMessageSize)
	}
	if !cfg.RateLimit.Enabled {
		t.Error("Expected rate limiting enabled by default")
	}
}

func TestNewConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("DEPLOYMENT_MODE", "production")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("RATE_LIMIT_BURST", "50")

	cfg := server.NewConfigFromEnv()

	if cfg.Port != ":9100" {
		t.Errorf("Expected port to be normalized to :9100, got %q", cfg.Port)
	}
	if cfg.Mode != "production" {
		t.Errorf("Expected mode production, got %q", cfg.Mode)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "https://a.example" {
		t.Errorf("Unexpected origins: %v", cfg.AllowedOrigins)
	}
	if cfg.MaxMessageSize != 1024 {
		t.Errorf("Expected message size 1024, got %d", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != 50 {
		t.Errorf("Expected burst 50, got %d", cfg.RateLimit.Burst)
	}
}

func TestNewConfigFromEnvInvalidValuesFallBack(t *testing.T) {
	t.Setenv("MAX_MESSAGE_SIZE", "not-a-number")
	t.Setenv("RATE_LIMIT_BURST", "-3")
	t.Setenv("RATE_LIMIT_MESSAGES_PER_SECOND", "zero")

	cfg := server.NewConfigFromEnv()
	defaults := server.NewConfig()

	if cfg.MaxMessageSize != defaults.MaxMessageSize {
		t.Errorf("Invalid MAX_MESSAGE_SIZE must fall back, got %d", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != defaults.RateLimit.Burst {
		t.Errorf("Invalid RATE_LIMIT_BURST must fall back, got %d", cfg.RateLimit.Burst)
	}
	if cfg.RateLimit.MessagesPerSecond != defaults.RateLimit.MessagesPerSecond {
		t.Errorf("Invalid rate must fall back, got %v", cfg.RateLimit.MessagesPerSecond)
	}
}
