// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the signaling service.
package server

import (
	"os"
	"strconv"
	"strings"

	"golang.org/x/time/rate"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	MessagesPerSecond rate.Limit
	Burst             int
	Enabled           bool
}

// Config holds the server configuration settings including security controls.
// The Mode label only feeds the startup log line.
type Config struct {
	Port           string
	Mode           string
	AllowedOrigins []string
	MaxMessageSize int64
	RateLimit      RateLimitConfig
}

func defaultConfig() Config {
	return Config{
		Port: ":8081",
		Mode: "development",
		AllowedOrigins: []string{
			"*",
		},
		// SDP offers and candidate batches fit comfortably in 64 KiB.
		MaxMessageSize: 64 * 1024,
		RateLimit: RateLimitConfig{
			MessagesPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}

func sanitizeConfig(cfg Config) Config {
	defaults := defaultConfig()

	cfg.Port = normalizePort(cfg.Port)
	if cfg.Port == "" {
		cfg.Port = defaults.Port
	}

	if cfg.Mode == "" {
		cfg.Mode = defaults.Mode
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}

	if cfg.RateLimit.MessagesPerSecond <= 0 {
		cfg.RateLimit.MessagesPerSecond = defaults.RateLimit.MessagesPerSecond
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaults.RateLimit.Burst
	}

	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}

	if mode := os.Getenv("DEPLOYMENT_MODE"); mode != "" {
		cfg.Mode = mode
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if perSecond := os.Getenv("RATE_LIMIT_MESSAGES_PER_SECOND"); perSecond != "" {
		cfg.RateLimit.MessagesPerSecond = parseRateLimit(perSecond, cfg.RateLimit.MessagesPerSecond)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	sanitized := sanitizeConfig(cfg)
	return &sanitized
}

// normalizePort accepts both "8081" and ":8081" forms.
func normalizePort(port string) string {
	port = strings.TrimSpace(port)
	if port == "" {
		return ""
	}
	if !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseRateLimit(value string, defaultValue rate.Limit) rate.Limit {
	if parsed, err := strconv.ParseFloat(value, 64); err == nil && parsed > 0 {
		return rate.Limit(parsed)
	}
	return defaultValue
}
