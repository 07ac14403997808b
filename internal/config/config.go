package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates every setting the service consumes.
type Config struct {
	Server     ServerConfig
	Upstream   UpstreamConfig
	Moderation ModerationConfig
	Gate       GateConfig
	RateLimit  RateLimitConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	upstream, err := loadUpstreamConfig()
	if err != nil {
		return nil, err
	}

	moderation, err := loadModerationConfig()
	if err != nil {
		return nil, err
	}

	rateLimit, err := loadRateLimitConfig()
	if err != nil {
		return nil, err
	}

	gate := GateConfig{ParentPIN: strings.TrimSpace(os.Getenv("PARENT_PIN"))}

	return &Config{
		Server:     server,
		Upstream:   upstream,
		Moderation: moderation,
		Gate:       gate,
		RateLimit:  rateLimit,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" as-is.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// UpstreamConfig describes the OpenAI completion upstream.
type UpstreamConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float32
	MaxTokens   int
}

// Enabled reports whether the required credential is present. A missing key
// is a per-request configuration error, not a startup failure.
func (c UpstreamConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadUpstreamConfig() (UpstreamConfig, error) {
	temperature := float32(0.6)
	if override, err := parseOptionalFloat32Env("OPENAI_TEMPERATURE"); err != nil {
		return UpstreamConfig{}, err
	} else if override != nil {
		temperature = *override
	}

	maxTokens := 500
	if override, err := parseOptionalIntEnv("OPENAI_MAX_TOKENS"); err != nil {
		return UpstreamConfig{}, err
	} else if override != nil && *override > 0 {
		maxTokens = *override
	}

	return UpstreamConfig{
		APIKey:      strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		Model:       getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		BaseURL:     strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}, nil
}

// ModerationConfig describes the remote classification stage.
type ModerationConfig struct {
	Enabled bool
	// FailClosed converts moderation-service outages into refusals instead
	// of letting traffic through. Default is fail-open: a third-party outage
	// must not fully block the product.
	FailClosed bool
	Model      string
	MaxChars   int
}

func loadModerationConfig() (ModerationConfig, error) {
	enabled, err := parseBoolEnv("MODERATION_ENABLED", true)
	if err != nil {
		return ModerationConfig{}, err
	}

	failClosed, err := parseBoolEnv("MODERATION_FAIL_CLOSED", false)
	if err != nil {
		return ModerationConfig{}, err
	}

	maxChars := 2000
	if override, err := parseOptionalIntEnv("MODERATION_MAX_CHARS"); err != nil {
		return ModerationConfig{}, err
	} else if override != nil && *override > 0 {
		maxChars = *override
	}

	return ModerationConfig{
		Enabled:    enabled,
		FailClosed: failClosed,
		Model:      getEnvOrDefault("MODERATION_MODEL", "omni-moderation-latest"),
		MaxChars:   maxChars,
	}, nil
}

// GateConfig holds the parent-verification secret.
type GateConfig struct {
	ParentPIN string
}

// Enabled reports whether the verification secret is configured.
func (c GateConfig) Enabled() bool {
	return c.ParentPIN != ""
}

// RateLimitConfig bounds per-client request admission.
type RateLimitConfig struct {
	Window time.Duration
	Max    int
}

func loadRateLimitConfig() (RateLimitConfig, error) {
	windowSeconds := 60
	if override, err := parseOptionalIntEnv("RATE_LIMIT_WINDOW_SECONDS"); err != nil {
		return RateLimitConfig{}, err
	} else if override != nil && *override > 0 {
		windowSeconds = *override
	}

	max := 20
	if override, err := parseOptionalIntEnv("RATE_LIMIT_MAX"); err != nil {
		return RateLimitConfig{}, err
	} else if override != nil && *override > 0 {
		max = *override
	}

	return RateLimitConfig{
		Window: time.Duration(windowSeconds) * time.Second,
		Max:    max,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}
