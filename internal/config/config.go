// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment tiers. The tier controls mock-mode eligibility: mock
// completions are only permitted outside production.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	MaxRequestBodyBytes int64

	// Environment tier: development, staging, or production.
	Environment string

	// Store settings.
	DBPath string

	// Root directory source files may be read from during test
	// generation. Paths outside the root are rejected.
	SourceRoot string

	// Remote provider settings.
	OpenAIAPIKey   string
	OpenAIModel    string
	AnthropicAPIKey string
	AnthropicModel  string

	// Local provider settings.
	OllamaURL     string
	OllamaModel   string
	LMStudioURL   string
	LMStudioModel string

	// Shared provider settings.
	ProviderTimeout    time.Duration // recommend >=60s for local backends
	DefaultMaxTokens   int
	DefaultTemperature float64

	// Per-purpose provider defaults: "test-generation:openai,..." pairs.
	// Purposes absent from the map fall through to the configured-provider
	// preference order.
	PurposeProviders map[string]string

	// JWT settings.
	JWTPrivateKeyPath string // Path to Ed25519 private key PEM file.
	JWTPublicKeyPath  string // Path to Ed25519 public key PEM file.
	JWTExpiration     time.Duration

	// Seeded caller API keys: "caller_id:key" pairs, comma-separated.
	// Keys are hashed and stored in the callers table at startup.
	SeedAPIKeys map[string]string

	// Rate limiting: fixed request budget per caller per rolling window.
	RateLimitEnabled bool
	RateLimitBudget  int
	RateLimitWindow  time.Duration

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                envInt("ATTEST_PORT", 8080),
		ReadTimeout:         envDuration("ATTEST_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        envDuration("ATTEST_WRITE_TIMEOUT", 120*time.Second),
		MaxRequestBodyBytes: int64(envInt("ATTEST_MAX_REQUEST_BODY_BYTES", 1*1024*1024)), // 1 MB default
		Environment:         envStr("ATTEST_ENV", EnvDevelopment),
		DBPath:              envStr("ATTEST_DB_PATH", "attest.db"),
		SourceRoot:          envStr("ATTEST_SOURCE_ROOT", "."),
		OpenAIAPIKey:        envStr("OPENAI_API_KEY", ""),
		OpenAIModel:         envStr("ATTEST_OPENAI_MODEL", "gpt-4o-mini"),
		AnthropicAPIKey:     envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:      envStr("ATTEST_ANTHROPIC_MODEL", "claude-sonnet-4-5"),
		OllamaURL:           envStr("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:         envStr("ATTEST_OLLAMA_MODEL", "qwen2.5-coder:14b"),
		LMStudioURL:         envStr("LMSTUDIO_URL", ""),
		LMStudioModel:       envStr("ATTEST_LMSTUDIO_MODEL", ""),
		ProviderTimeout:     envDuration("ATTEST_PROVIDER_TIMEOUT", 60*time.Second),
		DefaultMaxTokens:    envInt("ATTEST_MAX_TOKENS", 4096),
		DefaultTemperature:  envFloat("ATTEST_TEMPERATURE", 0.2),
		PurposeProviders:    parsePairs(envStr("ATTEST_PURPOSE_PROVIDERS", "")),
		JWTPrivateKeyPath:   envStr("ATTEST_JWT_PRIVATE_KEY", ""),
		JWTPublicKeyPath:    envStr("ATTEST_JWT_PUBLIC_KEY", ""),
		JWTExpiration:       envDuration("ATTEST_JWT_EXPIRATION", 24*time.Hour),
		SeedAPIKeys:         parseAPIKeys(envStr("ATTEST_API_KEYS", "")),
		RateLimitEnabled:    envBool("ATTEST_RATE_LIMIT_ENABLED", true),
		RateLimitBudget:     envInt("ATTEST_RATE_LIMIT_BUDGET", 60),
		RateLimitWindow:     envDuration("ATTEST_RATE_LIMIT_WINDOW", time.Minute),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:        envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "attest"),
		LogLevel:            envStr("ATTEST_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and coherent.
// In production, mock mode is not eligible, so at least one provider must
// be configured; local reachability is verified separately at startup.
func (c Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		return fmt.Errorf("config: ATTEST_ENV must be development, staging, or production (got %q)", c.Environment)
	}
	if c.DBPath == "" {
		return fmt.Errorf("config: ATTEST_DB_PATH is required")
	}
	if c.SourceRoot == "" {
		return fmt.Errorf("config: ATTEST_SOURCE_ROOT is required")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: ATTEST_MAX_REQUEST_BODY_BYTES must be positive")
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("config: ATTEST_PROVIDER_TIMEOUT must be positive")
	}
	if c.RateLimitEnabled && (c.RateLimitBudget <= 0 || c.RateLimitWindow <= 0) {
		return fmt.Errorf("config: rate limit budget and window must be positive when enabled")
	}
	if c.Environment == EnvProduction && !c.HasRemoteProvider() && !c.HasLocalProvider() {
		return fmt.Errorf("config: production requires at least one configured provider (no mock fallback)")
	}
	return nil
}

// HasRemoteProvider reports whether any remote backend has credentials.
func (c Config) HasRemoteProvider() bool {
	return c.OpenAIAPIKey != "" || c.AnthropicAPIKey != ""
}

// HasLocalProvider reports whether any local backend has a base URL.
func (c Config) HasLocalProvider() bool {
	return c.OllamaURL != "" || c.LMStudioURL != ""
}

// MockEligible reports whether the deployment may fall back to mock mode.
func (c Config) MockEligible() bool {
	return c.Environment != EnvProduction
}

// parseAPIKeys parses "caller:key,caller2:key2" into a map.
// Malformed entries are skipped.
func parseAPIKeys(raw string) map[string]string {
	return parsePairs(raw)
}

func parsePairs(raw string) map[string]string {
	pairs := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, ":")
		if !ok || k == "" || v == "" {
			continue
		}
		pairs[k] = v
	}
	return pairs
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
